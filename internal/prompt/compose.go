// Package prompt builds generation requests from a fixed instruction and per-item content.
package prompt

// Content labels placed between the instruction and the content.
const (
	LabelRequirements  = "REQUIREMENTS"
	LabelScenarios     = "BDD"
	LabelReportContext = "REPORT CONTEXT"
	LabelLog           = "LOG"
)

// Compose returns "{system}\n\n{label}:\n{content}\n\nOUTPUT:".
func Compose(system, label, content string) string {
	return system + "\n\n" + label + ":\n" + content + "\n\nOUTPUT:"
}

// Request is a single generation request. It is immutable once built.
type Request struct {
	system  string
	label   string
	content string
	model   string
}

// NewRequest builds a Request for model.
func NewRequest(system, label, content, model string) Request {
	return Request{system: system, label: label, content: content, model: model}
}

func (r Request) System() string  { return r.system }
func (r Request) Label() string   { return r.label }
func (r Request) Content() string { return r.content }
func (r Request) Model() string   { return r.model }

// Stream is always false: callers need the whole artifact before continuing.
func (r Request) Stream() bool { return false }

// Text returns the composed prompt.
func (r Request) Text() string {
	return Compose(r.system, r.label, r.content)
}
