package cli

import (
	"context"
	"fmt"
	"io"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/v8-integration-agent/automation/internal/pipeline"
)

// Theme holds the color scheme for the progress display and summary.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries a pipeline event into the UI.
type eventMsg pipeline.Event

// batchDoneMsg is sent once the batch has returned.
type batchDoneMsg struct{}

// progressModel is the bubbletea model for a running batch.
type progressModel struct {
	op       string
	total    int
	finished int
	failed   int
	current  string
	progress progress.Model
	theme    Theme
	done     bool
	hidden   bool
}

func newProgressModel() progressModel {
	return progressModel{
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The batch keeps running; only the display goes away.
			m.hidden = true
			return m, tea.Quit
		}

	case eventMsg:
		m.op = msg.Op
		m.total = msg.Total
		switch msg.Kind {
		case pipeline.EventItemStarted:
			m.current = msg.Source
		case pipeline.EventItemFinished:
			m.finished++
			if msg.Outcome != nil && msg.Outcome.Status == pipeline.StatusFailed {
				m.failed++
			}
		}
		return m, nil

	case batchDoneMsg:
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return ""
	}
	if m.hidden {
		return m.theme.hintStyle().Render("Progress hidden, waiting for the batch to finish...") + "\n"
	}
	if m.total == 0 {
		return m.theme.statusStyle().Render("Collecting inputs...") + "\n"
	}

	pct := float64(m.finished) / float64(m.total)
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.op))
	counts := fmt.Sprintf("%d/%d items", m.finished, m.total)
	if m.failed > 0 {
		counts += " " + m.theme.errorStyle().Render(fmt.Sprintf("(%d failed)", m.failed))
	}
	hint := m.theme.hintStyle().Render("Press Ctrl+C to hide progress")

	return fmt.Sprintf("%s %s %s\n%s\n%s\n", status, m.progress.ViewAs(pct), counts, m.current, hint)
}

// runWithProgress runs op while rendering its events to out. The batch is
// always awaited, even when the user dismisses the display.
func runWithProgress(
	ctx context.Context,
	out io.Writer,
	newDriver func(observer func(pipeline.Event)) (*pipeline.Driver, error),
	op func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult,
) (*pipeline.BatchResult, *pipeline.Driver, error) {
	p := tea.NewProgram(newProgressModel(), tea.WithOutput(out))

	d, err := newDriver(func(ev pipeline.Event) {
		p.Send(eventMsg(ev))
	})
	if err != nil {
		return nil, nil, err
	}

	results := make(chan *pipeline.BatchResult, 1)
	go func() {
		res := op(ctx, d)
		results <- res
		p.Send(batchDoneMsg{})
	}()

	_, uiErr := p.Run()
	res := <-results
	if uiErr != nil {
		return res, d, fmt.Errorf("progress UI error: %w", uiErr)
	}
	return res, d, nil
}
