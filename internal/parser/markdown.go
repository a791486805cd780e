// Package parser extracts code from Markdown-formatted model output.
package parser

import (
	"bufio"
	"regexp"
	"strings"
)

// CodeBlock is a fenced code block.
type CodeBlock struct {
	Lang    string // Info string after the opening fence, e.g. "gherkin"
	Content string // Body without the fences
	Start   int    // Line number of the opening fence
	End     int    // Line number of the closing fence
}

var fenceRegex = regexp.MustCompile("^\\s*(```+|~~~+)\\s*([\\w+#.-]*)")

// CodeBlocks returns the fenced code blocks in content, in order. An
// unterminated block runs to the end of the input.
func CodeBlocks(content string) []CodeBlock {
	var blocks []CodeBlock

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	var current *CodeBlock
	var fence string
	var body strings.Builder

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if current == nil {
			if match := fenceRegex.FindStringSubmatch(line); match != nil {
				fence = match[1]
				current = &CodeBlock{Lang: strings.ToLower(match[2]), Start: lineNum}
				body.Reset()
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, fence[:1]) == "" {
			current.Content = strings.TrimSuffix(body.String(), "\n")
			current.End = lineNum
			blocks = append(blocks, *current)
			current = nil
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}

	if current != nil {
		current.Content = strings.TrimSuffix(body.String(), "\n")
		current.End = lineNum
		blocks = append(blocks, *current)
	}
	return blocks
}

// Unfence returns the code of a reply wrapped in Markdown fences. It only
// applies when the first non-blank line opens a fence; anything else, such as
// a feature file carrying a ``` doc string, is returned unchanged. Several
// blocks are joined by a blank line and text between them is dropped.
func Unfence(content string) string {
	if !opensWithFence(content) {
		return content
	}
	blocks := CodeBlocks(content)

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b.Content) == "" {
			continue
		}
		parts = append(parts, b.Content)
	}
	if len(parts) == 0 {
		return content
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func opensWithFence(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return fenceRegex.MatchString(line)
	}
	return false
}
