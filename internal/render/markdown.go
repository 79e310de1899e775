// Package render formats command output for the terminal.
package render

import (
	"github.com/charmbracelet/glamour"
)

// noMarginStyle removes document margins on top of the auto-detected style.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Markdown renders markdown documents such as stats files and reports.
type Markdown struct {
	renderer *glamour.TermRenderer
	width    int
}

// NewMarkdown creates a markdown renderer wrapping at width.
func NewMarkdown(width int) (*Markdown, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Markdown{renderer: r, width: width}, nil
}

// Width returns the configured word wrap width.
func (m *Markdown) Width() int {
	return m.width
}

// Render transforms markdown to styled terminal output.
func (m *Markdown) Render(markdown string) (string, error) {
	return m.renderer.Render(markdown)
}
