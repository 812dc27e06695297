// Package info renders the figure information overlay as markdown.
package info

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/figurl-view/figview/internal/theme"
)

// Details is everything the overlay shows.
type Details struct {
	FigureID   string
	Type       string
	URI        string
	Locator    string
	Descriptor json.RawMessage
	Width      int
	Height     int
}

// Markdown builds the overlay source.
func Markdown(d Details) string {
	var b strings.Builder
	b.WriteString("# Figure\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Figure ID | `%s` |\n", orDash(d.FigureID))
	fmt.Fprintf(&b, "| Type | `%s` |\n", orDash(d.Type))
	fmt.Fprintf(&b, "| Content URI | `%s` |\n", orDash(d.URI))
	fmt.Fprintf(&b, "| Locator | `%s` |\n", orDash(d.Locator))
	fmt.Fprintf(&b, "| Viewport | %d x %d |\n", d.Width, d.Height)

	if len(d.Descriptor) > 0 {
		b.WriteString("\n## Descriptor\n\n```json\n")
		var pretty interface{}
		if json.Unmarshal(d.Descriptor, &pretty) == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			b.Write(out)
		} else {
			b.Write(d.Descriptor)
		}
		b.WriteString("\n```\n")
	}
	return b.String()
}

// View renders the overlay at the given width. If markdown rendering fails
// the raw source is shown instead.
func View(d Details, width int) string {
	width = max(width-4, 30)
	src := Markdown(d)

	out := src
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err == nil {
		if rendered, err := r.Render(src); err == nil {
			out = rendered
		}
	}

	help := theme.StyleDimmed.Render("esc:close")
	return theme.StyleBorder.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, out, help))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
