package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/figurl-view/figview/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	FigureID string
	// Listening is true once the host handshake has gone out.
	Listening bool
	// Closed is true once the host channel has gone away.
	Closed        bool
	FigureState   string
	ResourceState string
	Width         int
}

// New creates a status bar model.
func New(figureID string) Model {
	return Model{
		FigureID:      figureID,
		FigureState:   "uninitialized",
		ResourceState: "idle",
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Closed:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("✗ Host closed")
	case m.Listening:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Listening")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Connecting...")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep +
		theme.StyleDimmed.Render("figure ") + m.FigureID + sep +
		stateStr("data", m.FigureState) + sep +
		stateStr("file", m.ResourceState)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func stateStr(label, state string) string {
	return lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(
		fmt.Sprintf("%s %s %s", theme.StateGlyph(state), label, state),
	)
}
