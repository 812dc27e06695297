// Package theme provides the Lip Gloss palette and reusable styles for the
// figure viewer. It is a leaf package with no internal imports to avoid
// import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Load state colors.
var (
	ColorPending = lipgloss.Color("#7c3aed")
	ColorReady   = lipgloss.Color("#16a34a")
	ColorFailed  = lipgloss.Color("#dc2626")
	ColorIdle    = lipgloss.Color("#4b5563")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#06b6d4")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// StateColor returns the color for a resolver state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "loading", "pending":
		return ColorPending
	case "loaded", "ready":
		return ColorReady
	case "errored", "failed":
		return ColorFailed
	case "uninitialized", "idle":
		return ColorIdle
	default:
		return ColorDefault
	}
}

// StateGlyph returns a glyph for a resolver state name.
func StateGlyph(state string) string {
	switch state {
	case "loading", "pending":
		return "◌"
	case "loaded", "ready":
		return "✓"
	case "errored", "failed":
		return "✗"
	case "uninitialized", "idle":
		return "○"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)
