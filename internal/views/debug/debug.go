// Package debug provides the scrollable protocol event log overlay.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/figurl-view/figview/internal/theme"
)

const maxEntries = 200

// Kind classifies a log entry.
type Kind string

const (
	KindHost   Kind = "host" // handshake, channel open/close
	KindReq    Kind = "req"  // request issued
	KindResult Kind = "res"  // request settled
	KindPush   Kind = "push" // unsolicited host message
	KindErr    Kind = "err"
	KindUI     Kind = "ui" // user actions such as remount
)

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)

	now func() time.Time
}

// New creates an empty debug model.
func New() Model {
	return Model{now: time.Now}
}

// Addf appends a formatted entry and caps the buffer.
func (m *Model) Addf(kind Kind, format string, args ...interface{}) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	m.Entries = append(m.Entries, Entry{
		Time:    now(),
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	// New entries snap the view back to the bottom.
	m.Offset = 0
}

// Count returns how many entries of kind are buffered.
func (m Model) Count(kind Kind) int {
	n := 0
	for _, e := range m.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visibleLines := max(height-6, 3)

	title := theme.StyleHeader.Render(" PROTOCOL LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No protocol events yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visibleLines, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(string(e.Kind))
		msg := e.Message
		if limit := innerW - 20; limit > 3 && len(msg) > limit {
			msg = msg[:limit-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, msg))
	}

	scroll := ""
	if m.Offset > 0 {
		scroll = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), scroll, help)
	return panelStyle(innerW).Render(content)
}

func kindColor(kind Kind) lipgloss.Color {
	switch kind {
	case KindHost:
		return theme.ColorAccent
	case KindReq:
		return theme.ColorPending
	case KindResult:
		return theme.ColorReady
	case KindPush:
		return theme.ColorWarning
	case KindErr:
		return theme.ColorFailed
	default:
		return theme.ColorDimmed
	}
}
