// Package spikedensity is the default widget for multiscale spike density
// figures. It reports what the resolved dataset is and where the shared
// selection points; decoding the spike counts is left to a real plotting
// backend.
package spikedensity

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/figurl-view/figview/internal/render"
	"github.com/figurl-view/figview/internal/selection"
	"github.com/figurl-view/figview/internal/theme"
)

// Consumer mounts spike density widgets.
type Consumer struct {
	client *HTTPClient
}

// NewConsumer creates a consumer probing datasets with client.
func NewConsumer(client *HTTPClient) *Consumer {
	return &Consumer{client: client}
}

// Mount implements render.Consumer.
func (c *Consumer) Mount(props render.Props, scope *selection.Scope) render.Widget {
	return Model{props: props, scope: scope, client: c.client}
}

type probeMsg struct {
	url   string
	probe Probe
	err   error
}

// Model is a mounted widget.
type Model struct {
	props  render.Props
	scope  *selection.Scope
	client *HTTPClient

	probed bool
	probe  Probe
	err    error
}

// Init probes the dataset over HTTP(S). Other schemes are shown as-is.
func (m Model) Init() tea.Cmd {
	url := m.props.MultiscaleSpikeDensityOutputURL
	if m.client == nil || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return nil
	}
	client := m.client
	return func() tea.Msg {
		p, err := client.Head(context.Background(), url)
		return probeMsg{url: url, probe: p, err: err}
	}
}

// Update handles resize and probe results.
func (m Model) Update(msg tea.Msg) (render.Widget, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.props.Width = msg.Width
		m.props.Height = msg.Height
	case probeMsg:
		if msg.url == m.props.MultiscaleSpikeDensityOutputURL {
			m.probed = true
			m.probe = msg.probe
			m.err = msg.err
		}
	}
	return m, nil
}

// Props returns the props the widget currently renders with.
func (m Model) Props() render.Props {
	return m.props
}

var (
	styleLabel = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Width(10)
	styleValue = lipgloss.NewStyle().Foreground(theme.ColorBright)
	styleTrack = lipgloss.NewStyle().Foreground(theme.ColorBorder)
	styleFill  = lipgloss.NewStyle().Foreground(theme.ColorAccent)
)

// View renders the dataset summary and the selection window.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render("Multiscale spike density") + "\n\n")
	writeRow(&b, "Source", m.props.MultiscaleSpikeDensityOutputURL)
	writeRow(&b, "Viewport", fmt.Sprintf("%d x %d", m.props.Width, m.props.Height))

	switch {
	case m.err != nil:
		writeRow(&b, "Dataset", lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(m.err.Error()))
	case m.probed:
		writeRow(&b, "Dataset", describe(m.probe))
	}

	if m.scope != nil {
		w := m.scope.Window()
		writeRow(&b, "Window", fmt.Sprintf("%.3fs – %.3fs of %.3fs – %.3fs",
			w.VisibleStartSec, w.VisibleEndSec, w.StartSec, w.EndSec))
		b.WriteString("\n" + windowBar(w, m.props.Width-4) + "\n")
	}
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label) + styleValue.Render(value) + "\n")
}

func describe(p Probe) string {
	size := "unknown size"
	if p.Size >= 0 {
		size = formatBytes(p.Size)
	}
	parts := []string{size}
	if p.ContentType != "" {
		parts = append(parts, p.ContentType)
	}
	if p.Ranges {
		parts = append(parts, "range requests")
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// windowBar draws the visible window as a filled span of the total range.
func windowBar(w selection.Window, width int) string {
	if width < 10 {
		width = 10
	}
	total := w.EndSec - w.StartSec
	if total <= 0 {
		return styleFill.Render(strings.Repeat("█", width))
	}
	from := int(float64(width) * (w.VisibleStartSec - w.StartSec) / total)
	to := int(float64(width) * (w.VisibleEndSec - w.StartSec) / total)
	if to <= from {
		to = from + 1
	}
	if to > width {
		to = width
	}
	return styleTrack.Render(strings.Repeat("─", from)) +
		styleFill.Render(strings.Repeat("█", to-from)) +
		styleTrack.Render(strings.Repeat("─", width-to))
}
