// Package render is the contract between the figure view and the widget
// that draws a figure. The widget's internals are its own business.
package render

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/figurl-view/figview/internal/selection"
)

// Props is handed to a widget when it is mounted.
type Props struct {
	Width                           int    `json:"width"`
	Height                          int    `json:"height"`
	MultiscaleSpikeDensityOutputURL string `json:"multiscaleSpikeDensityOutputUrl"`
}

// Widget is a mounted figure. It receives tea.WindowSizeMsg on viewport
// changes and whatever messages its own Cmds produce.
type Widget interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Widget, tea.Cmd)
	View() string
}

// Consumer mounts widgets. Mount is called once per resolved locator, inside
// the shared selection scope.
type Consumer interface {
	Mount(props Props, scope *selection.Scope) Widget
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(props Props, scope *selection.Scope) Widget

func (f ConsumerFunc) Mount(props Props, scope *selection.Scope) Widget {
	return f(props, scope)
}
