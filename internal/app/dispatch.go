package app

import (
	"github.com/figurl-view/figview/internal/figure"
	"github.com/figurl-view/figview/internal/render"
	"github.com/figurl-view/figview/internal/resolve"
)

// FigureView is what the dispatcher needs from the figure resolver.
type FigureView struct {
	State      resolve.FigureState
	Descriptor figure.Descriptor
	Err        string
}

// ResourceView is what the dispatcher needs from the resource resolver.
type ResourceView struct {
	Status  resolve.Status
	Locator string
	Err     string
}

// Viewport is the space available to the figure.
type Viewport struct {
	Width  int
	Height int
}

// Screen is what the figure area shows. It is a closed set.
type Screen interface {
	screen()
}

type (
	LoadingScreen         struct{}
	ErrorScreen           struct{ Message string }
	UnexpectedTypeScreen  struct{ Type string }
	ResourceLoadingScreen struct{}
	ResourceErrorScreen   struct{ Message string }
	RenderScreen          struct{ Props render.Props }
)

func (LoadingScreen) screen()         {}
func (ErrorScreen) screen()           {}
func (UnexpectedTypeScreen) screen()  {}
func (ResourceLoadingScreen) screen() {}
func (ResourceErrorScreen) screen()   {}
func (RenderScreen) screen()          {}

// Dispatch picks the screen for the current resolver states. res is nil
// until a resource resolver exists.
func Dispatch(fig FigureView, res *ResourceView, vp Viewport) Screen {
	switch fig.State {
	case resolve.FigureErrored:
		return ErrorScreen{Message: fig.Err}
	case resolve.FigureLoaded:
	default:
		return LoadingScreen{}
	}
	if fig.Descriptor == nil {
		return ErrorScreen{Message: resolve.MsgNoFigureData}
	}

	v := &screenVisitor{res: res, vp: vp}
	fig.Descriptor.Accept(v)
	return v.out
}

type screenVisitor struct {
	res *ResourceView
	vp  Viewport
	out Screen
}

func (v *screenVisitor) MultiscaleSpikeDensity(figure.MultiscaleSpikeDensity) {
	if v.res == nil {
		v.out = ResourceLoadingScreen{}
		return
	}
	switch v.res.Status {
	case resolve.Ready:
		v.out = RenderScreen{Props: render.Props{
			Width:                           v.vp.Width,
			Height:                          v.vp.Height,
			MultiscaleSpikeDensityOutputURL: v.res.Locator,
		}}
	case resolve.Failed:
		v.out = ResourceErrorScreen{Message: v.res.Err}
	default:
		v.out = ResourceLoadingScreen{}
	}
}

func (v *screenVisitor) Unsupported(d figure.Unsupported) {
	v.out = UnexpectedTypeScreen{Type: d.Type()}
}
