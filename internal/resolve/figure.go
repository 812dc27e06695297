package resolve

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/figurl-view/figview/internal/figure"
)

// MsgNoFigureData is shown when the host answers with no descriptor.
const MsgNoFigureData = "No data in return from getFigureData()"

// FigureSource is the part of the host bridge the figure resolver needs.
type FigureSource interface {
	Activate(ctx context.Context) error
	RequestFigureDescriptor(ctx context.Context) (figure.Descriptor, error)
}

// FigureState is the lifecycle of a Figure resolver.
type FigureState int

const (
	FigureUninitialized FigureState = iota
	FigureLoading
	FigureLoaded
	FigureErrored
)

func (s FigureState) String() string {
	switch s {
	case FigureUninitialized:
		return "uninitialized"
	case FigureLoading:
		return "loading"
	case FigureLoaded:
		return "loaded"
	case FigureErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// FigureResultMsg carries the outcome of a descriptor request back to the
// resolver instance that issued it.
type FigureResultMsg struct {
	id         uint64
	Descriptor figure.Descriptor
	Err        error
}

// Figure resolves the figure descriptor once per instance.
type Figure struct {
	id      uint64
	source  FigureSource
	started bool
	load    Load[figure.Descriptor]
	cancel  context.CancelFunc
}

// NewFigure creates an Uninitialized resolver.
func NewFigure(source FigureSource) Figure {
	return Figure{id: nextID(), source: source}
}

// Start moves Uninitialized to Loading and returns the Cmd that activates
// the bridge and requests the descriptor. It returns a nil Cmd in any other
// state.
func (r Figure) Start(ctx context.Context) (Figure, tea.Cmd) {
	if r.started {
		return r, nil
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)

	id, src := r.id, r.source
	return r, func() tea.Msg {
		if err := src.Activate(ctx); err != nil {
			return FigureResultMsg{id: id, Err: err}
		}
		d, err := src.RequestFigureDescriptor(ctx)
		return FigureResultMsg{id: id, Descriptor: d, Err: err}
	}
}

// Stop abandons interest in an in-flight request.
func (r Figure) Stop() Figure {
	if r.cancel != nil {
		r.cancel()
	}
	return r
}

// Update applies a FigureResultMsg addressed to this instance. Anything else
// is ignored.
func (r Figure) Update(msg tea.Msg) (Figure, tea.Cmd) {
	res, ok := msg.(FigureResultMsg)
	if !ok || res.id != r.id || !r.started {
		return r, nil
	}
	switch {
	case res.Err != nil:
		r.load.Fail(fmt.Sprintf("Error getting figure data: %v", res.Err))
	case res.Descriptor == nil:
		r.load.Fail(MsgNoFigureData)
	default:
		r.load.Resolve(res.Descriptor)
	}
	return r, nil
}

// Owns reports whether msg is a result addressed to this instance.
func (r Figure) Owns(msg tea.Msg) bool {
	res, ok := msg.(FigureResultMsg)
	return ok && res.id == r.id
}

// State returns the lifecycle state.
func (r Figure) State() FigureState {
	if !r.started {
		return FigureUninitialized
	}
	switch r.load.Status() {
	case Ready:
		return FigureLoaded
	case Failed:
		return FigureErrored
	default:
		return FigureLoading
	}
}

// Descriptor returns the loaded descriptor, or nil.
func (r Figure) Descriptor() figure.Descriptor {
	d, _ := r.load.Value()
	return d
}

// Err returns the failure message, or "".
func (r Figure) Err() string {
	return r.load.Message()
}
