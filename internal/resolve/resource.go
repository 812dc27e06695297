package resolve

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// ResourceSource is the part of the host bridge the resource resolver needs.
type ResourceSource interface {
	ResolveContentURI(ctx context.Context, uri string) (string, error)
}

// ResourceResultMsg carries a resolved locator back to the resolver instance
// that asked for it.
type ResourceResultMsg struct {
	id      uint64
	URI     string
	Locator string
	Err     error
}

// Resource resolves one content identifier to a fetchable locator. It is
// keyed by the identifier: re-keying starts a fresh load and orphans the
// previous one.
type Resource struct {
	id      uint64
	source  ResourceSource
	key     string
	started bool
	load    Load[string]
	cancel  context.CancelFunc
}

// NewResource creates a resolver keyed on uri. Nothing is requested until
// Start.
func NewResource(source ResourceSource, uri string) Resource {
	return Resource{id: nextID(), source: source, key: uri}
}

// Key returns the content identifier this resolver is for.
func (r Resource) Key() string { return r.key }

// Start issues the lookup for the current key. It returns a nil Cmd once
// started.
func (r Resource) Start(ctx context.Context) (Resource, tea.Cmd) {
	if r.started {
		return r, nil
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)

	id, src, uri := r.id, r.source, r.key
	return r, func() tea.Msg {
		locator, err := src.ResolveContentURI(ctx, uri)
		return ResourceResultMsg{id: id, URI: uri, Locator: locator, Err: err}
	}
}

// Rekey points the resolver at uri. An unchanged key is a no-op; a new key
// cancels the previous request, drops its locator and starts over.
func (r Resource) Rekey(ctx context.Context, uri string) (Resource, tea.Cmd) {
	if uri == r.key && r.started {
		return r, nil
	}
	r.Stop()
	return NewResource(r.source, uri).Start(ctx)
}

// Stop abandons interest in an in-flight request.
func (r Resource) Stop() Resource {
	if r.cancel != nil {
		r.cancel()
	}
	return r
}

// Update applies a ResourceResultMsg addressed to this instance. Results
// from superseded instances are dropped.
func (r Resource) Update(msg tea.Msg) (Resource, tea.Cmd) {
	res, ok := msg.(ResourceResultMsg)
	if !ok || res.id != r.id || !r.started {
		return r, nil
	}
	if res.Err != nil {
		r.load.Fail(fmt.Sprintf("Error getting file data URL: %v", res.Err))
		return r, nil
	}
	r.load.Resolve(res.Locator)
	return r, nil
}

// Owns reports whether msg is a result addressed to this instance.
func (r Resource) Owns(msg tea.Msg) bool {
	res, ok := msg.(ResourceResultMsg)
	return ok && res.id == r.id
}

// Status returns the load state. An unstarted resolver reports Pending.
func (r Resource) Status() Status { return r.load.Status() }

// Locator returns the resolved URL, or "".
func (r Resource) Locator() string {
	v, _ := r.load.Value()
	return v
}

// Err returns the failure message, or "".
func (r Resource) Err() string { return r.load.Message() }
