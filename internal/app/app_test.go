package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/figurl-view/figview/internal/bridge"
	"github.com/figurl-view/figview/internal/config"
	"github.com/figurl-view/figview/internal/contentstore"
	"github.com/figurl-view/figview/internal/figure"
	"github.com/figurl-view/figview/internal/host"
	"github.com/figurl-view/figview/internal/protocol"
	"github.com/figurl-view/figview/internal/render"
	"github.com/figurl-view/figview/internal/resolve"
	"github.com/figurl-view/figview/internal/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost answers synchronously from canned data.
type fakeHost struct {
	mu             sync.Mutex
	descriptor     figure.Descriptor
	locators       map[string]string
	activations    int
	figureRequests int
	resolved       []string
	pushes         chan protocol.HostMessage
}

func newFakeHost(d figure.Descriptor) *fakeHost {
	return &fakeHost{
		descriptor: d,
		locators:   map[string]string{"sha1://abc": "https://cdn/abc.dat", "sha1://x": "blob:Y", "sha1://z": "blob:Z"},
		pushes:     make(chan protocol.HostMessage, 4),
	}
}

func (h *fakeHost) Activate(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activations++
	return nil
}

func (h *fakeHost) RequestFigureDescriptor(context.Context) (figure.Descriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.figureRequests++
	return h.descriptor, nil
}

func (h *fakeHost) ResolveContentURI(_ context.Context, uri string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolved = append(h.resolved, uri)
	if url, ok := h.locators[uri]; ok {
		return url, nil
	}
	return "", errors.New("not found")
}

func (h *fakeHost) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activations > 0
}

func (h *fakeHost) FigureID() string                    { return "fig-1" }
func (h *fakeHost) Pushes() <-chan protocol.HostMessage { return h.pushes }

func (h *fakeHost) setDescriptor(d figure.Descriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.descriptor = d
}

// recorder counts mounts and what the mounted widgets were sent.
type recorder struct {
	mounts  []render.Props
	resizes []tea.WindowSizeMsg
}

func (r *recorder) Mount(props render.Props, _ *selection.Scope) render.Widget {
	r.mounts = append(r.mounts, props)
	return stubWidget{rec: r, props: props}
}

type stubWidget struct {
	rec   *recorder
	props render.Props
}

func (w stubWidget) Init() tea.Cmd { return nil }

func (w stubWidget) Update(msg tea.Msg) (render.Widget, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		w.rec.resizes = append(w.rec.resizes, size)
	}
	return w, nil
}

func (w stubWidget) View() string { return "WIDGET " + w.props.MultiscaleSpikeDensityOutputURL }

// run executes cmd and every command it leads to, feeding results back
// through Update. Spinner ticks are dropped so the loop ends.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, spinner.TickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			next, more := m.Update(msg)
			m = next.(Model)
			queue = append(queue, more)
		}
	}
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func startModel(t *testing.T, host *fakeHost, rec *recorder) Model {
	t.Helper()
	m := New(host, rec)
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return run(t, m, startCmd())
}

func TestSpikeDensityEndToEnd(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://abc"))
	rec := &recorder{}

	m := startModel(t, host, rec)

	assert.Equal(t, 1, host.activations)
	assert.Equal(t, 1, host.figureRequests)
	assert.Equal(t, []string{"sha1://abc"}, host.resolved)
	require.Len(t, rec.mounts, 1)
	assert.Equal(t, render.Props{Width: 100, Height: 40, MultiscaleSpikeDensityOutputURL: "https://cdn/abc.dat"}, rec.mounts[0])
	assert.Contains(t, m.View(), "WIDGET https://cdn/abc.dat")
	assert.True(t, m.statusBar.Listening)
	assert.Equal(t, "loaded", m.statusBar.FigureState)
	assert.Equal(t, "ready", m.statusBar.ResourceState)
}

func TestUnsupportedTypeNeverResolves(t *testing.T) {
	d, err := figure.Decode([]byte(`{"type":"volume_render","uri":"sha1://abc"}`))
	require.NoError(t, err)
	host := newFakeHost(d)
	rec := &recorder{}

	m := startModel(t, host, rec)

	assert.Empty(t, host.resolved)
	assert.Empty(t, rec.mounts)
	assert.Contains(t, m.View(), "Unexpected figure type: volume_render")
}

func TestNoFigureData(t *testing.T) {
	host := newFakeHost(nil)
	rec := &recorder{}

	m := startModel(t, host, rec)

	assert.Equal(t, resolve.FigureErrored, m.figure.State())
	assert.Empty(t, host.resolved)
	assert.Contains(t, m.View(), resolve.MsgNoFigureData)
}

func TestResourceError(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://missing"))
	rec := &recorder{}

	m := startModel(t, host, rec)

	assert.Empty(t, rec.mounts)
	assert.Contains(t, m.View(), "Error loading file URL:")
	assert.Contains(t, m.View(), "not found")
}

func TestMountedOncePerLocator(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://x"))
	rec := &recorder{}

	m := startModel(t, host, rec)
	require.Len(t, rec.mounts, 1)
	assert.Equal(t, "blob:Y", rec.mounts[0].MultiscaleSpikeDensityOutputURL)

	m, _ = update(m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m.View()
	m.View()

	// A remount naming the same content keeps the widget.
	m, cmd := update(m, keyMsg("r"))
	m = run(t, m, cmd)

	assert.Len(t, rec.mounts, 1)
	assert.Equal(t, []string{"sha1://x"}, host.resolved)
	assert.Equal(t, 2, host.figureRequests)
	assert.Equal(t, []tea.WindowSizeMsg{{Width: 80, Height: 24}}, rec.resizes)
	assert.Contains(t, m.View(), "WIDGET blob:Y")
}

func TestRekeyDropsStaleLocator(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://x"))
	rec := &recorder{}

	m := startModel(t, host, rec)
	require.Len(t, rec.mounts, 1)

	host.setDescriptor(figure.NewMultiscaleSpikeDensity("sha1://z"))
	m, cmd := update(m, keyMsg("r"))
	assert.Equal(t, LoadingScreen{}, m.screen())

	m, cmd = update(m, cmd())
	assert.Equal(t, ResourceLoadingScreen{}, m.screen())
	assert.Nil(t, m.widget, "stale widget should be unmounted")
	assert.Empty(t, m.resource.Locator())

	m = run(t, m, cmd)
	assert.Equal(t, []string{"sha1://x", "sha1://z"}, host.resolved)
	require.Len(t, rec.mounts, 2)
	assert.Equal(t, "blob:Z", rec.mounts[1].MultiscaleSpikeDensityOutputURL)
	assert.Contains(t, m.View(), "WIDGET blob:Z")
}

func TestStaleFigureResultIgnored(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://x"))
	rec := &recorder{}
	m := New(host, rec)

	m, first := update(m, startMsg{})
	require.NotNil(t, first)
	stale := first()

	m, _ = update(m, keyMsg("r"))
	m, _ = update(m, stale)

	assert.Equal(t, resolve.FigureLoading, m.figure.State())
	assert.Nil(t, m.resource)
}

func TestHostPushesAndClose(t *testing.T) {
	host := newFakeHost(nil)
	m := New(host, &recorder{})
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m, cmd := update(m, hostPushMsg{msg: protocol.HostMessage{Type: "setTheme"}})
	assert.NotNil(t, cmd, "push listener should be re-armed")
	assert.False(t, m.closed)

	m, cmd = update(m, hostClosedMsg{})
	assert.Nil(t, cmd)
	assert.True(t, m.statusBar.Closed)
	assert.Contains(t, m.View(), "Host closed")
}

func TestHostClosingPush(t *testing.T) {
	host := newFakeHost(nil)
	m := New(host, &recorder{})

	m, _ = update(m, hostPushMsg{msg: protocol.HostMessage{Type: protocol.HostClosing}})
	assert.True(t, m.closed)
}

func TestSelectionKeys(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://x"))
	m := startModel(t, host, &recorder{})
	require.NotNil(t, m.scope)

	full := m.scope.Window()
	m, _ = update(m, keyMsg("+"))
	zoomed := m.scope.Window()
	assert.Less(t, zoomed.VisibleEndSec-zoomed.VisibleStartSec, full.VisibleEndSec-full.VisibleStartSec)

	m, _ = update(m, keyMsg("l"))
	assert.Greater(t, m.scope.Window().VisibleStartSec, zoomed.VisibleStartSec)

	m, _ = update(m, keyMsg("0"))
	reset := m.scope.Window()
	assert.Equal(t, full.VisibleStartSec, reset.VisibleStartSec)
	assert.Equal(t, full.VisibleEndSec, reset.VisibleEndSec)
}

func TestOverlays(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://abc"))
	m := startModel(t, host, &recorder{})

	m, _ = update(m, keyMsg("d"))
	assert.Equal(t, OverlayDebug, m.overlay)
	assert.Contains(t, m.View(), "PROTOCOL LOG")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, OverlayNone, m.overlay)

	m, _ = update(m, keyMsg("i"))
	assert.Equal(t, OverlayInfo, m.overlay)
	assert.True(t, strings.Contains(m.View(), "abc"))
}

func TestQuitCancelsContext(t *testing.T) {
	m := New(newFakeHost(nil), &recorder{})
	m, cmd := update(m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
}

func TestViewBeforeResize(t *testing.T) {
	m := New(newFakeHost(nil), &recorder{})
	assert.Equal(t, "Initializing...", m.View())
}

func TestRemountBeforeFirstRequestRuns(t *testing.T) {
	cfg := config.DefaultHost()
	cfg.Figures["fig-1"] = map[string]any{"type": figure.TypeMultiscaleSpikeDensity, "uri": "sha1://abc"}
	server, err := host.NewServer(cfg, contentstore.Static{"sha1://abc": "https://cdn/abc.dat"}, nil, host.Options{Workers: 2})
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 20; i++ {
		viewerEnd, hostEnd := bridge.Pipe()
		go server.ServeTransport(ctx, hostEnd)
		b := bridge.New(viewerEnd, "fig-1")

		rec := &recorder{}
		m := New(b, rec)
		m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 40})

		// The remount cancels the first request's ctx before its Cmd gets
		// to activate the bridge.
		m, first := update(m, startMsg{})
		m, second := update(m, keyMsg("r"))
		m, _ = update(m, first())
		m = run(t, m, second)

		require.Equal(t, resolve.FigureLoaded, m.figure.State(), "round %d: %s", i, m.figure.Err())
		require.Len(t, rec.mounts, 1)
		assert.Equal(t, "https://cdn/abc.dat", rec.mounts[0].MultiscaleSpikeDensityOutputURL)
		b.Close()
	}
}

func TestMountWaitsForWindowSize(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://abc"))
	rec := &recorder{}

	m := run(t, New(host, rec), startCmd())
	assert.Equal(t, resolve.Ready, m.resource.Status())
	assert.Empty(t, rec.mounts, "no mount before the viewport is known")

	m, _ = update(m, tea.WindowSizeMsg{Width: 90, Height: 30})
	require.Len(t, rec.mounts, 1)
	assert.Equal(t, render.Props{Width: 90, Height: 30, MultiscaleSpikeDensityOutputURL: "https://cdn/abc.dat"}, rec.mounts[0])
	assert.Empty(t, rec.resizes)

	m, _ = update(m, tea.WindowSizeMsg{Width: 91, Height: 31})
	assert.Len(t, rec.mounts, 1)
	assert.Equal(t, []tea.WindowSizeMsg{{Width: 91, Height: 31}}, rec.resizes)
}

func TestRemountToUnsupportedUnmounts(t *testing.T) {
	host := newFakeHost(figure.NewMultiscaleSpikeDensity("sha1://x"))
	rec := &recorder{}

	m := startModel(t, host, rec)
	require.NotNil(t, m.widget)

	unsupported, err := figure.Decode([]byte(`{"type":"volume_render"}`))
	require.NoError(t, err)
	host.setDescriptor(unsupported)
	m, cmd := update(m, keyMsg("r"))
	m = run(t, m, cmd)

	assert.Nil(t, m.widget)
	assert.Nil(t, m.scope)
	assert.Nil(t, m.resource)
	assert.Contains(t, m.View(), "Unexpected figure type: volume_render")

	// Selection keys no longer reach a hidden scope.
	m, _ = update(m, keyMsg("+"))
	assert.Nil(t, m.scope)

	// Coming back to the same content mounts a fresh widget.
	host.setDescriptor(figure.NewMultiscaleSpikeDensity("sha1://x"))
	m, cmd = update(m, keyMsg("r"))
	m = run(t, m, cmd)
	assert.Len(t, rec.mounts, 2)
	assert.Equal(t, []string{"sha1://x", "sha1://x"}, host.resolved)
}
