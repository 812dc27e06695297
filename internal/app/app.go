// Package app is the root Bubble Tea model of the figure viewer.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/figurl-view/figview/internal/figure"
	"github.com/figurl-view/figview/internal/protocol"
	"github.com/figurl-view/figview/internal/render"
	"github.com/figurl-view/figview/internal/resolve"
	"github.com/figurl-view/figview/internal/selection"
	"github.com/figurl-view/figview/internal/theme"
	"github.com/figurl-view/figview/internal/views/debug"
	"github.com/figurl-view/figview/internal/views/info"
	"github.com/figurl-view/figview/internal/views/status"
	"github.com/rs/zerolog"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayInfo
)

const (
	panStep  = 0.1
	zoomStep = 1.5
)

// Host is the part of the host bridge the viewer uses.
type Host interface {
	resolve.FigureSource
	resolve.ResourceSource
	Active() bool
	FigureID() string
	Pushes() <-chan protocol.HostMessage
}

type hostPushMsg struct{ msg protocol.HostMessage }

type hostClosedMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	host     Host
	consumer render.Consumer
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	figure   resolve.Figure
	resource *resolve.Resource

	// widget is mounted for mountedFor and dropped when the locator goes.
	widget     render.Widget
	mountedFor string
	scope      *selection.Scope

	spinner   spinner.Model
	statusBar status.Model
	debugLog  debug.Model
	closed    bool
}

// Option customises a Model.
type Option func(*Model)

// WithLogger sets the logger used for protocol events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Model) { m.log = l }
}

// New creates the root model. Nothing talks to the host until Init.
func New(host Host, consumer render.Consumer, opts ...Option) Model {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorPending)

	m := Model{
		host:      host,
		consumer:  consumer,
		log:       zerolog.Nop(),
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		figure:    resolve.NewFigure(host),
		spinner:   sp,
		statusBar: status.New(host.FigureID()),
		debugLog:  debug.New(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the figure resolver and listens for host pushes.
func (m Model) Init() tea.Cmd {
	// Init cannot keep state, so the figure resolver is started from Update.
	return tea.Batch(startCmd(), waitForPush(m.host.Pushes()), m.spinner.Tick)
}

type startMsg struct{}

func startCmd() tea.Cmd {
	return func() tea.Msg { return startMsg{} }
}

func waitForPush(ch <-chan protocol.HostMessage) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return hostClosedMsg{}
		}
		return hostPushMsg{msg: msg}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := m.update(msg)
	m.syncStatus()
	return m, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		if m.widget == nil {
			return m.mount()
		}
		return m.forward(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startMsg:
		return m.startFigure()

	case resolve.FigureResultMsg:
		if !m.figure.Owns(msg) {
			return m, nil
		}
		m.figure, _ = m.figure.Update(msg)
		return m.afterFigure()

	case resolve.ResourceResultMsg:
		if m.resource == nil || !m.resource.Owns(msg) {
			m.log.Debug().Str("uri", msg.URI).Msg("dropping stale resource result")
			return m, nil
		}
		r, _ := m.resource.Update(msg)
		m.resource = &r
		return m.afterResource()

	case hostPushMsg:
		m.debugLog.Addf(debug.KindPush, "%s", msg.msg.Type)
		m.log.Info().Str("type", msg.msg.Type).Msg("host push")
		if msg.msg.Type == protocol.HostClosing {
			m.closed = true
		}
		return m, waitForPush(m.host.Pushes())

	case hostClosedMsg:
		m.closed = true
		m.debugLog.Addf(debug.KindHost, "host channel closed")
		m.log.Info().Msg("host channel closed")
		return m, nil
	}

	return m.forward(msg)
}

func (m Model) startFigure() (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.figure, cmd = m.figure.Start(m.ctx)
	if cmd != nil {
		m.debugLog.Addf(debug.KindReq, "getFigureData")
	}
	return m, cmd
}

func (m Model) afterFigure() (Model, tea.Cmd) {
	switch m.figure.State() {
	case resolve.FigureErrored:
		m.debugLog.Addf(debug.KindErr, "%s", m.figure.Err())
		m.log.Warn().Str("error", m.figure.Err()).Msg("figure data failed")
		return m, nil
	case resolve.FigureLoaded:
	default:
		return m, nil
	}

	d := m.figure.Descriptor()
	m.debugLog.Addf(debug.KindResult, "figure data: %s", d.Type())
	m.log.Info().Str("type", d.Type()).Msg("figure data loaded")

	v := &resourceKeyer{m: &m}
	d.Accept(v)
	return m, v.cmd
}

// resourceKeyer starts resource resolution for the variants that need it.
type resourceKeyer struct {
	m   *Model
	cmd tea.Cmd
}

func (k *resourceKeyer) MultiscaleSpikeDensity(d figure.MultiscaleSpikeDensity) {
	k.cmd = k.m.keyResource(d.URI)
}

// Unsupported drops whatever a previous descriptor mounted.
func (k *resourceKeyer) Unsupported(figure.Unsupported) {
	if k.m.resource != nil {
		k.m.resource.Stop()
		k.m.resource = nil
	}
	k.m.unmount()
}

func (m *Model) keyResource(uri string) tea.Cmd {
	var (
		r   resolve.Resource
		cmd tea.Cmd
	)
	if m.resource == nil {
		r, cmd = resolve.NewResource(m.host, uri).Start(m.ctx)
	} else {
		r, cmd = m.resource.Rekey(m.ctx, uri)
	}
	m.resource = &r
	if cmd == nil {
		return nil
	}
	m.unmount()
	m.debugLog.Addf(debug.KindReq, "getFileDataUrl %s", uri)
	return cmd
}

func (m Model) afterResource() (Model, tea.Cmd) {
	switch m.resource.Status() {
	case resolve.Failed:
		m.debugLog.Addf(debug.KindErr, "%s", m.resource.Err())
		m.log.Warn().Str("uri", m.resource.Key()).Str("error", m.resource.Err()).Msg("file data url failed")
		return m, nil
	case resolve.Ready:
	default:
		return m, nil
	}

	locator := m.resource.Locator()
	m.debugLog.Addf(debug.KindResult, "fileDataUrl %s", locator)
	m.log.Info().Str("uri", m.resource.Key()).Str("url", locator).Msg("file data url resolved")
	return m.mount()
}

// mount hands the resolved locator to the consumer, once per locator. It
// waits for the first window size so the widget never starts at 0x0.
func (m Model) mount() (Model, tea.Cmd) {
	if m.consumer == nil || m.resource == nil || m.resource.Status() != resolve.Ready {
		return m, nil
	}
	if m.width == 0 || m.height == 0 {
		return m, nil
	}
	screen, ok := m.screen().(RenderScreen)
	if !ok || (m.widget != nil && m.mountedFor == screen.Props.MultiscaleSpikeDensityOutputURL) {
		return m, nil
	}
	m.scope = selection.New(0, 1)
	m.widget = m.consumer.Mount(screen.Props, m.scope)
	m.mountedFor = screen.Props.MultiscaleSpikeDensityOutputURL
	m.debugLog.Addf(debug.KindUI, "mounted %s", m.mountedFor)
	if m.widget == nil {
		return m, nil
	}
	return m, m.widget.Init()
}

func (m *Model) unmount() {
	m.widget = nil
	m.mountedFor = ""
	m.scope = nil
}

// remount drops the figure resolver and starts a fresh one. A resource that
// failed is dropped too so it is retried; a resolved one is kept and only
// re-keyed if the new descriptor names different content.
func (m Model) remount() (Model, tea.Cmd) {
	m.figure.Stop()
	m.figure = resolve.NewFigure(m.host)
	if m.resource != nil && m.resource.Status() == resolve.Failed {
		m.resource.Stop()
		m.resource = nil
	}
	m.debugLog.Addf(debug.KindUI, "remount")
	return m.startFigure()
}

func (m Model) forward(msg tea.Msg) (Model, tea.Cmd) {
	if m.widget == nil {
		return m, nil
	}
	var cmd tea.Cmd
	m.widget, cmd = m.widget.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Up):
			m.debugLog.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Down):
			m.debugLog.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Info):
		m.overlay = OverlayInfo
		return m, nil

	case key.Matches(msg, m.keys.Remount):
		return m.remount()
	}

	if m.scope == nil {
		return m.forward(msg)
	}
	switch {
	case key.Matches(msg, m.keys.PanLeft):
		m.scope.Pan(-panStep)
	case key.Matches(msg, m.keys.PanRight):
		m.scope.Pan(panStep)
	case key.Matches(msg, m.keys.ZoomIn):
		m.scope.Zoom(1 / zoomStep)
	case key.Matches(msg, m.keys.ZoomOut):
		m.scope.Zoom(zoomStep)
	case key.Matches(msg, m.keys.Reset):
		m.scope.Reset()
	default:
		return m.forward(msg)
	}
	return m, nil
}

func (m *Model) syncStatus() {
	m.statusBar.Listening = m.host.Active()
	m.statusBar.Closed = m.closed
	m.statusBar.FigureState = m.figure.State().String()
	switch {
	case m.resource == nil:
		m.statusBar.ResourceState = "idle"
	default:
		m.statusBar.ResourceState = m.resource.Status().String()
	}
}

// screen returns what the figure area currently shows.
func (m Model) screen() Screen {
	fig := FigureView{
		State:      m.figure.State(),
		Descriptor: m.figure.Descriptor(),
		Err:        m.figure.Err(),
	}
	var res *ResourceView
	if m.resource != nil {
		res = &ResourceView{
			Status:  m.resource.Status(),
			Locator: m.resource.Locator(),
			Err:     m.resource.Err(),
		}
	}
	return Dispatch(fig, res, Viewport{Width: m.width, Height: m.height})
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayDebug:
		body = m.debugLog.View(m.width, m.height-4)
	case OverlayInfo:
		body = info.View(m.details(), m.width)
	default:
		body = m.renderScreen(m.screen())
	}

	sections := []string{
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  h/l:pan  +/-:zoom  0:reset  i:info  d:log  r:remount  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderScreen(s Screen) string {
	switch s := s.(type) {
	case LoadingScreen:
		return m.spinner.View() + " Loading..."
	case ErrorScreen:
		return theme.StyleError.Render("Error: " + s.Message)
	case UnexpectedTypeScreen:
		return theme.StyleError.Render("Error: Unexpected figure type: " + s.Type)
	case ResourceLoadingScreen:
		return m.spinner.View() + " Loading file URL..."
	case ResourceErrorScreen:
		return theme.StyleError.Render("Error loading file URL: " + s.Message)
	case RenderScreen:
		if m.widget == nil {
			return m.spinner.View() + " Mounting..."
		}
		return m.widget.View()
	default:
		return fmt.Sprintf("unknown screen %T", s)
	}
}

func (m Model) details() info.Details {
	d := info.Details{FigureID: m.host.FigureID(), Width: m.width, Height: m.height}
	if desc := m.figure.Descriptor(); desc != nil {
		d.Type = desc.Type()
		d.Descriptor = desc.Raw()
		d.URI, _ = figure.URIOf(desc)
	}
	if m.resource != nil {
		d.Locator = m.resource.Locator()
	}
	return d
}
