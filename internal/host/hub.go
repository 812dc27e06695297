package host

import (
	"errors"
	"sync"

	"github.com/figurl-view/figview/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sendBuffer = 64

var (
	errViewerClosed = errors.New("viewer closed")
	errViewerFull   = errors.New("viewer send buffer full")
)

// viewer is one connected figure viewer. Messages are queued on send and
// written by writePump.
type viewer struct {
	id    string
	send  chan []byte
	write func([]byte) error
	close func() error

	mu       sync.Mutex
	closed   bool
	figureID string
}

func newViewer(write func([]byte) error, closeConn func() error) *viewer {
	v := &viewer{
		id:    uuid.NewString(),
		send:  make(chan []byte, sendBuffer),
		write: write,
		close: closeConn,
	}
	go v.writePump()
	return v
}

func (v *viewer) writePump() {
	defer v.close()
	for msg := range v.send {
		if err := v.write(msg); err != nil {
			return
		}
	}
}

// enqueue queues data without blocking. It returns errViewerClosed once
// the viewer is gone and errViewerFull when it cannot keep up.
func (v *viewer) enqueue(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errViewerClosed
	}
	select {
	case v.send <- data:
		return nil
	default:
		return errViewerFull
	}
}

func (v *viewer) shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.send)
	}
}

func (v *viewer) setFigureID(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.figureID = id
}

func (v *viewer) FigureID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.figureID
}

// Hub is the set of connected viewers.
type Hub struct {
	mu      sync.RWMutex
	viewers map[*viewer]bool
	log     zerolog.Logger
	metrics *metrics
}

func newHub(log zerolog.Logger, m *metrics) *Hub {
	return &Hub{
		viewers: make(map[*viewer]bool),
		log:     log,
		metrics: m,
	}
}

func (h *Hub) add(v *viewer) {
	h.mu.Lock()
	h.viewers[v] = true
	n := len(h.viewers)
	h.mu.Unlock()
	h.metrics.viewers.Set(float64(n))
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		v.shutdown()
	}
	n := len(h.viewers)
	h.mu.Unlock()
	h.metrics.viewers.Set(float64(n))
}

// Push sends msg to every connected viewer. Viewers that cannot keep up are
// disconnected.
func (h *Hub) Push(msg protocol.HostMessage) {
	data, err := protocol.NewHostMessage(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("push marshal error")
		return
	}

	h.mu.RLock()
	viewers := make([]*viewer, 0, len(h.viewers))
	for v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		h.deliver(v, data)
	}
}

// deliver queues data for v and drops v if it is gone or too slow.
func (h *Hub) deliver(v *viewer, data []byte) error {
	err := v.enqueue(data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errViewerFull):
		h.log.Warn().Str("viewer", v.id).Msg("viewer too slow, disconnecting")
	default:
		h.log.Debug().Str("viewer", v.id).Msg("viewer gone, dropping message")
	}
	h.remove(v)
	return err
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Close tells every viewer the host is going away and disconnects them.
func (h *Hub) Close() {
	h.Push(protocol.HostMessage{Type: protocol.HostClosing})

	h.mu.Lock()
	for v := range h.viewers {
		delete(h.viewers, v)
		v.shutdown()
	}
	h.mu.Unlock()
	h.metrics.viewers.Set(0)
}
