// Package bridge is the viewer's only channel to its embedding host.
//
// A Bridge is built once by the application root and handed to whatever needs
// to talk to the host. Activate sends the one-time handshake and starts the
// receive loop; it is safe to call any number of times. Requests are
// correlated with responses by request ID. The bridge never retries and never
// times out a request: callers decide both through their context.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/figurl-view/figview/internal/figure"
	"github.com/figurl-view/figview/internal/protocol"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

const defaultPushBuffer = 32

// Bridge owns the listening state for one viewer session.
type Bridge struct {
	transport Transport
	figureID  string
	log       zerolog.Logger
	newID     func() string

	activateOnce sync.Once
	activateErr  error
	active       atomic.Bool

	// stateMu orders request registration against channel shutdown so a
	// request can never register after the pending table was drained.
	stateMu  sync.Mutex
	closed   bool
	closeErr error

	pending cmap.ConcurrentMap[string, chan protocol.Envelope]
	pushes  chan protocol.HostMessage

	loopCtx    context.Context
	loopStop   context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	finishOnce sync.Once
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithIDGenerator replaces the request ID source.
func WithIDGenerator(fn func() string) Option {
	return func(b *Bridge) { b.newID = fn }
}

// WithPushBuffer sets how many unread host pushes are kept before new ones
// are dropped.
func WithPushBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.pushes = make(chan protocol.HostMessage, n)
		}
	}
}

// New creates an inactive bridge over t for the given figure.
func New(t Transport, figureID string, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		transport: t,
		figureID:  figureID,
		log:       zerolog.Nop(),
		newID:     uuid.NewString,
		pending:   cmap.New[chan protocol.Envelope](),
		pushes:    make(chan protocol.HostMessage, defaultPushBuffer),
		loopCtx:   ctx,
		loopStop:  cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Activate announces the viewer to the host and starts listening. Only the
// first call does anything; every call returns the first call's result.
// The handshake is not tied to ctx's cancellation, so a caller that gives up
// early cannot fail activation for later callers.
func (b *Bridge) Activate(ctx context.Context) error {
	b.activateOnce.Do(func() {
		data, err := protocol.NewViewerReady(b.figureID)
		if err == nil {
			err = b.transport.Send(context.WithoutCancel(ctx), data)
		}
		if err != nil {
			b.activateErr = &HostCommunicationError{Op: "activate", Err: err}
			b.log.Error().Err(err).Msg("handshake failed")
			b.finish(err)
			return
		}
		b.active.Store(true)
		b.log.Info().Str("figure", b.figureID).Msg("listening to host")
		go b.receiveLoop()
	})
	return b.activateErr
}

// Active reports whether the handshake has been sent.
func (b *Bridge) Active() bool {
	return b.active.Load()
}

// FigureID returns the figure this bridge asks about.
func (b *Bridge) FigureID() string {
	return b.figureID
}

// Pushes delivers unsolicited host messages. It is closed when the channel
// to the host goes away.
func (b *Bridge) Pushes() <-chan protocol.HostMessage {
	return b.pushes
}

// Done is closed once the receive loop has stopped.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns why the channel closed, or nil while it is open.
func (b *Bridge) Err() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.closeErr
}

// Close shuts the channel. Pending requests fail with ErrClosed.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		// Consume the activation so it cannot start a receive loop after
		// this point.
		b.activateOnce.Do(func() {
			b.activateErr = &HostCommunicationError{Op: "activate", Err: ErrTransportClosed}
		})
		b.loopStop()
		err = b.transport.Close()
		if !b.active.Load() {
			b.finish(ErrTransportClosed)
		}
	})
	return err
}

// RequestFigureDescriptor asks the host what to render. A nil Descriptor
// with a nil error means the host answered with no data.
func (b *Bridge) RequestFigureDescriptor(ctx context.Context) (figure.Descriptor, error) {
	const op = "getFigureData"

	env, err := b.roundTrip(ctx, protocol.Request{Type: protocol.ReqGetFigureData})
	if err != nil {
		return nil, &HostCommunicationError{Op: op, Err: err}
	}

	var resp protocol.FigureDataResponse
	if err := json.Unmarshal(env.Response, &resp); err != nil {
		return nil, &HostCommunicationError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if protocol.IsEmpty(resp.FigureData) {
		return nil, nil
	}
	d, err := figure.Decode(resp.FigureData)
	if err != nil {
		return nil, &HostCommunicationError{Op: op, Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}
	return d, nil
}

// ResolveContentURI asks the host for a fetchable URL for a content
// identifier.
func (b *Bridge) ResolveContentURI(ctx context.Context, uri string) (string, error) {
	if uri == "" {
		return "", &ResourceResolutionError{URI: uri, Err: ErrMalformedURI}
	}

	env, err := b.roundTrip(ctx, protocol.Request{Type: protocol.ReqGetFileDataURL, URI: uri})
	if err != nil {
		return "", &ResourceResolutionError{URI: uri, Err: err}
	}

	var resp protocol.FileDataURLResponse
	if err := json.Unmarshal(env.Response, &resp); err != nil {
		return "", &ResourceResolutionError{URI: uri, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	switch {
	case resp.ErrorMessage != "":
		return "", &ResourceResolutionError{URI: uri, Err: fmt.Errorf("%w: %s", ErrHostRejected, resp.ErrorMessage)}
	case resp.FileDataURL == "":
		return "", &ResourceResolutionError{URI: uri, Err: fmt.Errorf("%w: empty fileDataUrl", ErrMalformed)}
	}
	return resp.FileDataURL, nil
}

func (b *Bridge) roundTrip(ctx context.Context, req protocol.Request) (protocol.Envelope, error) {
	if !b.active.Load() {
		return protocol.Envelope{}, ErrInactive
	}

	id := b.newID()
	data, err := protocol.NewRequest(b.figureID, id, req)
	if err != nil {
		return protocol.Envelope{}, err
	}

	ch := make(chan protocol.Envelope, 1)
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return protocol.Envelope{}, ErrClosed
	}
	b.pending.Set(id, ch)
	b.stateMu.Unlock()

	if err := b.transport.Send(ctx, data); err != nil {
		b.pending.Remove(id)
		return protocol.Envelope{}, err
	}
	b.log.Debug().Str("request", id).Str("type", string(req.Type)).Msg("request sent")

	select {
	case env, ok := <-ch:
		if !ok {
			return protocol.Envelope{}, ErrClosed
		}
		return env, nil
	case <-ctx.Done():
		b.pending.Remove(id)
		b.log.Debug().Str("request", id).Msg("request abandoned")
		return protocol.Envelope{}, ctx.Err()
	}
}

func (b *Bridge) receiveLoop() {
	for {
		data, err := b.transport.Receive(b.loopCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				err = ErrTransportClosed
			}
			b.log.Info().Err(err).Msg("host channel closed")
			b.finish(err)
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			b.log.Warn().Err(err).Msg("dropping undecodable message")
			continue
		}

		switch env.Type {
		case protocol.EnvFigurlResponse:
			ch, ok := b.pending.Pop(env.RequestID)
			if !ok {
				b.log.Debug().Str("request", env.RequestID).Msg("response for unknown request")
				continue
			}
			ch <- env

		case protocol.EnvHostMessage:
			var msg protocol.HostMessage
			if err := json.Unmarshal(env.Message, &msg); err != nil {
				b.log.Warn().Err(err).Msg("dropping malformed host message")
				continue
			}
			select {
			case b.pushes <- msg:
			default:
				b.log.Warn().Str("type", msg.Type).Msg("push buffer full, dropping host message")
			}

		default:
			b.log.Debug().Str("type", string(env.Type)).Msg("ignoring message")
		}
	}
}

// finish fails pending requests and closes pushes and done. It runs once,
// from whichever of a failed handshake, the receive loop or Close gets
// there first.
func (b *Bridge) finish(cause error) {
	b.finishOnce.Do(func() {
		b.shutdown(cause)
		close(b.pushes)
		close(b.done)
	})
}

func (b *Bridge) shutdown(cause error) {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return
	}
	b.closed = true
	b.closeErr = cause
	b.stateMu.Unlock()

	for _, id := range b.pending.Keys() {
		if ch, ok := b.pending.Pop(id); ok {
			close(ch)
		}
	}
}
