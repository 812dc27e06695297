package bridge

import (
	"context"
	"sync"
)

// Transport carries whole messages between a viewer and its host. Receive is
// only ever called from one goroutine; Send may be called concurrently.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

const pipeBuffer = 16

type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory transports. Closing either end closes
// both.
func Pipe() (viewer, host Transport) {
	toHost := make(chan []byte, pipeBuffer)
	toViewer := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	viewer = &pipeEnd{in: toViewer, out: toHost, done: done, once: once}
	host = &pipeEnd{in: toHost, out: toViewer, done: done, once: once}
	return viewer, host
}

func (p *pipeEnd) Send(ctx context.Context, data []byte) error {
	msg := append([]byte(nil), data...)
	select {
	case <-p.done:
		return ErrTransportClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns messages already queued before reporting a closed pipe.
func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return nil, ErrTransportClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
