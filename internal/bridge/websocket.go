package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	dialBaseDelay = 1 * time.Second
	dialMaxDelay  = 30 * time.Second
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// WebSocket is a Transport over a gorilla/websocket connection.
type WebSocket struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu   sync.Mutex // serialises all conn writes (ping, messages)
	stopPing  context.CancelFunc
	closeOnce sync.Once
}

// DialOptions controls connection establishment.
type DialOptions struct {
	Token string
	// MaxElapsed bounds how long dialing keeps retrying. Zero retries until
	// ctx ends.
	MaxElapsed time.Duration
	Logger     zerolog.Logger
}

// DialWebSocket connects to a host, retrying the dial with exponential
// backoff. Only the connection is retried; requests sent over it never are.
func DialWebSocket(ctx context.Context, url string, opts DialOptions) (*WebSocket, error) {
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = dialBaseDelay
	policy.MaxInterval = dialMaxDelay
	policy.MaxElapsedTime = opts.MaxElapsed

	var conn *websocket.Conn
	attempt := 0
	dial := func() error {
		attempt++
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(fmt.Errorf("dial %s: unauthorized", url))
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		opts.Logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("ws dial failed")
	}

	if err := backoff.RetryNotify(dial, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return newWebSocket(conn, opts.Logger), nil
}

func newWebSocket(conn *websocket.Conn, log zerolog.Logger) *WebSocket {
	pingCtx, cancel := context.WithCancel(context.Background())
	w := &WebSocket{conn: conn, log: log, stopPing: cancel}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	go w.pingLoop(pingCtx)
	return w
}

// Send writes one text message.
func (w *WebSocket) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until the next message. Closing the transport unblocks it.
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close stops the ping loop and closes the connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.stopPing()
		w.writeMu.Lock()
		w.conn.SetWriteDeadline(time.Now().Add(time.Second))
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

func (w *WebSocket) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := w.conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				w.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
