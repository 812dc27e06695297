package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/figurl-view/figview/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil || env.Type != protocol.EnvFigurlRequest {
				continue
			}
			resp, _ := protocol.NewResponse(env.RequestID, protocol.FigureDataResponse{
				Type:       protocol.ReqGetFigureData,
				FigureData: json.RawMessage(`{"type":"multiscale_spike_density","uri":"sha1://abc"}`),
			})
			conn.WriteMessage(websocket.TextMessage, resp)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := DialWebSocket(ctx, wsURL(srv), DialOptions{Token: "secret", MaxElapsed: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", <-gotAuth)

	b := New(ws, "fig-1")
	defer b.Close()
	require.NoError(t, b.Activate(ctx))

	d, err := b.RequestFigureDescriptor(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "multiscale_spike_density", d.Type())
}

func TestDialUnauthorizedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := DialWebSocket(context.Background(), wsURL(srv), DialOptions{MaxElapsed: 10 * time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Less(t, time.Since(start), 5*time.Second, "unauthorized dial should not be retried")
}

func TestDialGivesUpWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := DialWebSocket(ctx, "ws://127.0.0.1:1/ws", DialOptions{})
	assert.Error(t, err)
}
