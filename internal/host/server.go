// Package host is a figure host: it answers viewer requests over websocket
// or an in-process transport and serves content-addressed files.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/figurl-view/figview/internal/bridge"
	"github.com/figurl-view/figview/internal/contentstore"
	"github.com/figurl-view/figview/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

const (
	writeTimeout  = 10 * time.Second
	maxGoroutines = 10000
)

// Figures supplies the descriptor for a figure ID. A nil result means the
// host has nothing for it.
type Figures interface {
	FigureData(figureID string) (json.RawMessage, error)
}

// Options configures a Server.
type Options struct {
	AuthToken      string
	AllowedOrigins []string
	Workers        int
	Logger         zerolog.Logger
}

type Server struct {
	figures Figures
	content contentstore.Resolver
	files   *contentstore.Dir

	hub     *Hub
	pool    *ants.Pool
	metrics *metrics
	health  healthcheck.Handler
	log     zerolog.Logger

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

// NewServer creates a host. files may be nil when no blob directory is
// served.
func NewServer(figures Figures, content contentstore.Resolver, files *contentstore.Dir, opts Options) (*Server, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	log := opts.Logger
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error().Interface("panic", p).Msg("request handler panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	m := newMetrics()
	s := &Server{
		figures:        figures,
		content:        content,
		files:          files,
		hub:            newHub(log, m),
		pool:           pool,
		metrics:        m,
		health:         healthcheck.NewHandler(),
		log:            log,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	s.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	s.health.AddReadinessCheck("workers", func() error {
		if pool.IsClosed() {
			return errors.New("worker pool closed")
		}
		return nil
	})

	return s, nil
}

// Hub returns the set of connected viewers.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/files/", s.handleFile)
	mux.HandleFunc("/healthz", s.health.LiveEndpoint)
	mux.HandleFunc("/ready", s.health.ReadyEndpoint)
	mux.Handle("/metrics", s.metrics.handler())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	write := func(data []byte) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	v := newViewer(write, conn.Close)
	s.hub.add(v)
	s.log.Info().Str("viewer", v.id).Str("remote", r.RemoteAddr).Msg("viewer connected")

	go func() {
		defer func() {
			s.hub.remove(v)
			s.log.Info().Str("viewer", v.id).Msg("viewer disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.dispatch(v, data)
		}
	}()
}

// ServeTransport answers a single viewer over t until ctx ends or the
// transport closes.
func (s *Server) ServeTransport(ctx context.Context, t bridge.Transport) error {
	write := func(data []byte) error { return t.Send(ctx, data) }
	v := newViewer(write, t.Close)
	s.hub.add(v)
	defer s.hub.remove(v)

	for {
		data, err := t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		s.dispatch(v, data)
	}
}

func (s *Server) dispatch(v *viewer, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("viewer", v.id).Msg("dropping undecodable message")
		return
	}

	switch env.Type {
	case protocol.EnvViewerReady:
		v.setFigureID(env.FigureID)
		s.log.Info().Str("viewer", v.id).Str("figure", env.FigureID).Msg("viewer ready")
	case protocol.EnvFigurlRequest:
		if err := s.pool.Submit(func() { s.answer(v, env) }); err != nil {
			s.log.Error().Err(err).Str("request", env.RequestID).Msg("could not schedule request")
		}
	default:
		s.log.Debug().Str("type", string(env.Type)).Msg("ignoring message")
	}
}

func (s *Server) answer(v *viewer, env protocol.Envelope) {
	var req protocol.Request
	if err := json.Unmarshal(env.Request, &req); err != nil {
		s.log.Warn().Err(err).Str("request", env.RequestID).Msg("malformed request")
		return
	}
	s.metrics.requests.WithLabelValues(string(req.Type)).Inc()

	figureID := env.FigureID
	if figureID == "" {
		figureID = v.FigureID()
	}

	var resp interface{}
	switch req.Type {
	case protocol.ReqGetFigureData:
		data, err := s.figures.FigureData(figureID)
		if err != nil {
			s.log.Error().Err(err).Str("figure", figureID).Msg("figure data error")
			data = nil
		}
		if data == nil {
			s.log.Info().Str("figure", figureID).Msg("no figure data")
		}
		resp = protocol.FigureDataResponse{Type: req.Type, FigureData: data}

	case protocol.ReqGetFileDataURL:
		u, err := s.content.Resolve(req.URI)
		if err != nil {
			s.metrics.failures.WithLabelValues(failureReason(err)).Inc()
			s.log.Info().Err(err).Str("uri", req.URI).Msg("resolve failed")
			resp = protocol.FileDataURLResponse{Type: req.Type, ErrorMessage: err.Error()}
		} else {
			resp = protocol.FileDataURLResponse{Type: req.Type, FileDataURL: u}
		}

	default:
		s.log.Warn().Str("type", string(req.Type)).Msg("unknown request type")
		return
	}

	data, err := protocol.NewResponse(env.RequestID, resp)
	if err != nil {
		s.log.Error().Err(err).Msg("response marshal error")
		return
	}
	s.hub.deliver(v, data)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, contentstore.ErrMalformedURI):
		return "malformed"
	case errors.Is(err, contentstore.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.files == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	hash := strings.TrimPrefix(r.URL.Path, "/files/")
	f, err := s.files.Open(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, hash, info.ModTime(), f)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Figurl-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Close tells connected viewers the host is going away, disconnects them and
// stops the worker pool.
func (s *Server) Close() {
	s.hub.Close()
	s.pool.Release()
}

// ListenAndServe serves handler on addr until ctx ends.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
