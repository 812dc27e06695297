package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/figurl-view/figview/internal/bridge"
	"github.com/figurl-view/figview/internal/config"
	"github.com/figurl-view/figview/internal/contentstore"
	"github.com/figurl-view/figview/internal/figure"
	"github.com/figurl-view/figview/internal/host"
	"github.com/figurl-view/figview/internal/logging"
)

type demoHost struct {
	server *host.Server
	ln     net.Listener
	store  string
}

func (d *demoHost) Close() error {
	d.server.Close()
	d.ln.Close()
	return os.RemoveAll(d.store)
}

// startDemoHost ingests the files in dir and serves them from an in-process
// host. The first file becomes the spike density dataset of figureID.
func startDemoHost(ctx context.Context, dir, figureID string) (bridge.Transport, *demoHost, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("demo: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, fmt.Errorf("demo: %w", err)
	}
	store, err := os.MkdirTemp("", "figview-demo-*")
	if err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("demo: %w", err)
	}

	files, err := contentstore.OpenDir(store, "http://"+ln.Addr().String())
	if err != nil {
		ln.Close()
		os.RemoveAll(store)
		return nil, nil, fmt.Errorf("demo: %w", err)
	}

	cfg := config.DefaultHost()
	log := logging.Component("demo-host")
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		uri, err := files.Ingest(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("skipping file")
			continue
		}
		log.Info().Str("file", e.Name()).Str("uri", uri).Msg("ingested")
		if _, ok := cfg.Figures[figureID]; !ok {
			cfg.Figures[figureID] = map[string]any{"type": figure.TypeMultiscaleSpikeDensity, "uri": uri}
		}
	}

	server, err := host.NewServer(cfg, files, files, host.Options{Workers: 4, Logger: log})
	if err != nil {
		ln.Close()
		os.RemoveAll(store)
		return nil, nil, err
	}
	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	go func() {
		if err := http.Serve(ln, mux); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Msg("demo http server stopped")
		}
	}()

	viewerEnd, hostEnd := bridge.Pipe()
	go server.ServeTransport(ctx, hostEnd)

	return viewerEnd, &demoHost{server: server, ln: ln, store: store}, nil
}
