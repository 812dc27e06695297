package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/figurl-view/figview/internal/app"
	"github.com/figurl-view/figview/internal/bridge"
	"github.com/figurl-view/figview/internal/config"
	"github.com/figurl-view/figview/internal/logging"
	"github.com/figurl-view/figview/internal/spikedensity"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (.yaml or .toml)")
	wsURL := flag.String("url", "", "WebSocket URL of the figure host")
	token := flag.String("token", "", "Auth token (if the host requires it)")
	figureID := flag.String("figure", "", "Figure ID to ask the host for")
	demoDir := flag.String("demo", "", "Serve the files in this directory from an in-process host")
	logPath := flag.String("log", "", "Log file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *wsURL != "" {
		cfg.Host.URL = *wsURL
	}
	if *token != "" {
		cfg.Host.Token = *token
	}
	if *figureID != "" {
		cfg.FigureID = *figureID
	}
	if *logPath != "" {
		cfg.LogFile = *logPath
	}

	logFile, err := logging.ConfigureFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(cfg, *demoDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.ViewerConfig, error) {
	if path == "" {
		return config.DefaultViewer(), nil
	}
	return config.LoadViewer(path)
}

func run(cfg *config.ViewerConfig, demoDir string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		transport bridge.Transport
		cleanup   io.Closer
		err       error
	)
	if demoDir != "" {
		transport, cleanup, err = startDemoHost(ctx, demoDir, cfg.FigureID)
		if err != nil {
			return err
		}
		defer cleanup.Close()
	} else {
		fmt.Fprintf(os.Stderr, "Connecting to %s...\n", cfg.Host.URL)
		transport, err = bridge.DialWebSocket(ctx, cfg.Host.URL, bridge.DialOptions{
			Token:      cfg.Host.Token,
			MaxElapsed: cfg.Host.DialMaxElapsed,
			Logger:     logging.Component("dial"),
		})
		if err != nil {
			return err
		}
	}

	b := bridge.New(transport, cfg.FigureID, bridge.WithLogger(logging.Component("bridge")))
	defer b.Close()

	consumer := spikedensity.NewConsumer(spikedensity.NewHTTPClient())
	m := app.New(b, consumer, app.WithLogger(logging.Component("app")))

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
