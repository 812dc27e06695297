package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/figurl-view/figview/internal/config"
	"github.com/figurl-view/figview/internal/contentstore"
	"github.com/figurl-view/figview/internal/figure"
	"github.com/figurl-view/figview/internal/host"
	"github.com/figurl-view/figview/internal/logging"
	"github.com/figurl-view/figview/internal/prepare"
)

// fileList collects repeated -ingest flags.
type fileList []string

func (f *fileList) String() string     { return strings.Join(*f, ",") }
func (f *fileList) Set(v string) error { *f = append(*f, v); return nil }

func main() {
	configPath := flag.String("config", "", "Path to config file (.yaml or .toml)")
	port := flag.Int("port", 0, "Override server port")
	var ingest fileList
	flag.Var(&ingest, "ingest", "File to add to the content store (repeatable)")
	units := flag.String("prepare", "", "Units table JSON to bin into a multiscale spike density figure")
	binSize := flag.Float64("bin-size-ms", prepare.DefaultBinSizeMsec, "Finest bin width for -prepare, in milliseconds")
	figureID := flag.String("prepare-figure", "", "Serve the -prepare result under this figure ID")
	flag.Parse()

	logging.Configure(logging.ProfileRuntime, os.Stderr)
	log := logging.Component("figurl-host")

	cfg := config.DefaultHost()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadHost(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	files, err := contentstore.OpenDir(cfg.Content.Dir, cfg.BaseURL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open content store")
	}
	for _, path := range ingest {
		uri, err := files.Ingest(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("ingest failed")
		}
		fmt.Println(uri)
	}
	if *units != "" {
		res, err := prepareUnits(*units, *binSize, files)
		if err != nil {
			log.Fatal().Err(err).Str("file", *units).Msg("prepare failed")
		}
		fmt.Println(res.DescriptorURI)
		if *figureID != "" {
			if cfg.Figures == nil {
				cfg.Figures = map[string]map[string]any{}
			}
			cfg.Figures[*figureID] = map[string]any{"type": figure.TypeMultiscaleSpikeDensity, "uri": res.DataURI}
		}
	} else if *figureID != "" {
		log.Fatal().Msg("-prepare-figure needs -prepare")
	}
	log.Info().Int("blobs", files.Len()).Str("dir", cfg.Content.Dir).Msg("content store ready")

	resolver := contentstore.Chain{contentstore.Static(cfg.Content.URLs), files}
	server, err := host.NewServer(cfg, resolver, files, host.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Workers:        cfg.Server.Workers,
		Logger:         logging.Component("host"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	err = host.ListenAndServe(ctx, addr, mux, log)
	log.Info().Msg("shutting down")
	server.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func prepareUnits(path string, binSizeMsec float64, files *contentstore.Dir) (prepare.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return prepare.Result{}, err
	}
	defer f.Close()

	units, err := prepare.ReadUnits(f)
	if err != nil {
		return prepare.Result{}, err
	}
	return prepare.Run(units, binSizeMsec, files, logging.Component("prepare"))
}
