// Package config loads viewer and host settings from YAML or TOML files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ViewerConfig configures cmd/figview.
type ViewerConfig struct {
	Host     HostEndpoint `yaml:"host" toml:"host"`
	FigureID string       `yaml:"figure_id" toml:"figure_id"`
	LogFile  string       `yaml:"log_file" toml:"log_file"`
}

// HostEndpoint is where the viewer finds its host.
type HostEndpoint struct {
	URL   string `yaml:"url" toml:"url"`
	Token string `yaml:"token" toml:"token"`
	// DialMaxElapsed bounds connection establishment, not requests.
	DialMaxElapsed time.Duration `yaml:"dial_max_elapsed" toml:"dial_max_elapsed"`
}

// HostConfig configures cmd/figurl-host.
type HostConfig struct {
	Server  ServerConfig              `yaml:"server" toml:"server"`
	Content ContentConfig             `yaml:"content" toml:"content"`
	Figures map[string]map[string]any `yaml:"figures" toml:"figures"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" toml:"port"`
	Host           string   `yaml:"host" toml:"host"`
	PublicURL      string   `yaml:"public_url" toml:"public_url"`
	AuthToken      string   `yaml:"auth_token" toml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	Workers        int      `yaml:"workers" toml:"workers"`
}

type ContentConfig struct {
	Dir  string            `yaml:"dir" toml:"dir"`
	URLs map[string]string `yaml:"urls" toml:"urls"`
}

func defaultViewerConfig() *ViewerConfig {
	return &ViewerConfig{
		Host: HostEndpoint{
			URL:            "ws://127.0.0.1:8090/ws",
			DialMaxElapsed: 30 * time.Second,
		},
		FigureID: "default",
		LogFile:  "figview.log",
	}
}

func defaultHostConfig() *HostConfig {
	return &HostConfig{
		Server: ServerConfig{
			Port:    8090,
			Host:    "127.0.0.1",
			Workers: 16,
		},
		Content: ContentConfig{
			Dir:  "content",
			URLs: map[string]string{},
		},
		Figures: map[string]map[string]any{},
	}
}

// DefaultViewer returns the viewer defaults, used when no file is given.
func DefaultViewer() *ViewerConfig { return defaultViewerConfig() }

// DefaultHost returns the host defaults, used when no file is given.
func DefaultHost() *HostConfig { return defaultHostConfig() }

// LoadViewer reads a viewer config, filling unset fields with defaults.
func LoadViewer(path string) (*ViewerConfig, error) {
	cfg := defaultViewerConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadHost reads a host config, filling unset fields with defaults.
func LoadHost(path string) (*HostConfig, error) {
	cfg := defaultHostConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

// Validate reports settings the viewer cannot start with.
func (c *ViewerConfig) Validate() error {
	if c.Host.URL == "" {
		return fmt.Errorf("host.url is required")
	}
	if c.FigureID == "" {
		return fmt.Errorf("figure_id is required")
	}
	if c.Host.DialMaxElapsed < 0 {
		return fmt.Errorf("host.dial_max_elapsed must not be negative")
	}
	return nil
}

// Validate reports settings the host cannot start with.
func (c *HostConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive")
	}
	for id, fig := range c.Figures {
		if _, ok := fig["type"].(string); !ok {
			return fmt.Errorf("figures.%s: type must be a string", id)
		}
	}
	return nil
}

// BaseURL is the public HTTP origin that file URLs are built from.
func (c *HostConfig) BaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// FigureData returns the JSON descriptor configured for a figure ID, or nil
// when the host has nothing for it.
func (c *HostConfig) FigureData(figureID string) (json.RawMessage, error) {
	fig, ok := c.Figures[figureID]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(fig)
	if err != nil {
		return nil, fmt.Errorf("figure %s: %w", figureID, err)
	}
	return data, nil
}
