package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// StaticDir is the directory the single-page client is served from.
	// When empty, no static assets are served.
	StaticDir string `yaml:"static_dir"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		ListenAddr: ":5000",
	}
}

// Load builds the configuration in layers: defaults, then the YAML file at
// path (skipped when path is empty), then environment variables. Later
// layers win.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("PARLEY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PARLEY_STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}

	return cfg, nil
}
