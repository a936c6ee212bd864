package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk config.toml shape: where to reach the LLM
// gateway and how to serve the debug API.
type Config struct {
	Gateway struct {
		EmbeddingModel string `toml:"embedding_model"`
		BaseURL        string `toml:"base_url"`
		APIKey         string `toml:"api_key"`
	} `toml:"gateway"`
	Server struct {
		Addr           string `toml:"addr"`
		MetricsEnabled bool   `toml:"metrics_enabled"`
	} `toml:"server"`
}

func defaultConfig() Config {
	var c Config
	c.Gateway.BaseURL = "http://localhost:8080"
	c.Server.Addr = ":7420"
	c.Server.MetricsEnabled = true
	return c
}

// loadConfig reads config.toml from --config, or ~/.skillenginectl/config.toml
// if unset. A missing file at the default path is not an error; it just
// means the built-in defaults apply.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		candidate := filepath.Join(home, ".skillenginectl", "config.toml")
		if _, err := os.Stat(candidate); err != nil {
			return cfg, nil
		}
		path = candidate
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
