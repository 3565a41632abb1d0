// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package config loads node configuration from YAML with environment
// overrides for the values that differ per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML durations written as strings ("15s", "1m").
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level node configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Edge   EdgeConfig   `yaml:"edge"`
}

// ServerConfig configures the authoritative node.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// Store selects the record store backend: "pebble" or "postgres".
	Store       string   `yaml:"store"`
	PebbleDir   string   `yaml:"pebbleDir"`
	PostgresURL string   `yaml:"postgresUrl"`
	JWTSecret   string   `yaml:"jwtSecret"`
	Generate    Duration `yaml:"generateInterval"`
}

// EdgeConfig configures the edge node.
type EdgeConfig struct {
	Endpoint string   `yaml:"endpoint"`
	DBPath   string   `yaml:"dbPath"`
	Token    string   `yaml:"token"`
	Backoff  Duration `yaml:"reconnectBackoff"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8787",
			Store:      "pebble",
			PebbleDir:  "data/remote",
			Generate:   Duration(15 * time.Second),
		},
		Edge: EdgeConfig{
			Endpoint: "ws://127.0.0.1:8787/rpc",
			DBPath:   "data/edge.db",
			Backoff:  Duration(10 * time.Second),
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults. An
// empty path returns the defaults. Environment variables SQLWORKER_ADDR,
// SQLWORKER_ENDPOINT and SQLWORKER_JWT_SECRET override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if addr := os.Getenv("SQLWORKER_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if endpoint := os.Getenv("SQLWORKER_ENDPOINT"); endpoint != "" {
		cfg.Edge.Endpoint = endpoint
	}
	if secret := os.Getenv("SQLWORKER_JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	return cfg, nil
}
