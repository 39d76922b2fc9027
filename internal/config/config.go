package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/nidhogg/neuroworld/internal/brain"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig   `json:"server"`
	Brain     brain.Config   `json:"brain"`
	Database  DatabaseConfig `json:"database"`
	Runtime   RuntimeConfig  `json:"runtime"`
	Bootstrap Bootstrap      `json:"bootstrap"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type RuntimeConfig struct {
	TickIntervalMs int    `json:"tick_interval_ms"`
	CheckpointPath string `json:"checkpoint_path"`
}

// Bootstrap describes the initial substrate built at startup.
type Bootstrap struct {
	Regions     []RegionSpec      `json:"regions"`
	Connections []ConnectionSpec  `json:"connections"`
	Modalities  map[string]string `json:"modalities"` // modality -> region name
}

type RegionSpec struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
	Neurons int    `json:"neurons"`
}

type ConnectionSpec struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Density   float64 `json:"density"`
	WeightMin float64 `json:"weight_min"`
	WeightMax float64 `json:"weight_max"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Config{Brain: brain.DefaultConfig()}
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Runtime.TickIntervalMs <= 0 {
		cfg.Runtime.TickIntervalMs = 50
	}
	return &cfg, nil
}
