// Package config loads runlens configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the full runlens configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	History      HistoryConfig      `yaml:"history"`
	Engine       EngineConfig       `yaml:"engine"`
}

// ServerConfig configures the render API server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":7070".
	Addr string `yaml:"addr"`

	// CORSOrigins lists origins allowed to call the render API. Empty
	// means same-origin only; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

// OrchestratorConfig locates the upstream orchestrator.
type OrchestratorConfig struct {
	// BaseURL is the orchestrator's HTTP endpoint.
	BaseURL string `yaml:"base_url"`

	// UserID is forwarded on run start/resume calls.
	UserID string `yaml:"user_id"`
}

// HistoryConfig selects the rehydration history source.
type HistoryConfig struct {
	// Driver is one of "orchestrator" (fetch over HTTP), "sqlite", "mysql",
	// "memory".
	Driver string `yaml:"driver"`

	// DSN is the database location for sqlite (file path) or mysql (DSN).
	DSN string `yaml:"dsn"`
}

// EngineConfig tunes reconstruction behavior.
type EngineConfig struct {
	// AggregationSteps are the steps whose live output is mirrored into the
	// final-answer slot. Empty keeps the engine default.
	AggregationSteps []string `yaml:"aggregation_steps"`

	// ForkWindow is the latest-fork tagging window; nil keeps the default,
	// 0 disables tagging.
	ForkWindow *int `yaml:"fork_window"`
}

// Default returns a configuration suitable for local development against an
// orchestrator on localhost.
func Default() Config {
	return Config{
		Server:       ServerConfig{Addr: ":7070"},
		Orchestrator: OrchestratorConfig{BaseURL: "http://localhost:8080"},
		History:      HistoryConfig{Driver: "orchestrator"},
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result. A missing path yields the default configuration
// (still subject to overrides).
//
// Recognized environment variables:
//
//	RUNLENS_SERVER_ADDR
//	RUNLENS_ORCHESTRATOR_URL
//	RUNLENS_ORCHESTRATOR_USER
//	RUNLENS_HISTORY_DRIVER
//	RUNLENS_HISTORY_DSN
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RUNLENS_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RUNLENS_ORCHESTRATOR_URL"); v != "" {
		cfg.Orchestrator.BaseURL = v
	}
	if v := os.Getenv("RUNLENS_ORCHESTRATOR_USER"); v != "" {
		cfg.Orchestrator.UserID = v
	}
	if v := os.Getenv("RUNLENS_HISTORY_DRIVER"); v != "" {
		cfg.History.Driver = v
	}
	if v := os.Getenv("RUNLENS_HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.History.Driver {
	case "orchestrator", "memory", "":
	case "sqlite", "mysql":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn is required for driver %q", c.History.Driver)
		}
	default:
		return fmt.Errorf("unknown history driver %q", c.History.Driver)
	}
	if c.History.Driver == "orchestrator" && c.Orchestrator.BaseURL == "" {
		return fmt.Errorf("orchestrator.base_url is required when history comes from the orchestrator")
	}
	if c.Engine.ForkWindow != nil && *c.Engine.ForkWindow < 0 {
		return fmt.Errorf("engine.fork_window must be >= 0")
	}
	return nil
}
