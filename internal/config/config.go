// Package config loads circle-core's YAML configuration with environment
// overrides, grounded on theRebelliousNerd-codenerd/internal/config/config.go
// (a DefaultConfig constructor, yaml.Unmarshal over a root struct, then
// env-var overrides applied on top).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orincore/circle-core/internal/apperr"
)

// Config holds every environment-contract key, plus the operational knobs
// the background workers need.
type Config struct {
	StoreURL       string `yaml:"store_url"`
	CoordinatorURL string `yaml:"coordinator_url"`
	JWTSecret      string `yaml:"jwt_secret"`
	BindHost       string `yaml:"bind_host"`
	BindPort       int    `yaml:"bind_port"`
	WSPath         string `yaml:"ws_path"`
	CORSOrigin     string `yaml:"cors_origin"`

	Logging  LoggingConfig  `yaml:"logging"`
	Matching MatchingConfig `yaml:"matching"`
	Prompt   PromptConfig   `yaml:"prompt"`
	BlindDate BlindDateConfig `yaml:"blind_date"`
}

// LoggingConfig controls the internal/logging package.
type LoggingConfig struct {
	Debug   bool   `yaml:"debug"`
	Level   string `yaml:"level"`
	DataDir string `yaml:"data_dir"`
}

// MatchingConfig tunes the matchmaking engine.
type MatchingConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
	TicketTTL         time.Duration `yaml:"ticket_ttl"`
	ProposalWindow    time.Duration `yaml:"proposal_window"`
	ClaimTTL          time.Duration `yaml:"claim_ttl"`
}

// PromptConfig tunes the prompt matcher.
type PromptConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	ResponseWindow  time.Duration `yaml:"response_window"`
	RequestLifetime time.Duration `yaml:"request_lifetime"`
}

// BlindDateConfig tunes the blind-date session machine.
type BlindDateConfig struct {
	RevealThreshold   int           `yaml:"reveal_threshold"`
	ReminderInterval  time.Duration `yaml:"reminder_interval"`
	ReminderAfterIdle time.Duration `yaml:"reminder_after_idle"`
}

// Default returns sensible defaults for every tunable knob.
func Default() *Config {
	return &Config{
		BindHost: "0.0.0.0",
		BindPort: 8080,
		WSPath:   "/ws",
		Logging: LoggingConfig{
			Level:   "info",
			DataDir: "data",
		},
		Matching: MatchingConfig{
			HeartbeatInterval: 5 * time.Second,
			LeaseTTL:          15 * time.Second,
			TicketTTL:         2 * time.Minute,
			ProposalWindow:    30 * time.Second,
			ClaimTTL:          10 * time.Second,
		},
		Prompt: PromptConfig{
			TickInterval:    5 * time.Second,
			ResponseWindow:  60 * time.Second,
			RequestLifetime: time.Hour,
		},
		BlindDate: BlindDateConfig{
			RevealThreshold:   20,
			ReminderInterval:  6 * time.Hour,
			ReminderAfterIdle: 24 * time.Hour,
		},
	}
}

// Load reads a YAML config file (if present) over the defaults, then applies
// environment overrides. A missing JWTSecret after loading is fatal:
// unset jwt-secret must not silently start an unauthenticated server.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.JWTSecret == "" {
		return nil, apperr.New(apperr.FatalConfig, "jwt-secret is required")
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CIRCLE_STORE_URL"); v != "" {
		c.StoreURL = v
	}
	if v := os.Getenv("CIRCLE_COORDINATOR_URL"); v != "" {
		c.CoordinatorURL = v
	}
	if v := os.Getenv("CIRCLE_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("CIRCLE_BIND_HOST"); v != "" {
		c.BindHost = v
	}
	if v := os.Getenv("CIRCLE_BIND_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.BindPort = port
		}
	}
	if v := os.Getenv("CIRCLE_WS_PATH"); v != "" {
		c.WSPath = v
	}
	if v := os.Getenv("CIRCLE_CORS_ORIGIN"); v != "" {
		c.CORSOrigin = v
	}
	if v := os.Getenv("CIRCLE_LOG_DEBUG"); v == "true" || v == "1" {
		c.Logging.Debug = true
	}
}

// Save writes the config to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Addr returns the bind address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.BindPort)
}
