// Package config provides environment-aware configuration loading for the
// lifecycle core, grounded on the teacher's pkg/config/config.go layering:
// an env-file loaded via godotenv, struct-tagged fields decoded via
// envdecode, in-code defaults for anything left unset, and an optional
// per-environment YAML override file on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	DSN             string `env:"DATABASE_DSN"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	MigrateOnStart  bool   `env:"DATABASE_MIGRATE_ON_START,default=true"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// LifecycleConfig carries the tunables named throughout spec.md that are
// not themselves entities but configuration knobs (reserve sizing,
// terminal lucidity window, strict-throttle switch).
type LifecycleConfig struct {
	AgentHome string `env:"AUTOMATON_HOME"`

	FrontierTurnCostCents  int64 `env:"LIFECYCLE_FRONTIER_TURN_COST_CENTS,default=50"`
	ReservedTurns          int64 `env:"LIFECYCLE_RESERVED_TURNS,default=5"`
	SandboxComputeCents    int64 `env:"LIFECYCLE_SANDBOX_COMPUTE_CENTS,default=25"`
	GasFeePerTransferCents int64 `env:"LIFECYCLE_GAS_FEE_PER_TRANSFER_CENTS,default=10"`
	MaxBequestTransfers    int64 `env:"LIFECYCLE_MAX_BEQUEST_TRANSFERS,default=5"`

	TerminalLucidityTurns int `env:"LIFECYCLE_TERMINAL_LUCIDITY_TURNS,default=5"`

	// StrictThrottleCaps resolves the Open Question in spec.md §9: the
	// default (false) adopts the no-hard-caps Genesis/Adolescence
	// throttle profile. Set true to restore the alternate hard-capped
	// behavior the original implementation also contained.
	StrictThrottleCaps bool `env:"LIFECYCLE_STRICT_THROTTLE_CAPS,default=false"`
}

// ServerConfig controls the status/health HTTP surface.
type ServerConfig struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `env:"SERVER_PORT,default=8089"`
}

// Config is the top-level configuration structure.
type Config struct {
	Env       string `env:"AUTOMATON_ENV,default=development"`
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Lifecycle LifecycleConfig
}

// Load loads configuration from an optional environment-specific .env file
// plus process environment variables, the way the teacher's config.Load
// resolves MARBLE_ENV before decoding.
func Load() (*Config, error) {
	env := strings.TrimSpace(os.Getenv("AUTOMATON_ENV"))
	if env == "" {
		env = "development"
	}

	envFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Lifecycle.AgentHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.Lifecycle.AgentHome = filepath.Join(home, ".automaton")
	}

	overrides, err := loadYAMLOverrides(env)
	if err != nil {
		return nil, fmt.Errorf("load yaml overrides: %w", err)
	}
	overrides.applyTo(&cfg)

	return &cfg, nil
}

// yamlOverrides is the optional per-environment tunable layer an operator
// can commit as config/<env>.yaml to pin a handful of knobs without
// redeploying .env files. Applied after env decoding, so these values
// win over env-sourced defaults — the opposite precedence of the .env
// file, which only fills in what the environment itself left unset.
type yamlOverrides struct {
	StrictThrottleCaps    *bool   `yaml:"strict_throttle_caps"`
	TerminalLucidityTurns *int    `yaml:"terminal_lucidity_turns"`
	AgentHome             *string `yaml:"agent_home"`
}

func loadYAMLOverrides(env string) (yamlOverrides, error) {
	var ov yamlOverrides
	path := filepath.Join("config", fmt.Sprintf("%s.yaml", env))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ov, nil
		}
		return ov, err
	}
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return ov, fmt.Errorf("parse %s: %w", path, err)
	}
	return ov, nil
}

func (ov yamlOverrides) applyTo(cfg *Config) {
	if ov.StrictThrottleCaps != nil {
		cfg.Lifecycle.StrictThrottleCaps = *ov.StrictThrottleCaps
	}
	if ov.TerminalLucidityTurns != nil {
		cfg.Lifecycle.TerminalLucidityTurns = *ov.TerminalLucidityTurns
	}
	if ov.AgentHome != nil {
		cfg.Lifecycle.AgentHome = *ov.AgentHome
	}
}

// SoulPath returns the path to the identity document under the agent home.
func (c *Config) SoulPath() string {
	return filepath.Join(c.Lifecycle.AgentHome, "SOUL.md")
}

// CreatorNotesPath returns the path to the creator notes document.
func (c *Config) CreatorNotesPath() string {
	return filepath.Join(c.Lifecycle.AgentHome, "CREATOR-NOTES.md")
}

// WillPath returns the path to the will document.
func (c *Config) WillPath() string {
	return filepath.Join(c.Lifecycle.AgentHome, "WILL.md")
}
