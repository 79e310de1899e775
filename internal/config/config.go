// Package config provides configuration types and defaults for kai.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/kai/internal/log"
	"github.com/zjrosen/kai/internal/tracing"
)

// FileName is the config file name looked up in each config directory.
const FileName = "config.yaml"

// Config holds all configuration options for kai.
type Config struct {
	Workspace        string        `mapstructure:"workspace"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	RecyclerInterval time.Duration `mapstructure:"recycler_interval"`
	MaxRounds        int           `mapstructure:"max_rounds"`
	ProgressNotes    bool          `mapstructure:"progress_notes"`
	Debug            bool          `mapstructure:"debug"`

	Backend BackendConfig  `mapstructure:"backend"`
	Tracing tracing.Config `mapstructure:"tracing"`
	Stats   StatsConfig    `mapstructure:"stats"`
}

// BackendConfig configures the external agent CLI.
type BackendConfig struct {
	Command   string   `mapstructure:"command"`
	Model     string   `mapstructure:"model"`
	ExtraArgs []string `mapstructure:"extra_args"`
	// Timeout bounds one round. Zero means no limit.
	Timeout       time.Duration `mapstructure:"timeout"`
	ResumeMessage string        `mapstructure:"resume_message"`
}

// StatsConfig configures per-item stats.
type StatsConfig struct {
	// Ledger enables the sqlite ledger next to the stats files.
	Ledger bool `mapstructure:"ledger"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		PollInterval:     5 * time.Second,
		RetryInterval:    3 * time.Second,
		RecyclerInterval: 120 * time.Second,
		ProgressNotes:    true,
		Backend: BackendConfig{
			Command:       "agent",
			Model:         "auto",
			ExtraArgs:     []string{"--force", "--trust"},
			ResumeMessage: "continue",
		},
		Tracing: tracing.DefaultConfig(),
		Stats:   StatsConfig{Ledger: true},
	}
}

// PollFor returns the poll interval for an agent type. Recyclers scan
// every peer and poll less often.
func (c Config) PollFor(agentType string) time.Duration {
	if agentType == "recycler" && c.RecyclerInterval > 0 {
		return c.RecyclerInterval
	}
	return c.PollInterval
}

// Validate checks the configuration for errors. Zero values fall back to
// defaults and are accepted.
func (c Config) Validate() error {
	var errs []error
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"poll_interval", c.PollInterval},
		{"retry_interval", c.RetryInterval},
		{"recycler_interval", c.RecyclerInterval},
		{"backend.timeout", c.Backend.Timeout},
	} {
		if d.val < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", d.key, d.val))
		}
	}
	if c.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("max_rounds must not be negative, got %d", c.MaxRounds))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DefaultConfigTemplate returns the default config file content with comments.
func DefaultConfigTemplate() string {
	return `# kai configuration
# Every key is optional. Environment variables override it: KAI_POLL_INTERVAL,
# KAI_BACKEND_MODEL, ...

# Workspace root. Agents live under <workspace>/Kai/agents. Default: current directory.
# workspace: /path/to/project

# Time between trigger evaluations.
poll_interval: 5s

# Pause between rounds of a task that is not finished yet.
retry_interval: 3s

# Recyclers scan every peer's reports and poll less often.
recycler_interval: 120s

# Upper bound on rounds per task. 0 means no limit.
max_rounds: 0

# Append a progress note to the task after each unfinished round.
progress_notes: true

# Log at debug level.
debug: false

# External agent CLI, invoked as:
#   <command> --print --output-format stream-json [extra_args...] [--resume SID]
#             [--workspace W] [--model M] -- <prompt>
backend:
  command: agent
  model: auto
  extra_args: ["--force", "--trust"]
  # Per-round deadline. 0 means none.
  timeout: 0s
  # Sent instead of the prompt when a conversation is resumed.
  resume_message: continue

# Per-item stats are always written as <task>-stats.{json,md}. The ledger
# additionally records every item in stats/ledger.db for 'kai stats'.
stats:
  ledger: true

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: Kai/traces.jsonl    # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

// UserConfigDir returns ~/.config/kai, or "" if the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kai")
}
