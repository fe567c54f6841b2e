// Package config provides configuration types and defaults for crew.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/crew/internal/log"
)

// Config holds all configuration options for crew.
type Config struct {
	// TeamsDir is the root directory for team state (configs and inboxes).
	// Default: ~/.crew/teams
	TeamsDir string `mapstructure:"teams_dir"`

	// BoardDir is the directory holding the shared task board database.
	// Default: .crew (current working directory)
	BoardDir string `mapstructure:"board_dir"`

	// Debug enables the debug log file.
	Debug bool `mapstructure:"debug"`

	// LogPath is the debug log location. Default: ~/.crew/crew.log
	LogPath string `mapstructure:"log_path"`

	// HistoryLimit is the conversation length that triggers history
	// compaction in agent loops. Zero means the agent default.
	HistoryLimit int `mapstructure:"history_limit"`

	Idle    IdleConfig    `mapstructure:"idle"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// IdleConfig controls the teammate idle loop: how many ticks make up one
// idle phase, and how long each tick lasts. A teammate that finds nothing
// during a phase re-enters its loop and keeps polling.
type IdleConfig struct {
	Ticks    int           `mapstructure:"ticks"`
	Interval time.Duration `mapstructure:"interval"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: ~/.crew/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// 1.0 = all traces, 0.1 = 10% of traces
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this process in exported traces.
	// Default: "crew"
	ServiceName string `mapstructure:"service_name"`
}

// DefaultTeamsDir returns ~/.crew/teams, or empty string if the home
// directory is unavailable.
func DefaultTeamsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".crew", "teams")
}

// DefaultLogPath returns ~/.crew/crew.log, or empty string if the home
// directory is unavailable.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".crew", "crew.log")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".crew", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		TeamsDir:     DefaultTeamsDir(),
		BoardDir:     ".crew",
		Debug:        false,
		LogPath:      DefaultLogPath(),
		HistoryLimit: 0,
		Idle: IdleConfig{
			Ticks:    30,
			Interval: 2 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from home dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "crew",
		},
	}
}

// Validate checks the configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func Validate(cfg Config) error {
	if cfg.Idle.Ticks < 0 {
		return fmt.Errorf("idle.ticks must be non-negative, got %d", cfg.Idle.Ticks)
	}
	if cfg.Idle.Interval < 0 {
		return fmt.Errorf("idle.interval must be non-negative, got %v", cfg.Idle.Interval)
	}
	if cfg.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be non-negative, got %d", cfg.HistoryLimit)
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Crew Configuration

# Root directory for team state: per-team configs and teammate inboxes
# teams_dir: ~/.crew/teams

# Directory holding the shared task board database (relative paths are
# resolved against the working directory)
board_dir: .crew

# Write a debug log to log_path
debug: false
# log_path: ~/.crew/crew.log

# Conversation length that triggers history compaction (0 = agent default)
history_limit: 0

# Teammate idle loop: one idle phase is idle.ticks sleeps of idle.interval;
# a teammate that finds nothing keeps polling phase after phase
idle:
  ticks: 30
  interval: 2s

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.crew/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#   service_name: crew             # Service name attached to exported spans
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
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
