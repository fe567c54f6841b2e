package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, ".crew", cfg.BoardDir)
	require.False(t, cfg.Debug)
	require.Equal(t, 0, cfg.HistoryLimit)
	require.Equal(t, 30, cfg.Idle.Ticks)
	require.Equal(t, 2*time.Second, cfg.Idle.Interval)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "negative idle ticks",
			mutate:  func(c *Config) { c.Idle.Ticks = -1 },
			wantErr: "idle.ticks",
		},
		{
			name:    "negative idle interval",
			mutate:  func(c *Config) { c.Idle.Interval = -time.Second },
			wantErr: "idle.interval",
		},
		{
			name:    "negative history limit",
			mutate:  func(c *Config) { c.HistoryLimit = -5 },
			wantErr: "history_limit",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Tracing.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Tracing.Exporter = "kafka" },
			wantErr: "exporter",
		},
		{
			name: "otlp requires endpoint when enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
				c.Tracing.OTLPEndpoint = ""
			},
			wantErr: "otlp_endpoint",
		},
		{
			name: "otlp endpoint optional when disabled",
			mutate: func(c *Config) {
				c.Tracing.Exporter = "otlp"
				c.Tracing.OTLPEndpoint = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "board_dir: .crew")

	// The template must be parseable YAML.
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Equal(t, ".crew", doc["board_dir"])
}
