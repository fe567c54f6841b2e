// Package cmd wires the crew CLI: configuration loading, logging, and
// the board subcommand.
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/crew/internal/config"
	"github.com/zjrosen/crew/internal/log"
	"github.com/zjrosen/crew/internal/tracing"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config

	logCleanup      func()
	tracingProvider *tracing.Provider
)

var rootCmd = &cobra.Command{
	Use:     "crew",
	Short:   "Coordination substrate for multi-agent coding assistants",
	Long: `crew runs the plumbing a team of coding agents shares: detached
background tasks with a drain-once notification bus, durable teammate
inboxes, and a sqlite task board.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .crew/config.yaml, then ~/.config/crew/config.yaml)")
	rootCmd.PersistentFlags().String("teams-dir", "",
		"root directory for team state")
	rootCmd.PersistentFlags().String("board-dir", "",
		"directory holding the task board database")
	rootCmd.PersistentFlags().Bool("debug", false,
		"write a debug log to log_path")

	_ = viper.BindPFlag("teams_dir", rootCmd.PersistentFlags().Lookup("teams-dir"))
	_ = viper.BindPFlag("board_dir", rootCmd.PersistentFlags().Lookup("board-dir"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("teams_dir", defaults.TeamsDir)
	viper.SetDefault("board_dir", defaults.BoardDir)
	viper.SetDefault("log_path", defaults.LogPath)
	viper.SetDefault("history_limit", defaults.HistoryLimit)
	viper.SetDefault("idle.ticks", defaults.Idle.Ticks)
	viper.SetDefault("idle.interval", defaults.Idle.Interval)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .crew/config.yaml (current directory)
		// 2. ~/.config/crew/config.yaml (user config)
		if _, err := os.Stat(".crew/config.yaml"); err == nil {
			viper.SetConfigFile(".crew/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "crew"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere: create a default at .crew/config.yaml.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := filepath.Join(".crew", "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If the write fails, continue with defaults.
		}
	}

	_ = viper.Unmarshal(&cfg)

	if cfg.Debug || os.Getenv("CREW_DEBUG") != "" {
		if cleanup, err := log.Init(cfg.LogPath); err == nil {
			logCleanup = cleanup
		}
	}

	initTracing()
}

// initTracing builds the trace provider from config. Disabled tracing
// yields a no-op provider; a broken tracing config is logged, not fatal.
func initTracing() {
	filePath := cfg.Tracing.FilePath
	if filePath == "" {
		filePath = config.DefaultTracesFilePath()
	}

	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     filePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		log.ErrorErr(log.CatConfig, "tracing init failed", err, "exporter", cfg.Tracing.Exporter)
		return
	}
	tracingProvider = provider
}

// tracer returns the process tracer; no-op before init or after a failed
// init.
func tracer() trace.Tracer {
	if tracingProvider != nil {
		return tracingProvider.Tracer()
	}
	return noop.NewTracerProvider().Tracer("noop")
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if tracingProvider != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = tracingProvider.Shutdown(ctx)
			cancel()
		}
		if logCleanup != nil {
			logCleanup()
		}
	}()
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
