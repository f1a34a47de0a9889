package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/mdcollate/internal/core/config"
)

const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	// Populated by PersistentPreRunE for every subcommand.
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "mdcollate",
	Short:   "Schema-directed frontmatter aggregation",
	Long:    `mdcollate collects Markdown frontmatter into schema-shaped data: arrays of items, derived fields, counts and filters.`,
	Version: Version,

	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "run store URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings applies flags > environment > config file > defaults.
func loadSettings(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db-url") {
		loaded.Store.DBURL = dbURL
	}
	if flags.Changed("log-level") {
		loaded.Log.Level = strings.ToLower(logLevel)
	}
	if flags.Changed("log-format") {
		loaded.Log.Format = strings.ToLower(logFormat)
	}

	l, err := newLogger(loaded.Log)
	if err != nil {
		return err
	}

	cfg, logger = loaded, l
	return nil
}

// newLogger builds a stderr slog logger; stdout carries command output.
func newLogger(lc config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch lc.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected json or text)", lc.Format)
	}
}
