package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/logging"
	"github.com/spf13/cobra"
)

var (
	envFiles  []string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "shopauth",
	Short: "Storefront authentication service",
	Long: `shopauth serves registration, login, token refresh, logout and password
reset over HTTP, backed by Redis and a SQL credential store.

Configuration comes from SHOPAUTH_* environment variables, optionally
preceded by .env files and a TOML file named by SHOPAUTH_CONFIG_FILE.

Environment Variables:
  LOG_LEVEL   debug, info, warn or error (default: info)
  LOG_FORMAT  text or json (default: text)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format, text or json (overrides LOG_FORMAT)")
}

// newLogger resolves the level and format from flags, then the environment.
func newLogger(w io.Writer) *slog.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	format := logFormat
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	return logging.New(w, level, format)
}

func loadConfig() (shopauth.Config, error) {
	cfg, err := shopauth.LoadConfig(envFiles...)
	if err != nil {
		return shopauth.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
