// Package cmd provides the CLI commands for schoolctl.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/schoolms/portal-client/internal/client"
	"github.com/schoolms/portal-client/internal/infrastructure/config"
	"github.com/schoolms/portal-client/pkg/logger"
)

var (
	apiURL   string
	logLevel string
	pretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "schoolctl",
	Short: "schoolctl - school portal client",
	Long: `schoolctl talks to the school management API from a terminal.

It keeps the signed-in session between invocations, refreshes expired
access tokens transparently, and can run a local reference API.

Configuration:
  Settings come from environment variables, for example API_URL,
  STORE_BACKEND (file, memory, redis, mongo, sqlite) and DEMO_LOGIN.

Commands:
  login       Sign in and persist the session
  logout      Sign out and clear the stored session
  whoami      Show the signed-in user
  stats       Show dashboard statistics
  activity    Show recent activity
  events      Show upcoming events
  serve       Run the reference API
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides API_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-friendly log output")
}

// loadConfig reads the environment and applies CLI overrides, then
// initialises the process logger.
func loadConfig(ctx context.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFrom(ctx, envconfig.OsLookuper())
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	if apiURL != "" {
		cfg.API.URL = apiURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: pretty || cfg.LogPretty,
	})
	return cfg, log, nil
}

// withClient builds a client for the duration of fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	c, err := client.New(ctx, cfg, log, client.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("client close failed")
		}
	}()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
