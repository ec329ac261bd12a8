// Package main is the entry point for the memeindex CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixml/memeindex"
	"github.com/helixml/memeindex/internal/config"
	"github.com/helixml/memeindex/internal/log"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memeindex",
		Short: "Meme crawler, indexer and search server",
		Long: `memeindex crawls meme listings into a durable queue, indexes each post with a
title embedding and a hype score (score + 5 x comments), and serves hype-ranked
listing and semantic search over HTTP and MCP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("env-file", "", "Path to .env file (default: .env in current directory)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(indexCmd())
	cmd.AddCommand(crawlCmd())
	cmd.AddCommand(stdioCmd())
	cmd.AddCommand(downloadModelCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from the .env file and environment, then
// applies command line overrides.
func loadConfig(cmd *cobra.Command, overrides ...config.AppConfigOption) (config.AppConfig, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg.Apply(overrides...), nil
}

// newClient builds the logger and client shared by every command.
func newClient(cmd *cobra.Command, cfg config.AppConfig) (*memeindex.Client, *slog.Logger, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg).Slog()
	attrs := append([]slog.Attr{
		slog.String("command", cmd.Name()),
		slog.String("version", version),
	}, cfg.LogAttrs()...)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "starting memeindex", attrs...)

	client, err := memeindex.New(
		memeindex.WithAppConfig(cfg),
		memeindex.WithLogger(logger),
		memeindex.WithVersion(version),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create memeindex client: %w", err)
	}
	return client, logger, nil
}

func closeClient(client *memeindex.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close memeindex client", slog.Any("error", err))
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
