package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/liverelay/internal/app"
	"github.com/nfrund/liverelay/internal/config"
	"github.com/nfrund/liverelay/internal/logging"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay server until interrupted.

Configuration is read from the environment and an optional .env file
(RELAY_ADDR, RELAY_API_KEYS, RELAY_API_KEYS_FILE, RELAY_BUFFER_CAPACITY, ...).

Examples:
  RELAY_API_KEYS=secret relay serve
  relay serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting relay", "addr", cfg.Addr, "version", app.Version)
	if err := a.Run(ctx); err != nil {
		logger.Error("Relay stopped with error", "error", err)
		return err
	}
	logger.Info("Relay stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides RELAY_ADDR)")
}
