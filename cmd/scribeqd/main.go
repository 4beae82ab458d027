package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scribeq/internal/config"
	"scribeq/internal/daemon"
	"scribeq/internal/events"
	"scribeq/internal/logging"
	"scribeq/internal/preflight"
	"scribeq/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warn: load .env: %v\n", err)
	}

	var configPath string
	cmd := &cobra.Command{
		Use:           "scribeqd",
		Short:         "Run the transcription queue daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logPath := cfg.DaemonLogPath(time.Now())
	logger, err := logging.NewFromConfig(cfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if removed := logging.CleanupOldLogs(logger, cfg.Paths.LogDir, "scribeqd-*.log", cfg.Logging.RetentionDays, logPath); removed > 0 {
		logger.Info("removed old daemon logs", logging.Int("count", removed))
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}

	publisher := events.New(ctx, cfg, logger)
	opts, cleanup, err := daemonOptions(ctx, cfg, publisher, logPath)
	if err != nil {
		_ = publisher.Close()
		_ = store.Close()
		return err
	}
	defer cleanup()

	d, err := daemon.New(cfg, store, logger, opts...)
	if err != nil {
		_ = publisher.Close()
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon close", logging.Error(err))
		}
	}()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	for _, result := range preflight.Failures(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run scribeq health for details"),
		)
	}

	<-ctx.Done()
	logger.Info("scribeqd shutting down")
	return nil
}
