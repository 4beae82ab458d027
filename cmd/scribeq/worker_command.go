package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scribeq/internal/api"
	"scribeq/internal/deps"
	"scribeq/internal/events"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
	"scribeq/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var workerID string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim and transcribe jobs in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("batch") {
				if batchSize < 1 {
					return fmt.Errorf("--batch must be at least 1")
				}
				cfg.Worker.BatchSize = batchSize
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("--batch %d: %w", batchSize, err)
				}
			}
			processor, err := worker.NewCommandProcessor(cfg)
			if err != nil {
				return fmt.Errorf("%w (set worker.command in the config file)", err)
			}
			for _, status := range deps.CheckBinaries(deps.WorkerRequirements(cfg)) {
				if !status.Available {
					return fmt.Errorf("%s unavailable: %s", strings.ToLower(status.Name), status.Detail)
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The worker is long running, so it logs at the configured level.
			logger, err := logging.NewFromConfig(cfg, "")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open queue store: %w", err)
			}
			defer store.Close()
			publisher := events.New(runCtx, cfg, logger)
			defer publisher.Close()

			service := api.NewQueueService(store, api.WithPublisher(publisher), api.WithLogger(logger))
			opts := []worker.Option{worker.WithID(workerID)}
			if strings.TrimSpace(cfg.Events.RedisAddr) != "" {
				subscriber := events.NewRedisSubscriber(cfg.Events)
				defer subscriber.Close()
				opts = append(opts, worker.WithWakeups(subscriber.Wakeups(runCtx)))
			}

			loop := worker.NewLoop(cfg, service, processor, logger, opts...)
			fmt.Fprintf(cmd.OutOrStdout(), "Worker %s running %s (Ctrl+C to stop)\n", loop.ID(), processor.Binary())
			if err := loop.Run(runCtx); err != nil {
				return err
			}
			status := loop.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Worker stopped: %d succeeded, %d failed\n", status.Succeeded, status.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workerID, "worker", "w", "", "Worker identity (defaults to worker.id or the host name)")
	cmd.Flags().IntVar(&batchSize, "batch", 0, "Jobs claimed per round (overrides worker.batch_size)")
	return cmd
}
