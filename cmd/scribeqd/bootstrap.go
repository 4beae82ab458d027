package main

import (
	"context"
	"fmt"
	"strings"

	"scribeq/internal/config"
	"scribeq/internal/daemon"
	"scribeq/internal/events"
	"scribeq/internal/worker"
)

// daemonOptions assembles the daemon options for cfg. The embedded worker
// is enabled when worker.command is set; with a Redis address it also wakes
// on queue events. The returned cleanup releases the subscriber.
func daemonOptions(ctx context.Context, cfg *config.Config, publisher events.Publisher, logPath string) ([]daemon.Option, func(), error) {
	opts := []daemon.Option{
		daemon.WithPublisher(publisher),
		daemon.WithLogPath(logPath),
	}
	cleanup := func() {}
	if len(cfg.Worker.Command) == 0 {
		return opts, cleanup, nil
	}

	processor, err := worker.NewCommandProcessor(cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("configure worker: %w", err)
	}
	var workerOpts []worker.Option
	if strings.TrimSpace(cfg.Events.RedisAddr) != "" {
		subscriber := events.NewRedisSubscriber(cfg.Events)
		workerOpts = append(workerOpts, worker.WithWakeups(subscriber.Wakeups(ctx)))
		cleanup = func() { _ = subscriber.Close() }
	}
	opts = append(opts, daemon.WithWorker(processor, workerOpts...))
	return opts, cleanup, nil
}
