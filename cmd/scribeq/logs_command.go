package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribeq/internal/logs"
)

const daemonLogPattern = "scribeqd-*.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var jobID string
	var path string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the newest scribeqd session log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(path)
			if target == "" {
				target, err = logs.Latest(cfg.Paths.LogDir, daemonLogPattern)
				if err != nil {
					return err
				}
				if target == "" {
					return fmt.Errorf("no daemon logs in %s", cfg.Paths.LogDir)
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return streamLog(runCtx, cmd.OutOrStdout(), target, lines, follow, jobID)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines mentioning this job id")
	cmd.Flags().StringVar(&path, "file", "", "Read this log file instead of the newest session log")
	return cmd
}

func streamLog(ctx context.Context, out io.Writer, path string, lines int, follow bool, filter string) error {
	filter = strings.TrimSpace(filter)
	emit := func(batch []string) {
		for _, line := range batch {
			if filter == "" || strings.Contains(line, filter) {
				fmt.Fprintln(out, line)
			}
		}
	}

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: lines})
	if err != nil {
		return err
	}
	emit(result.Lines)
	if !follow {
		return nil
	}

	offset := result.Offset
	for {
		result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: time.Second})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		emit(result.Lines)
		offset = result.Offset
		if ctx.Err() != nil {
			return nil
		}
	}
}
