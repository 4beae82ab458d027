package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scribeq/internal/api"
	"scribeq/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var transcriptOnly bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *queueSession) error {
				job, err := s.service.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case jsonOutput:
					return writeJSON(cmd, api.FromJob(job))
				case transcriptOnly:
					if job.Status != queue.StatusSucceeded {
						return fmt.Errorf("job %s has no transcript (status %s)", job.ID, job.Status)
					}
					_, err := io.WriteString(out, job.Transcript)
					if err == nil && !strings.HasSuffix(job.Transcript, "\n") {
						_, err = io.WriteString(out, "\n")
					}
					return err
				}
				for _, line := range describeJob(job) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	cmd.Flags().BoolVar(&transcriptOnly, "transcript", false, "Print only the transcript of a succeeded job")
	return cmd
}

func describeJob(job *queue.Job) []string {
	dto := api.FromJob(job)
	attempts := fmt.Sprintf("Attempts:     %d/%d", dto.Attempts, dto.MaxAttempts)
	if !job.Status.IsTerminal() && !job.AttemptsLeft() {
		attempts += " (limit reached)"
	}
	lines := []string{
		"ID:           " + dto.ID,
		"Status:       " + dto.Status,
		"Source:       " + dto.SourceURL,
		"Priority:     " + strconv.Itoa(dto.Priority),
		attempts,
	}
	optional := []struct {
		label string
		value string
	}{
		{"Submitter:    ", dto.SubmitterID},
		{"Worker:       ", dto.WorkerID},
		{"Created:      ", dto.CreatedAt},
		{"Updated:      ", dto.UpdatedAt},
		{"Started:      ", dto.StartedAt},
		{"Finished:     ", dto.FinishedAt},
		{"Last error:   ", dto.LastError},
	}
	for _, field := range optional {
		if field.value != "" {
			lines = append(lines, field.label+field.value)
		}
	}
	if dto.DurationSeconds != nil {
		lines = append(lines, fmt.Sprintf("Duration:     %ds", *dto.DurationSeconds))
	}
	if dto.SizeBytes != nil {
		lines = append(lines, fmt.Sprintf("Size:         %d bytes", *dto.SizeBytes))
	}
	if job.Status == queue.StatusSucceeded {
		format := dto.TranscriptFormat
		if format == "" {
			format = "unspecified format"
		}
		lines = append(lines, fmt.Sprintf("Transcript:   %d bytes, %s", len(dto.Transcript), format))
	}
	return lines
}

func newFinalizeCommand(ctx *commandContext) *cobra.Command {
	var req api.FinalizeRequest
	var transcriptFile string
	var duration int
	var size int64

	cmd := &cobra.Command{
		Use:   "finalize <id>",
		Short: "Record the outcome of a processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcriptFile != "" {
				if cmd.Flags().Changed("transcript") {
					return errors.New("--transcript and --transcript-file are mutually exclusive")
				}
				text, err := readTranscript(cmd, transcriptFile)
				if err != nil {
					return err
				}
				req.Transcript = text
			}
			if cmd.Flags().Changed("duration") {
				req.DurationSeconds = &duration
			}
			if cmd.Flags().Changed("size") {
				req.SizeBytes = &size
			}
			return ctx.withSession(cmd, func(s *queueSession) error {
				if err := s.service.Finalize(cmd.Context(), args[0], req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s marked %s\n", strings.TrimSpace(args[0]), strings.ToLower(strings.TrimSpace(req.Status)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Status, "status", "", "Terminal status: succeeded or failed")
	cmd.Flags().StringVar(&req.Transcript, "transcript", "", "Transcript text for a succeeded job")
	cmd.Flags().StringVar(&transcriptFile, "transcript-file", "", "Read the transcript from a file (- for stdin)")
	cmd.Flags().StringVar(&req.TranscriptFormat, "format", "", "Transcript format label (for example txt, srt, vtt)")
	cmd.Flags().StringVar(&req.Error, "error", "", "Failure description for a failed job")
	cmd.Flags().IntVar(&duration, "duration", 0, "Source media duration in seconds")
	cmd.Flags().Int64Var(&size, "size", 0, "Source media size in bytes")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func readTranscript(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read transcript from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript file: %w", err)
	}
	return string(data), nil
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	var (
		workerID   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "requeue <id>",
		Short: "Hand a processing job back to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *queueSession) error {
				id := strings.TrimSpace(args[0])
				status, err := s.service.Requeue(cmd.Context(), id, workerID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.RequeueResponse{ID: id, Status: string(status)})
				}
				out := cmd.OutOrStdout()
				if status == queue.StatusFailed {
					fmt.Fprintf(out, "Job %s failed: %s\n", id, queue.AttemptsExhaustedReason)
					return nil
				}
				fmt.Fprintf(out, "Job %s returned to the queue\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workerID, "worker", "w", "", "Worker currently holding the job")
	addJSONFlag(cmd, &jsonOutput)
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}
