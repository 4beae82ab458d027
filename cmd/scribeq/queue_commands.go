package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"scribeq/internal/api"
	"scribeq/internal/lease"
	"scribeq/internal/queue"
	"scribeq/internal/worker"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var req api.EnqueueRequest
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Submit a media URL for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SourceURL = args[0]
			return ctx.withSession(cmd, func(s *queueSession) error {
				id, err := s.service.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.EnqueueResponse{ID: id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&req.Priority, "priority", "p", 1, "Job priority (higher is claimed first)")
	cmd.Flags().IntVar(&req.MaxAttempts, "max-attempts", 0, "Attempt limit (0 uses queue.default_max_attempts)")
	cmd.Flags().StringVar(&req.SubmitterID, "submitter", "", "Submitter identifier recorded on the job")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newClaimCommand(ctx *commandContext) *cobra.Command {
	var workerID string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim enqueued jobs for processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *queueSession) error {
				id := strings.TrimSpace(workerID)
				if id == "" {
					id = worker.ResolveID(s.cfg.Worker.ID)
				}
				jobs, err := s.service.Claim(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.ClaimResponse{Jobs: api.FromJobs(jobs)})
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs available")
					return nil
				}
				fmt.Fprintf(out, "Claimed %d job(s) as %s\n", len(jobs), id)
				fmt.Fprint(out, renderJobTable(jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workerID, "worker", "w", "", "Worker identity (defaults to worker.id or the host name)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 1, "Maximum number of jobs to claim")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{Limit: limit}
			for _, value := range statuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q (expected one of %s)", value, statusNames())
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withSession(cmd, func(s *queueSession) error {
				jobs, err := s.service.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.JobListResponse{Jobs: api.FromJobs(jobs)})
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					if len(filter.Statuses) > 0 {
						fmt.Fprintln(out, "No matching jobs")
					} else {
						fmt.Fprintln(out, "Queue is empty")
					}
					return nil
				}
				fmt.Fprint(out, renderJobTable(jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to show (0 shows all)")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *queueSession) error {
				counts, err := s.service.Stats(cmd.Context())
				if err != nil {
					return err
				}
				total := 0
				for _, count := range counts {
					total += count
				}
				if jsonOutput {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: counts, Total: total})
				}

				title := cases.Title(language.English)
				rows := make([][]string, 0, len(counts)+1)
				for _, status := range queue.AllStatuses() {
					rows = append(rows, []string{title.String(string(status)), strconv.Itoa(counts[string(status)])})
				}
				rows = append(rows, []string{"Total", strconv.Itoa(total)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim jobs whose processing lease expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *queueSession) error {
				sweeper := lease.NewSweeper(s.cfg, s.store, s.logger, lease.WithPublisher(s.events))
				out := cmd.OutOrStdout()
				if sweeper.Timeout() <= 0 {
					fmt.Fprintln(out, "Lease sweeping is disabled (lease.timeout = 0)")
					return nil
				}
				result, err := sweeper.SweepOnce(cmd.Context())
				if err != nil {
					return err
				}
				if result.Total() == 0 {
					fmt.Fprintf(out, "No leases older than %s\n", sweeper.Timeout())
					return nil
				}
				fmt.Fprintf(out, "Reclaimed %d job(s): %d requeued, %d failed\n", result.Total(), result.Requeued, result.Failed)
				return nil
			})
		},
	}
}

func renderJobTable(jobs []*queue.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			string(job.Status),
			strconv.Itoa(job.Priority),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
			job.WorkerID,
			api.FormatTime(job.UpdatedAt),
			truncate(job.SourceURL, 60),
		})
	}
	headers := []string{"ID", "Status", "Priority", "Attempts", "Worker", "Updated", "Source"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft}
	return renderTable(headers, rows, aligns) + "\n"
}

func statusNames() string {
	names := make([]string, 0, 4)
	for _, status := range queue.AllStatuses() {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
