package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scribeq/internal/preflight"
)

var errUnhealthy = errors.New("queue is unhealthy")

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the job database, directories, and worker dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *queueSession) error {
				report, checkErr := s.service.Health(cmd.Context())
				if checkErr != nil {
					report.Healthy = false
					if report.Database.Error == "" {
						report.Database.Error = checkErr.Error()
					}
				}
				if jsonOutput {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
					if !report.Healthy {
						return errUnhealthy
					}
					return nil
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				db := report.Database
				fmt.Fprintln(out, "Database")
				fmt.Fprintln(out, renderStatusLine("Driver", statusInfo, db.Driver, colorize))
				fmt.Fprintln(out, renderStatusLine("Target", statusInfo, db.Target, colorize))
				fmt.Fprintln(out, renderStatusLine("Reachable", okOrError(db.Reachable), yesNo(db.Reachable), colorize))
				fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, strconv.Itoa(db.SchemaVersion), colorize))
				fmt.Fprintln(out, renderStatusLine("Jobs table", okOrError(db.TableExists), yesNo(db.TableExists), colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity", okOrError(db.IntegrityCheck), yesNo(db.IntegrityCheck), colorize))
				fmt.Fprintln(out, renderStatusLine("Total jobs", statusInfo, strconv.Itoa(db.TotalJobs), colorize))
				if db.Error != "" {
					kind := statusError
					if db.Transient {
						kind = statusWarn
					}
					fmt.Fprintln(out, renderStatusLine("Error", kind, db.Error, colorize))
				}

				fmt.Fprintln(out, "Preflight")
				for _, result := range preflight.RunAll(cmd.Context(), s.cfg) {
					kind := statusOK
					if !result.Passed {
						kind = statusError
						if result.Optional {
							kind = statusWarn
						}
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}

				if !report.Healthy {
					return errUnhealthy
				}
				fmt.Fprintln(out, renderStatusLine("Queue", statusOK, "healthy", colorize))
				return nil
			})
		},
	}

	addJSONFlag(cmd, &jsonOutput)
	return cmd
}
