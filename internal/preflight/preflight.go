package preflight

import (
	"context"
	"strings"

	"scribeq/internal/config"
	"scribeq/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Event transports are only checked when configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, status := range deps.CheckBinaries(deps.WorkerRequirements(cfg)) {
		results = append(results, fromDependency(status))
	}
	if strings.TrimSpace(cfg.Events.RedisAddr) != "" {
		results = append(results, CheckRedis(ctx, cfg.Events))
	}
	if strings.TrimSpace(cfg.Events.AMQPURL) != "" {
		results = append(results, CheckAMQP(cfg.Events))
	}
	return results
}

// Failures returns the results that failed and are not optional.
func Failures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed && !result.Optional {
			failed = append(failed, result)
		}
	}
	return failed
}

func fromDependency(status deps.Status) Result {
	result := Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   status.Detail,
	}
	if status.Available {
		result.Detail = status.Command
	}
	return result
}
