package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"scribeq/internal/config"
)

// Requirement defines an external binary scribeq relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// WorkerRequirements lists the binaries the built-in worker executes. The
// worker is optional, so an unset worker.command yields an optional entry.
func WorkerRequirements(cfg *config.Config) []Requirement {
	req := Requirement{
		Name:        "Transcriber",
		Description: "Runs once per claimed job; stdout becomes the transcript",
		Optional:    true,
	}
	if cfg != nil && len(cfg.Worker.Command) > 0 {
		req.Command = cfg.Worker.Command[0]
		req.Optional = false
	}
	return []Requirement{req}
}
