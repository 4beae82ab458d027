package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"scribeq/internal/config"
	"scribeq/internal/queue"
)

// URLPlaceholder is replaced by the job's source URL in command arguments.
const URLPlaceholder = "{url}"

// stderrTailLimit bounds the stderr excerpt carried into last_error.
const stderrTailLimit = 512

// Result is the outcome of a successful transcription. DurationSeconds and
// SizeBytes describe the source media when the processor knows them.
type Result struct {
	Transcript      string
	Format          string
	DurationSeconds *int
	SizeBytes       *int64
}

// Processor turns one claimed job into a transcript.
type Processor interface {
	Process(ctx context.Context, job *queue.Job) (Result, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *queue.Job) (Result, error)

func (f ProcessorFunc) Process(ctx context.Context, job *queue.Job) (Result, error) {
	return f(ctx, job)
}

// CommandProcessor runs an external command per job.
type CommandProcessor struct {
	argv   []string
	format string
}

// NewCommandProcessor builds a processor from worker.command.
func NewCommandProcessor(cfg *config.Config) (*CommandProcessor, error) {
	if cfg == nil || len(cfg.Worker.Command) == 0 || strings.TrimSpace(cfg.Worker.Command[0]) == "" {
		return nil, errors.New("worker.command is not configured")
	}
	argv := make([]string, len(cfg.Worker.Command))
	copy(argv, cfg.Worker.Command)
	return &CommandProcessor{argv: argv, format: cfg.Worker.TranscriptFormat}, nil
}

// Binary returns the configured executable.
func (p *CommandProcessor) Binary() string {
	return p.argv[0]
}

// Args returns the argument list for job, appending the source URL when no
// argument carries the placeholder.
func (p *CommandProcessor) Args(job *queue.Job) []string {
	args := make([]string, 0, len(p.argv))
	substituted := false
	for _, arg := range p.argv[1:] {
		if strings.Contains(arg, URLPlaceholder) {
			substituted = true
			arg = strings.ReplaceAll(arg, URLPlaceholder, job.SourceURL)
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, job.SourceURL)
	}
	return args
}

// Process runs the command and returns its stdout as the transcript.
func (p *CommandProcessor) Process(ctx context.Context, job *queue.Job) (Result, error) {
	cmd := exec.CommandContext(ctx, p.argv[0], p.Args(job)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("%s: %w", filepath.Base(p.argv[0]), ctxErr)
		}
		if tail := stderrTail(stderr.String()); tail != "" {
			return Result{}, fmt.Errorf("%s: %w: %s", filepath.Base(p.argv[0]), err, tail)
		}
		return Result{}, fmt.Errorf("%s: %w", filepath.Base(p.argv[0]), err)
	}

	transcript := strings.TrimRight(stdout.String(), "\r\n")
	if strings.TrimSpace(transcript) == "" {
		return Result{}, fmt.Errorf("%s: produced an empty transcript", filepath.Base(p.argv[0]))
	}
	return Result{Transcript: transcript, Format: p.format}, nil
}

func stderrTail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) <= stderrTailLimit {
		return stderr
	}
	return "..." + stderr[len(stderr)-stderrTailLimit:]
}
