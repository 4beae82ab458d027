package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scribeq/internal/api"
	"scribeq/internal/config"
	"scribeq/internal/events"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger builds the CLI logger. Without --verbose only warnings and errors
// reach stderr so command output stays readable.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if c.verbose != nil && *c.verbose {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// queueSession bundles the resources one command needs.
type queueSession struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	events  events.Publisher
	service *api.QueueService
}

func (s *queueSession) close() {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (c *commandContext) openSession(ctx context.Context) (*queueSession, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	publisher := events.New(ctx, cfg, logger)
	return &queueSession{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		events:  publisher,
		service: api.NewQueueService(store, api.WithPublisher(publisher), api.WithLogger(logger)),
	}, nil
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(*queueSession) error) error {
	session, err := c.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer session.close()
	return fn(session)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
