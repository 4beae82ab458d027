package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLease(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		return nil
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("database.dsn is required for driver %s. Set SCRIBEQ_DATABASE_DSN env var or edit %s (create with 'scribeq config init')", c.Database.Driver, defaultPath)
		}
		return nil
	default:
		return fmt.Errorf("database.driver %q is not supported (use sqlite, postgres, or mysql)", c.Database.Driver)
	}
}

func (c *Config) validateQueue() error {
	if c.Queue.DefaultMaxAttempts < 1 {
		return errors.New("queue.default_max_attempts must be >= 1")
	}
	if c.Queue.MaxClaimBatch < 1 {
		return errors.New("queue.max_claim_batch must be >= 1")
	}
	return nil
}

func (c *Config) validateLease() error {
	if c.Lease.Timeout < 0 {
		return errors.New("lease.timeout must be >= 0")
	}
	if c.Lease.Timeout > 0 && c.Lease.SweepInterval <= 0 {
		return errors.New("lease.sweep_interval must be positive when lease.timeout is set")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !strings.Contains(c.API.Bind, ":") {
		return fmt.Errorf("api.bind %q must be host:port", c.API.Bind)
	}
	for _, origin := range c.API.CORSOrigins {
		if origin == "*" {
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("api.cors_origins entry %q must be an absolute origin", origin)
		}
	}
	return nil
}

func (c *Config) validateWorker() error {
	if err := ensurePositiveMap(map[string]int{
		"worker.batch_size":           c.Worker.BatchSize,
		"worker.poll_interval":        c.Worker.PollInterval,
		"worker.error_retry_interval": c.Worker.ErrorRetryInterval,
		"worker.job_timeout":          c.Worker.JobTimeout,
	}); err != nil {
		return err
	}
	if c.Worker.BatchSize > c.Queue.MaxClaimBatch {
		return fmt.Errorf("worker.batch_size must not exceed queue.max_claim_batch (%d)", c.Queue.MaxClaimBatch)
	}
	// A claimed batch is worked sequentially against one started_at, so the
	// lease has to outlive the whole batch.
	if budget := c.Worker.JobTimeout * c.Worker.BatchSize; c.Lease.Timeout > 0 && c.Lease.Timeout <= budget {
		return fmt.Errorf("lease.timeout (%ds) must exceed worker.job_timeout * worker.batch_size (%ds)", c.Lease.Timeout, budget)
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.RedisDB < 0 {
		return errors.New("events.redis_db must be >= 0")
	}
	if c.Events.AMQPURL != "" {
		parsed, err := url.Parse(c.Events.AMQPURL)
		if err != nil || (parsed.Scheme != "amqp" && parsed.Scheme != "amqps") {
			return errors.New("events.amqp_url must use the amqp or amqps scheme")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
