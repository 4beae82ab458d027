package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeAPI()
	c.normalizeWorker()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = "sqlite"
	case "postgresql", "pgx":
		c.Database.Driver = "postgres"
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("SCRIBEQ_DATABASE_DSN"); ok {
			c.Database.DSN = strings.TrimSpace(value)
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN != "" && !strings.Contains(c.Database.DSN, "?") {
		expanded, err := expandPath(c.Database.DSN)
		if err != nil {
			return fmt.Errorf("database.dsn: %w", err)
		}
		c.Database.DSN = expanded
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if c.Database.BusyTimeoutMS <= 0 {
		c.Database.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.DefaultMaxAttempts <= 0 {
		c.Queue.DefaultMaxAttempts = defaultMaxAttempts
	}
	if c.Queue.MaxClaimBatch <= 0 {
		c.Queue.MaxClaimBatch = defaultMaxClaimBatch
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("SCRIBEQ_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	c.API.JWTSecret = strings.TrimSpace(c.API.JWTSecret)
	if c.API.JWTSecret == "" {
		if value, ok := os.LookupEnv("SCRIBEQ_JWT_SECRET"); ok {
			c.API.JWTSecret = strings.TrimSpace(value)
		}
	}
	origins := make([]string, 0, len(c.API.CORSOrigins))
	for _, origin := range c.API.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.API.CORSOrigins = origins
}

func (c *Config) normalizeWorker() {
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = defaultWorkerBatchSize
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaultWorkerPollInterval
	}
	if c.Worker.ErrorRetryInterval <= 0 {
		c.Worker.ErrorRetryInterval = defaultWorkerRetry
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = defaultWorkerJobTimeout
	}
	c.Worker.TranscriptFormat = strings.ToLower(strings.TrimSpace(c.Worker.TranscriptFormat))
	if c.Worker.TranscriptFormat == "" {
		c.Worker.TranscriptFormat = defaultTranscriptFormat
	}
}

func (c *Config) normalizeEvents() {
	c.Events.RedisAddr = strings.TrimSpace(c.Events.RedisAddr)
	if c.Events.RedisAddr == "" {
		if value, ok := os.LookupEnv("SCRIBEQ_REDIS_ADDR"); ok {
			c.Events.RedisAddr = strings.TrimSpace(value)
		}
	}
	c.Events.RedisChannel = strings.TrimSpace(c.Events.RedisChannel)
	if c.Events.RedisChannel == "" {
		c.Events.RedisChannel = defaultRedisChannel
	}
	c.Events.AMQPURL = strings.TrimSpace(c.Events.AMQPURL)
	if c.Events.AMQPURL == "" {
		if value, ok := os.LookupEnv("SCRIBEQ_AMQP_URL"); ok {
			c.Events.AMQPURL = strings.TrimSpace(value)
		}
	}
	c.Events.AMQPExchange = strings.TrimSpace(c.Events.AMQPExchange)
	if c.Events.AMQPExchange == "" {
		c.Events.AMQPExchange = defaultAMQPExchange
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
