package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Database selects the job store backend.
type Database struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `toml:"driver"`
	// DSN is the connection string. For sqlite it is a file path and
	// defaults to <data_dir>/queue.db.
	DSN           string `toml:"dsn"`
	MaxOpenConns  int    `toml:"max_open_conns"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Queue contains claim and attempt accounting settings.
type Queue struct {
	DefaultMaxAttempts int  `toml:"default_max_attempts"`
	MaxClaimBatch      int  `toml:"max_claim_batch"`
	EnforceMaxAttempts bool `toml:"enforce_max_attempts"`
}

// Lease controls reclamation of jobs whose worker stopped reporting.
type Lease struct {
	// Timeout in seconds after started_at. Zero disables the sweeper.
	Timeout       int `toml:"timeout"`
	SweepInterval int `toml:"sweep_interval"`
}

// API contains HTTP surface settings.
type API struct {
	Bind        string   `toml:"bind"`
	Token       string   `toml:"token"`
	JWTSecret   string   `toml:"jwt_secret"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Worker contains settings for the built-in worker loop.
type Worker struct {
	ID                 string   `toml:"id"`
	BatchSize          int      `toml:"batch_size"`
	PollInterval       int      `toml:"poll_interval"`
	ErrorRetryInterval int      `toml:"error_retry_interval"`
	Command            []string `toml:"command"`
	TranscriptFormat   string   `toml:"transcript_format"`
	JobTimeout         int      `toml:"job_timeout"`
}

// Events contains optional event publication targets. Empty addresses
// disable the corresponding publisher.
type Events struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`
	AMQPURL       string `toml:"amqp_url"`
	AMQPExchange  string `toml:"amqp_exchange"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for scribeq.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Database: job store driver and connection string
//   - Queue: attempt defaults and claim batch limits
//   - Lease: processing lease timeout and sweep cadence
//   - API: HTTP bind address, authentication, CORS
//   - Worker: built-in worker loop
//   - Events: Redis and RabbitMQ publication
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Database Database `toml:"database"`
	Queue    Queue    `toml:"queue"`
	Lease    Lease    `toml:"lease"`
	API      API      `toml:"api"`
	Worker   Worker   `toml:"worker"`
	Events   Events   `toml:"events"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribeq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn
	}
	if c.Database.Driver == "" || c.Database.Driver == "sqlite" {
		return filepath.Join(c.Paths.DataDir, "queue.db")
	}
	return ""
}

// LockPath returns the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "scribeqd.lock")
}

// DaemonLogPath returns the per-session log file written by a daemon
// started at the given time.
func (c *Config) DaemonLogPath(started time.Time) string {
	return filepath.Join(c.Paths.LogDir, "scribeqd-"+started.UTC().Format("20060102T150405")+".log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
