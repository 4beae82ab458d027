package config

const (
	defaultConfigPath         = "~/.config/scribeq/config.toml"
	defaultDataDir            = "~/.local/share/scribeq"
	defaultLogDir             = "~/.local/share/scribeq/logs"
	defaultDatabaseDriver     = "sqlite"
	defaultMaxOpenConns       = 8
	defaultBusyTimeoutMS      = 5000
	defaultMaxAttempts        = 3
	defaultMaxClaimBatch      = 100
	defaultLeaseTimeout       = 7200
	defaultLeaseSweepInterval = 60
	defaultAPIBind            = "127.0.0.1:7490"
	defaultWorkerBatchSize    = 1
	defaultWorkerPollInterval = 5
	defaultWorkerRetry        = 10
	defaultWorkerJobTimeout   = 3600
	defaultTranscriptFormat   = "text"
	defaultRedisChannel       = "scribeq:jobs"
	defaultAMQPExchange       = "scribeq.jobs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Database: Database{
			Driver:        defaultDatabaseDriver,
			MaxOpenConns:  defaultMaxOpenConns,
			BusyTimeoutMS: defaultBusyTimeoutMS,
		},
		Queue: Queue{
			DefaultMaxAttempts: defaultMaxAttempts,
			MaxClaimBatch:      defaultMaxClaimBatch,
			EnforceMaxAttempts: true,
		},
		Lease: Lease{
			Timeout:       defaultLeaseTimeout,
			SweepInterval: defaultLeaseSweepInterval,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Worker: Worker{
			BatchSize:          defaultWorkerBatchSize,
			PollInterval:       defaultWorkerPollInterval,
			ErrorRetryInterval: defaultWorkerRetry,
			TranscriptFormat:   defaultTranscriptFormat,
			JobTimeout:         defaultWorkerJobTimeout,
		},
		Events: Events{
			RedisChannel: defaultRedisChannel,
			AMQPExchange: defaultAMQPExchange,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
