package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 15 * time.Second

	DefaultDBHost         = "localhost"
	DefaultDBPort         = 5432
	DefaultDBUser         = "reminder"
	DefaultDBName         = "reminders"
	DefaultDBMaxOpenConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "reminder:"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "reminder-engine"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "reminder-exports"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "reminder"
	DefaultMetricsPath      = "/metrics"

	DefaultRegion           = "england-and-wales"
	DefaultConcurrency      = 8
	DefaultDailyAt          = "06:00"
	DefaultPromoteInterval  = 5 * time.Minute
	DefaultPromoteBatchSize = 500

	DefaultHolidaySource   = "govuk"
	DefaultHolidayCacheTTL = 24 * time.Hour

	DefaultSignalThreshold = 0.6

	DefaultLockBackend = "memory"
	DefaultLockTTL     = 30 * time.Second
)

// ApplyDefaults fills every zero-value field in cfg with the engine default.
// Fields already set by the caller are left unchanged so explicit
// configuration always wins.  Boolean defaults are registered on the viper
// instance instead, since false cannot be told apart from unset here.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = "standalone"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = time.Second
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = 24 * time.Hour
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Scheduling ────────────────────────────────────────────────────────────
	if cfg.Scheduling.Region == "" {
		cfg.Scheduling.Region = DefaultRegion
	}
	if cfg.Scheduling.Concurrency == 0 {
		cfg.Scheduling.Concurrency = DefaultConcurrency
	}
	if cfg.Scheduling.DailyAt == "" {
		cfg.Scheduling.DailyAt = DefaultDailyAt
	}
	if cfg.Scheduling.PromoteInterval == 0 {
		cfg.Scheduling.PromoteInterval = DefaultPromoteInterval
	}
	if cfg.Scheduling.PromoteBatchSize == 0 {
		cfg.Scheduling.PromoteBatchSize = DefaultPromoteBatchSize
	}

	// ── Holidays ──────────────────────────────────────────────────────────────
	if cfg.Holidays.Source == "" {
		cfg.Holidays.Source = DefaultHolidaySource
	}
	if cfg.Holidays.CacheTTL == 0 {
		cfg.Holidays.CacheTTL = DefaultHolidayCacheTTL
	}
	if cfg.Holidays.Timeout == 0 {
		cfg.Holidays.Timeout = 10 * time.Second
	}

	// ── Rollover ──────────────────────────────────────────────────────────────
	if cfg.Rollover.Concurrency == 0 {
		cfg.Rollover.Concurrency = cfg.Scheduling.Concurrency
	}

	// ── Signal ────────────────────────────────────────────────────────────────
	if cfg.Signal.Threshold == 0 {
		cfg.Signal.Threshold = DefaultSignalThreshold
	}

	// ── Credentials ───────────────────────────────────────────────────────────
	if cfg.Credentials.RequestTimeout == 0 {
		cfg.Credentials.RequestTimeout = 10 * time.Second
	}
	if cfg.Credentials.LockTTL == 0 {
		cfg.Credentials.LockTTL = 10 * time.Second
	}
	if cfg.Credentials.Skew == 0 {
		cfg.Credentials.Skew = time.Minute
	}

	// ── Lock ──────────────────────────────────────────────────────────────────
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = DefaultLockBackend
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = DefaultLockTTL
	}
	if cfg.Lock.RetryDelay == 0 {
		cfg.Lock.RetryDelay = 50 * time.Millisecond
	}
	if cfg.Lock.Namespace == "" {
		cfg.Lock.Namespace = "reminder"
	}
}
