// Package config defines the configuration structures of the reminder engine.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	// JobSecret is the bearer token required by the /api/v1/jobs endpoints.
	JobSecret string `mapstructure:"job_secret"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	MigrateOnStart   bool          `mapstructure:"migrate_on_start"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Mode          string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr          string        `mapstructure:"addr"`
	MasterName    string        `mapstructure:"master_name"`
	SentinelAddrs []string      `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string      `mapstructure:"cluster_addrs"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	PoolSize      int           `mapstructure:"pool_size"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	TLSEnabled    bool          `mapstructure:"tls_enabled"`
	TLSCAFile     string        `mapstructure:"tls_ca_file"`
	TLSInsecure   bool          `mapstructure:"tls_insecure"`
}

// KafkaConfig holds Kafka producer and consumer parameters.
type KafkaConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	Acks              string        `mapstructure:"acks"`
	Compression       string        `mapstructure:"compression"`
	AutoOffsetReset   string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	AutoCreateTopics  bool          `mapstructure:"auto_create_topics"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	DeadLetterTopic   string        `mapstructure:"dead_letter_topic"`
	SASLMechanism     string        `mapstructure:"sasl_mechanism"`
	SASLUsername      string        `mapstructure:"sasl_username"`
	SASLPassword      string        `mapstructure:"sasl_password"`
	TLSEnabled        bool          `mapstructure:"tls_enabled"`
}

// MinIOConfig holds object-storage parameters for calendar exports.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	RetentionDays int           `mapstructure:"retention_days"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// SchedulingConfig drives queue building and the scheduler loop.
type SchedulingConfig struct {
	Region          string   `mapstructure:"region"`
	AdjustDeadlines []string `mapstructure:"adjust_deadlines"`
	ShiftSendDates  bool     `mapstructure:"shift_send_dates"`
	Concurrency     int      `mapstructure:"concurrency"`
	// DailyAt is the UTC wall-clock time ("HH:MM") of the daily process run.
	DailyAt          string        `mapstructure:"daily_at"`
	PromoteInterval  time.Duration `mapstructure:"promote_interval"`
	PromoteBatchSize int           `mapstructure:"promote_batch_size"`
}

// HolidaysConfig selects and tunes the bank-holiday source.
type HolidaysConfig struct {
	Source   string        `mapstructure:"source"` // "govuk" | "static"
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// ExtraDates adds YYYY-MM-DD dates per region; the key "all" applies to
	// every region.
	ExtraDates map[string][]string `mapstructure:"extra_dates"`
}

// RolloverConfig tunes the rollover executor.
type RolloverConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

// SignalConfig tunes keyword detection on inbound correspondence.
type SignalConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// CredentialsConfig configures the accounting-data connection refresh.
type CredentialsConfig struct {
	TokenURL       string        `mapstructure:"token_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Skew           time.Duration `mapstructure:"skew"`
}

// LockConfig selects the per-client lock backend.
type LockConfig struct {
	Backend    string        `mapstructure:"backend"` // "memory" | "redis" | "postgres"
	TTL        time.Duration `mapstructure:"ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Namespace  string        `mapstructure:"namespace"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration of every reminder binary.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Scheduling  SchedulingConfig  `mapstructure:"scheduling"`
	Holidays    HolidaysConfig    `mapstructure:"holidays"`
	Rollover    RolloverConfig    `mapstructure:"rollover"`
	Signal      SignalConfig      `mapstructure:"signal"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Lock        LockConfig        `mapstructure:"lock"`
}

// DailyAtTime parses Scheduling.DailyAt into hour and minute.
func (c *Config) DailyAtTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Scheduling.DailyAt)
	if err != nil {
		return 0, 0, fmt.Errorf("config: scheduling.daily_at %q is not HH:MM", c.Scheduling.DailyAt)
	}
	return t.Hour(), t.Minute(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("config: database.max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
	}

	// Redis
	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case "", "standalone":
			if c.Redis.Addr == "" {
				return fmt.Errorf("config: redis.addr is required when redis is enabled")
			}
		case "sentinel":
			if c.Redis.MasterName == "" || len(c.Redis.SentinelAddrs) == 0 {
				return fmt.Errorf("config: redis sentinel mode requires master_name and sentinel_addrs")
			}
		case "cluster":
			if len(c.Redis.ClusterAddrs) == 0 {
				return fmt.Errorf("config: redis cluster mode requires cluster_addrs")
			}
		default:
			return fmt.Errorf("config: redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
		}
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
	}
	switch c.Kafka.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("config: kafka.auto_offset_reset %q is invalid; expected earliest|latest", c.Kafka.AutoOffsetReset)
	}

	// MinIO
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}

	// Scheduling
	if c.Scheduling.Region == "" {
		return fmt.Errorf("config: scheduling.region is required")
	}
	if c.Scheduling.Concurrency < 1 {
		return fmt.Errorf("config: scheduling.concurrency must be >= 1, got %d", c.Scheduling.Concurrency)
	}
	if _, _, err := c.DailyAtTime(); err != nil {
		return err
	}
	if c.Scheduling.PromoteInterval <= 0 {
		return fmt.Errorf("config: scheduling.promote_interval must be positive")
	}

	// Holidays
	switch c.Holidays.Source {
	case "govuk", "static":
	default:
		return fmt.Errorf("config: holidays.source %q is invalid; expected govuk|static", c.Holidays.Source)
	}

	// Signal
	if c.Signal.Threshold <= 0 || c.Signal.Threshold > 1 {
		return fmt.Errorf("config: signal.threshold %.2f is out of range (0, 1]", c.Signal.Threshold)
	}

	// Lock
	switch c.Lock.Backend {
	case "memory", "postgres":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("config: lock.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("config: lock.backend %q is invalid; expected memory|redis|postgres", c.Lock.Backend)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// Redacted returns a copy with every secret masked, safe to log or print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return strings.Repeat("*", 8)
	}
	c.Server.JobSecret = mask(c.Server.JobSecret)
	c.Database.Password = mask(c.Database.Password)
	c.Redis.Password = mask(c.Redis.Password)
	c.Kafka.SASLPassword = mask(c.Kafka.SASLPassword)
	c.MinIO.SecretKey = mask(c.MinIO.SecretKey)
	c.Credentials.ClientSecret = mask(c.Credentials.ClientSecret)
	return c
}
