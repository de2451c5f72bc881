// Package bootstrap assembles the engine's object graph from configuration.
// Every binary builds its infrastructure and services here.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/redis"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/messaging/kafka"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/prometheus"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/storage/minio"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http/handlers"
)

// Infrastructure holds the external clients of one process.  Optional
// clients are nil when their section is disabled.
type Infrastructure struct {
	Postgres  *postgres.Connection
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Producer  *kafka.Producer
	Exports   *minio.ExportStore
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	logger  logging.Logger
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Open connects every enabled backend.  On failure the clients opened so far
// are closed again.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{logger: logger}

	if cfg.Metrics.Enabled {
		c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            cfg.Metrics.Subsystem,
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		infra.Collector = c
		infra.Metrics = prometheus.NewAppMetrics(c)
	}

	pgCfg := PostgresConfig(cfg.Database)
	if cfg.Database.MigrateOnStart {
		if err := postgres.RunMigrations(postgres.DSN(pgCfg)); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}
	conn, err := postgres.NewConnection(pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.Postgres = conn
	infra.onClose("postgres", conn.Close)

	if cfg.Lock.Backend == "postgres" {
		pool, err := postgres.NewPool(ctx, pgCfg)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("postgres lock pool: %w", err)
		}
		infra.Pool = pool
		infra.onClose("postgres lock pool", func() error { pool.Close(); return nil })
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(RedisConfig(cfg.Redis), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		infra.Redis = rc
		infra.onClose("redis", rc.Close)
	}

	if cfg.Kafka.Enabled {
		if cfg.Kafka.AutoCreateTopics {
			if err := ensureTopics(ctx, cfg.Kafka, logger); err != nil {
				infra.Close()
				return nil, err
			}
		}
		p, err := kafka.NewProducer(ProducerConfig(cfg.Kafka), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		infra.Producer = p
		infra.onClose("kafka producer", p.Close)
	}

	if cfg.MinIO.Enabled {
		store, err := minio.NewExportStore(ctx, MinIOConfig(cfg.MinIO), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.Exports = store
	}

	return infra, nil
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.ReplicationFactor)); err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	return nil
}

func (i *Infrastructure) onClose(name string, fn func() error) {
	i.closers = append(i.closers, namedCloser{name: name, fn: fn})
}

// Close releases every client in reverse opening order.  Errors are logged.
func (i *Infrastructure) Close() error {
	var first error
	for n := len(i.closers) - 1; n >= 0; n-- {
		c := i.closers[n]
		if err := c.fn(); err != nil {
			i.logger.Error("close failed", logging.String("component", c.name), logging.Err(err))
			if first == nil {
				first = err
			}
		}
	}
	i.closers = nil
	return first
}

// Publisher returns the Kafka event publisher, or a no-op when Kafka is off.
func (i *Infrastructure) Publisher() reminder.Publisher {
	if i.Producer == nil {
		return reminder.NopPublisher{}
	}
	return kafka.NewEventPublisher(i.Producer, i.logger)
}

// HealthCheckers lists a readiness check per connected backend.
func (i *Infrastructure) HealthCheckers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	if i.Postgres != nil {
		out = append(out, handlers.CheckFunc{Component: "postgres", Fn: i.Postgres.HealthCheck})
	}
	if i.Pool != nil {
		out = append(out, handlers.CheckFunc{Component: "postgres_locks", Fn: i.Pool.Ping})
	}
	if i.Redis != nil {
		out = append(out, handlers.CheckFunc{Component: "redis", Fn: i.Redis.HealthCheck})
	}
	if i.Exports != nil {
		out = append(out, handlers.CheckFunc{Component: "minio", Fn: i.Exports.HealthCheck})
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Config mapping
// ─────────────────────────────────────────────────────────────────────────────

// PostgresConfig maps the database section onto the connection settings.
func PostgresConfig(c config.DatabaseConfig) postgres.PostgresConfig {
	return postgres.PostgresConfig{
		Host:             c.Host,
		Port:             c.Port,
		Database:         c.DBName,
		Username:         c.User,
		Password:         c.Password,
		SSLMode:          c.SSLMode,
		MaxOpenConns:     c.MaxOpenConns,
		MaxIdleConns:     c.MaxIdleConns,
		ConnMaxLifetime:  c.ConnMaxLifetime,
		ConnMaxIdleTime:  c.ConnMaxIdleTime,
		StatementTimeout: c.StatementTimeout,
		LockTimeout:      c.LockTimeout,
	}
}

func RedisConfig(c config.RedisConfig) *redis.RedisConfig {
	mode := c.Mode
	if mode == "" {
		mode = "standalone"
	}
	return &redis.RedisConfig{
		Mode:          mode,
		Addr:          c.Addr,
		MasterName:    c.MasterName,
		SentinelAddrs: c.SentinelAddrs,
		ClusterAddrs:  c.ClusterAddrs,
		Username:      c.Username,
		Password:      c.Password,
		DB:            c.DB,
		KeyPrefix:     c.KeyPrefix,
		PoolSize:      c.PoolSize,
		DialTimeout:   c.DialTimeout,
		ReadTimeout:   c.ReadTimeout,
		WriteTimeout:  c.WriteTimeout,
		TLSEnabled:    c.TLSEnabled,
		TLSCAFile:     c.TLSCAFile,
		TLSInsecure:   c.TLSInsecure,
	}
}

func ProducerConfig(c config.KafkaConfig) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:          c.Brokers,
		Acks:             c.Acks,
		MaxRetries:       c.MaxRetries,
		CompressionCodec: c.Compression,
		SASLEnabled:      c.SASLMechanism != "",
		SASLMechanism:    c.SASLMechanism,
		SASLUsername:     c.SASLUsername,
		SASLPassword:     c.SASLPassword,
		TLSEnabled:       c.TLSEnabled,
	}
}

// ConsumerConfig subscribes the engine's consumer group to topics.  Records
// that keep failing go to the delivery dead-letter topic.
func ConsumerConfig(c config.KafkaConfig, topics ...string) kafka.ConsumerConfig {
	dlq := c.DeadLetterTopic
	if dlq == "" {
		dlq = kafka.TopicDeadLetterDelivery
	}
	return kafka.ConsumerConfig{
		Brokers:         c.Brokers,
		GroupID:         c.GroupID,
		Topics:          topics,
		AutoOffsetReset: c.AutoOffsetReset,
		SASLEnabled:     c.SASLMechanism != "",
		SASLMechanism:   c.SASLMechanism,
		SASLUsername:    c.SASLUsername,
		SASLPassword:    c.SASLPassword,
		TLSEnabled:      c.TLSEnabled,
		Retry: kafka.RetryConfig{
			MaxRetries:      c.MaxRetries,
			RetryBackoff:    c.RetryBackoff,
			DeadLetterTopic: dlq,
		},
	}
}

func MinIOConfig(c config.MinIOConfig) *minio.MinIOConfig {
	return &minio.MinIOConfig{
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKey,
		SecretAccessKey: c.SecretKey,
		UseSSL:          c.UseSSL,
		Region:          c.Region,
		ExportBucket:    c.Bucket,
		ExportRetention: c.RetentionDays,
		PresignExpiry:   c.PresignExpiry,
	}
}
