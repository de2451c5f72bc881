package postgres

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// NewPool opens a pgx pool for session-scoped work such as advisory locks.
func NewPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}
	return pool, nil
}

// poolConfig parses the DSN shared with the database/sql pool.
func poolConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "invalid pool configuration")
	}
	configurePool(poolCfg, cfg)
	return poolCfg, nil
}

func configurePool(poolCfg *pgxpool.Config, cfg PostgresConfig) {
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// AdvisoryLocker
// ─────────────────────────────────────────────────────────────────────────────

// AdvisoryLocker serialises work on one client across processes with a
// session-level pg_advisory_lock.  The pooled connection stays checked out
// until unlock.
type AdvisoryLocker struct {
	pool      *pgxpool.Pool
	namespace string
	logger    logging.Logger
}

// NewAdvisoryLocker creates a locker whose keys are hashed within namespace.
func NewAdvisoryLocker(pool *pgxpool.Pool, namespace string, log logging.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, namespace: namespace, logger: log}
}

// LockClient blocks until the advisory lock of clientID is held or ctx ends.
func (l *AdvisoryLocker) LockClient(ctx context.Context, clientID string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "acquire lock connection")
	}
	key := lockKey(l.namespace, clientID)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "advisory lock").WithDetail(clientID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(uctx, "SELECT pg_advisory_unlock($1)", key); err != nil {
				// The session lock dies with the connection, so drop it from the pool.
				l.logger.Warn("advisory unlock failed", logging.ClientID(clientID), logging.Err(err))
				_ = conn.Conn().Close(uctx)
			}
			conn.Release()
		})
	}, nil
}

// lockKey maps (namespace, id) onto the bigint key space of advisory locks.
func lockKey(namespace, id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
