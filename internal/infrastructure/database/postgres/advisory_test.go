package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_SharesDSN(t *testing.T) {
	poolCfg, err := poolConfig(PostgresConfig{
		Host:         "db.prod.internal",
		Port:         5433,
		Database:     "reminders",
		Username:     "admin",
		Password:     "p@ss/word",
		MaxOpenConns: 8,
		LockTimeout:  2 * time.Second,
	})
	require.NoError(t, err)

	cc := poolCfg.ConnConfig
	assert.Equal(t, "db.prod.internal", cc.Host)
	assert.Equal(t, uint16(5433), cc.Port)
	assert.Equal(t, "reminders", cc.Database)
	assert.Equal(t, "admin", cc.User)
	assert.Equal(t, "p@ss/word", cc.Password)
	assert.Equal(t, "30000", cc.RuntimeParams["statement_timeout"])
	assert.Equal(t, "2000", cc.RuntimeParams["lock_timeout"])
	assert.Equal(t, int32(8), poolCfg.MaxConns)
}

func TestConfigurePool(t *testing.T) {
	t.Parallel()

	t.Run("applies custom settings", func(t *testing.T) {
		poolCfg := &pgxpool.Config{}
		configurePool(poolCfg, PostgresConfig{
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 2 * time.Hour,
			ConnMaxIdleTime: 45 * time.Minute,
		})

		assert.Equal(t, int32(50), poolCfg.MaxConns)
		assert.Equal(t, int32(10), poolCfg.MinConns)
		assert.Equal(t, 2*time.Hour, poolCfg.MaxConnLifetime)
		assert.Equal(t, 45*time.Minute, poolCfg.MaxConnIdleTime)
	})

	t.Run("keeps defaults for zero values", func(t *testing.T) {
		poolCfg := &pgxpool.Config{MaxConns: 25}
		configurePool(poolCfg, PostgresConfig{})
		assert.Equal(t, int32(25), poolCfg.MaxConns)
	})
}

func TestLockKey(t *testing.T) {
	a := lockKey("client", "acme")
	assert.Equal(t, a, lockKey("client", "acme"))
	assert.NotEqual(t, a, lockKey("client", "acme2"))
	assert.NotEqual(t, a, lockKey("credential", "acme"))
	assert.NotEqual(t, lockKey("ab", "c"), lockKey("a", "bc"))
}
