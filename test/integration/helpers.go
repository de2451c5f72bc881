//go:build integration

// Package integration runs the engine against real PostgreSQL and Redis
// containers.  Tests require Docker and are gated behind the "integration"
// build tag.
package integration

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
)

// ─────────────────────────────────────────────────────────────────────────────
// Containers
// ─────────────────────────────────────────────────────────────────────────────

func startContainer(t *testing.T, req testcontainers.ContainerRequest) (host string, port int) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err = container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	require.NoError(t, err)
	port, err = strconv.Atoi(mapped.Port())
	require.NoError(t, err)
	return host, port
}

// startPostgres launches PostgreSQL 16 and returns its connection settings.
func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "reminders_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})
	return config.DatabaseConfig{
		Host:           host,
		Port:           port,
		User:           "test",
		Password:       "test",
		DBName:         "reminders_test",
		SSLMode:        "disable",
		MigrateOnStart: true,
	}
}

// startRedis launches Redis 7 and returns its address.
func startRedis(t *testing.T) string {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	return fmt.Sprintf("%s:%d", host, port)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

// newConfig returns a configuration over the given backends with every
// network dependency outside the containers switched off.
func newConfig(db config.DatabaseConfig, redisAddr string) *config.Config {
	cfg := &config.Config{}
	cfg.Database = db
	cfg.Holidays.Source = "static"
	cfg.Holidays.ExtraDates = map[string][]string{"all": {"2027-01-01", "2027-12-27"}}
	cfg.Rollover.Enabled = true
	cfg.Scheduling.ShiftSendDates = true
	cfg.Lock.Backend = "postgres"
	if redisAddr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = redisAddr
		cfg.Lock.Backend = "redis"
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func standardSteps() []template.Step {
	return []template.Step{
		{StepNumber: 1, DelayDays: 60, Subject: "{{filing_type}} coming up", Body: "Dear {{client_name}}, due {{deadline}}."},
		{StepNumber: 2, DelayDays: 30, Subject: "Follow-up", Body: "We have not yet received your records."},
		{StepNumber: 3, DelayDays: 7, Subject: "Final reminder", Body: "{{days_until_deadline}} days left."},
	}
}

func baseTemplates() []*template.BaseTemplate {
	var out []*template.BaseTemplate
	for _, d := range filing.All() {
		out = append(out, &template.BaseTemplate{Name: d.DisplayName, FilingType: d.Type, Steps: standardSteps()})
	}
	return out
}

// futureYearEnd is a year end whose obligations all fall after today.
func futureYearEnd() *time.Time {
	ye := time.Date(time.Now().UTC().Year()+1, time.March, 31, 0, 0, 0, 0, time.UTC)
	return &ye
}
