package bootstrap

import (
	"context"
	"net/http"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/cli"
	httpserver "github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http/handlers"
)

// Build opens the infrastructure and wires the services over it.  The caller
// owns the returned Infrastructure and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, *Services, error) {
	infra, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	deps, err := DepsFrom(cfg, infra, logger)
	if err != nil {
		infra.Close()
		return nil, nil, err
	}
	svcs, err := NewServices(cfg, deps, logger)
	if err != nil {
		infra.Close()
		return nil, nil, err
	}
	return infra, svcs, nil
}

// CLIApp exposes s to the reminderctl commands.
func (s *Services) CLIApp(region string, closeFn func() error) *cli.App {
	app := &cli.App{
		Processor:  s.Processor,
		Builder:    s.Builder,
		Dispatcher: s.Dispatcher,
		Detector:   s.Detector,
		Executor:   s.Executor,
		Deadlines:  s.Deadlines,
		Templates:  s.Customization,
		Records:    s.Records,
		Holidays:   s.Holidays,
		Region:     region,
		Close:      closeFn,
	}
	if s.Credentials != nil {
		app.Credentials = s.Credentials
	}
	return app
}

// CLIFactories builds reminderctl's dependencies on demand.
func CLIFactories() cli.Factories {
	return cli.Factories{
		App: func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*cli.App, error) {
			infra, svcs, err := Build(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return svcs.CLIApp(cfg.Scheduling.Region, infra.Close), nil
		},
		Migrator: func(cfg *config.Config, _ logging.Logger) (cli.Migrator, error) {
			return NewMigrator(cfg.Database), nil
		},
	}
}

// Migrator runs the embedded schema migrations against one database.
type Migrator struct {
	url string
}

// NewMigrator targets the database described by c.
func NewMigrator(c config.DatabaseConfig) *Migrator {
	return &Migrator{url: postgres.DSN(PostgresConfig(c))}
}

func (m *Migrator) Up() error                   { return postgres.RunMigrations(m.url) }
func (m *Migrator) Down(steps int) error        { return postgres.RollbackMigration(m.url, steps) }
func (m *Migrator) Status() (uint, bool, error) { return postgres.MigrationStatus(m.url) }
func (m *Migrator) Force(version int) error     { return postgres.ForceMigrationVersion(m.url, version) }

// Router builds the API route tree over s.
func Router(cfg *config.Config, s *Services, infra *Infrastructure, logger logging.Logger) http.Handler {
	health := handlers.NewHealthHandler(cli.Version, infra.HealthCheckers()...)

	rc := httpserver.RouterConfig{
		HealthHandler:   health,
		JobHandler:      handlers.NewJobHandler(s.Processor, s.Builder, s.Dispatcher, logger.Named("http.jobs")),
		ClientHandler:   handlers.NewClientHandler(s.Deadlines, s.Customization, s.Records, s.Builder, s.Store, logger.Named("http.clients")),
		RolloverHandler: handlers.NewRolloverHandler(s.Detector, s.Executor, logger.Named("http.rollover")),
		SignalHandler:   handlers.NewSignalHandler(s.Intake),
		JobSecret:       cfg.Server.JobSecret,
		MaxBodySize:     cfg.Server.MaxBodySize,
		RequestTimeout:  cfg.Server.WriteTimeout,
		Logger:          logger.Named("http"),
	}
	if infra.Metrics != nil {
		health.WithReporter(infra.Metrics)
		rc.Recorder = infra.Metrics
		rc.MetricsHandler = infra.Collector.Handler()
	}
	return httpserver.NewRouter(rc)
}

// HealthRouter serves only the probes and metrics, for processes without the
// API surface.
func HealthRouter(infra *Infrastructure, logger logging.Logger) http.Handler {
	health := handlers.NewHealthHandler(cli.Version, infra.HealthCheckers()...)
	rc := httpserver.RouterConfig{HealthHandler: health, Logger: logger.Named("http")}
	if infra.Metrics != nil {
		health.WithReporter(infra.Metrics)
		rc.Recorder = infra.Metrics
		rc.MetricsHandler = infra.Collector.Handler()
	}
	return httpserver.NewRouter(rc)
}
