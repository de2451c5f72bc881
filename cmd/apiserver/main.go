// Command apiserver serves the reminder engine's HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/bootstrap"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/cli"
	httpserver "github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("apiserver stopped with error", logging.Err(err))
		_ = logging.Sync(logger)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting reminder API server",
		logging.String("version", cli.Version),
		logging.Int("port", cfg.Server.Port),
		logging.String("region", cfg.Scheduling.Region),
	)

	infra, svcs, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}
	defer infra.Close()

	if configPath != "" {
		if err := config.Watch(configPath, logger, func(next *config.Config) {
			if s, ok := logger.(logging.LevelSetter); ok {
				s.SetLevel(next.Log.Level)
			}
		}); err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}
	if cfg.Server.JobSecret == "" {
		logger.Warn("server.job_secret is empty; job endpoints will reject every request")
	}

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, bootstrap.Router(cfg, svcs, infra, logger), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	return srv.Shutdown(context.Background())
}
