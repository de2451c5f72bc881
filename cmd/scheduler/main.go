// Command scheduler runs the engine's background work: the daily rollover
// and queue rebuild, due-reminder promotion and the delivery-result consumer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/bootstrap"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/messaging/kafka"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/cli"
	httpserver "github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/http"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	healthPort := flag.Int("health-port", 8081, "port for health probes and metrics; 0 disables")
	runNow := flag.Bool("run-now", false, "run the daily process once at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
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

	if err := run(cfg, *configPath, *healthPort, *runNow, logger); err != nil {
		logger.Error("scheduler stopped with error", logging.Err(err))
		_ = logging.Sync(logger)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, healthPort int, runNow bool, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hour, minute, err := cfg.DailyAtTime()
	if err != nil {
		return err
	}

	logger.Info("starting reminder scheduler",
		logging.String("version", cli.Version),
		logging.String("daily_at", cfg.Scheduling.DailyAt),
		logging.Duration("promote_interval", cfg.Scheduling.PromoteInterval),
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

	errCh := make(chan error, 2)

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(bootstrap.ConsumerConfig(cfg.Kafka, reminder.TopicDeliveryResult), logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("create delivery consumer: %w", err)
		}
		consumer.Subscribe(reminder.TopicDeliveryResult, kafka.NewDeliveryHandler(svcs.Dispatcher, logger.Named("delivery")))
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start delivery consumer: %w", err)
		}
	} else {
		logger.Warn("kafka disabled; delivery results must be recorded through the API")
	}

	var srv *httpserver.Server
	if healthPort > 0 {
		srv = httpserver.NewServer(httpserver.ServerConfig{
			Port:            healthPort,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, bootstrap.HealthRouter(infra, logger), logger)
		go func() { errCh <- srv.Start() }()
	}

	runner := scheduler.NewRunner(scheduler.Config{
		DailyHour:       hour,
		DailyMinute:     minute,
		PromoteInterval: cfg.Scheduling.PromoteInterval,
		RunOnStart:      runNow,
	}, svcs.Processor, svcs.Dispatcher, svcs.JobLocker, nil, logger.Named("scheduler"))

	runCtx, cancelRun := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	cancelRun()
	wg.Wait()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn("delivery consumer close failed", logging.Err(err))
		}
	}
	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}
