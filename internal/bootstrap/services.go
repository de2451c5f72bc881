package bootstrap

import (
	"context"
	"fmt"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/customization"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/deadlines"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/holiday"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/intake"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/config"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	domaincred "github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/signal"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/auth/oauth"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres/repositories"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/redis"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/holidays/govuk"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/prometheus"
)

// Deps are the ports the services are built on.  Nil optional members switch
// the matching feature off.
type Deps struct {
	Store          reminder.Store
	ClientLocker   scheduling.ClientLocker
	CredLocker     credential.Locker
	CredentialRepo domaincred.Repository
	HolidaySource  holiday.Source
	SharedHolidays holiday.SharedStore
	Publisher      reminder.Publisher
	Exports        deadlines.ObjectStore
	Metrics        *prometheus.AppMetrics
	Clock          calendar.Clock
}

// DepsFrom selects the backends of infra according to cfg.
func DepsFrom(cfg *config.Config, infra *Infrastructure, logger logging.Logger) (Deps, error) {
	src, err := HolidaySource(cfg.Holidays, logger)
	if err != nil {
		return Deps{}, err
	}

	d := Deps{
		Store:          repositories.NewStore(infra.Postgres, logger),
		CredentialRepo: repositories.NewCredentialRepository(infra.Postgres),
		HolidaySource:  src,
		Publisher:      infra.Publisher(),
		Metrics:        infra.Metrics,
		Clock:          calendar.SystemClock{},
	}
	if infra.Exports != nil {
		d.Exports = infra.Exports
	}

	switch cfg.Lock.Backend {
	case "redis":
		factory := redis.NewLockFactory(infra.Redis, logger)
		d.ClientLocker = redis.NewClientLocker(factory, cfg.Lock.TTL, cfg.Lock.RetryDelay, logger)
	case "postgres":
		d.ClientLocker = postgres.NewAdvisoryLocker(infra.Pool, cfg.Lock.Namespace, logger)
	default:
		d.ClientLocker = scheduling.NewKeyedMutex()
	}

	if infra.Redis != nil {
		d.CredLocker = redis.NewCredentialLocker(redis.NewLockFactory(infra.Redis, logger))
		d.SharedHolidays = redis.NewHolidayStore(infra.Redis, logger)
	} else {
		d.CredLocker = credential.NewLocalLocker()
	}
	return d, nil
}

// HolidaySource builds the configured bank-holiday source.  Extra dates are
// merged in; the region key "all" applies them everywhere.
func HolidaySource(cfg config.HolidaysConfig, logger logging.Logger) (holiday.Source, error) {
	extra := make(map[string][]string, len(cfg.ExtraDates))
	for region, dates := range cfg.ExtraDates {
		if region == "all" {
			region = ""
		}
		extra[region] = append(extra[region], dates...)
	}
	static, err := holiday.NewStaticSource(extra)
	if err != nil {
		return nil, err
	}

	switch cfg.Source {
	case "static":
		return static, nil
	case "govuk":
		gov := govuk.NewSource(govuk.Config{URL: cfg.URL, Timeout: cfg.Timeout}, logger)
		if len(extra) == 0 {
			return gov, nil
		}
		return holiday.Combined{gov, static}, nil
	default:
		return nil, fmt.Errorf("unknown holiday source %q", cfg.Source)
	}
}

// Services is the engine's application layer.
type Services struct {
	Store         reminder.Store
	Holidays      *holiday.Cache
	Builder       scheduling.QueueBuilder
	Dispatcher    scheduling.Dispatcher
	Records       scheduling.RecordsService
	Detector      rollover.Detector
	Executor      rollover.Executor
	Processor     *rollover.Processor
	Deadlines     *deadlines.Service
	Customization *customization.Service
	Intake        *intake.Service
	// JobLocker keeps scheduler replicas from running the same job at once.
	JobLocker credential.Locker
	// Credentials is nil unless credentials.token_url is set.
	Credentials *credential.Manager
}

// NewServices wires the application services over d.
func NewServices(cfg *config.Config, d Deps, logger logging.Logger) (*Services, error) {
	adjust, err := parseFilingTypes(cfg.Scheduling.AdjustDeadlines)
	if err != nil {
		return nil, err
	}
	clock := d.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	publisher := d.Publisher
	if publisher == nil {
		publisher = reminder.NopPublisher{}
	}

	cacheOpts := []holiday.CacheOption{holiday.WithTTL(cfg.Holidays.CacheTTL), holiday.WithClock(clock)}
	if d.SharedHolidays != nil {
		cacheOpts = append(cacheOpts, holiday.WithSharedStore(d.SharedHolidays))
	}
	if cfg.Holidays.Timeout > 0 {
		cacheOpts = append(cacheOpts, holiday.WithFetchTimeout(cfg.Holidays.Timeout))
	}
	builderOpts := []scheduling.BuilderOption{scheduling.WithPublisher(publisher), scheduling.WithClock(clock)}
	execOpts := []rollover.Option{
		rollover.WithPublisher(publisher),
		rollover.WithClock(clock),
		rollover.WithConcurrency(cfg.Rollover.Concurrency),
	}
	var dispatchMetrics scheduling.Metrics
	if d.Metrics != nil {
		cacheOpts = append(cacheOpts, holiday.WithMetrics(d.Metrics))
		builderOpts = append(builderOpts, scheduling.WithMetrics(d.Metrics))
		execOpts = append(execOpts, rollover.WithMetrics(d.Metrics))
		dispatchMetrics = d.Metrics
	}

	s := &Services{Store: d.Store, JobLocker: d.CredLocker}
	s.Holidays = holiday.NewCache(d.HolidaySource, logger.Named("holidays"), cacheOpts...)
	builderOpts = append(builderOpts, scheduling.WithHolidays(s.Holidays))

	s.Builder = scheduling.NewQueueBuilder(d.Store, d.ClientLocker, scheduling.BuilderConfig{
		Region:          cfg.Scheduling.Region,
		AdjustDeadlines: adjust,
		ShiftSendDates:  cfg.Scheduling.ShiftSendDates,
		Concurrency:     cfg.Scheduling.Concurrency,
	}, logger.Named("builder"), builderOpts...)
	s.Dispatcher = scheduling.NewDispatcher(d.Store, publisher, dispatchMetrics, clock, logger.Named("dispatcher"), cfg.Scheduling.PromoteBatchSize)
	s.Records = scheduling.NewRecordsService(d.Store, d.ClientLocker, s.Builder, clock, logger.Named("records"))

	s.Detector = rollover.NewDetector(d.Store, clock, logger.Named("rollover"))
	s.Executor = rollover.NewExecutor(d.Store, d.ClientLocker, s.Builder, logger.Named("rollover"), execOpts...)
	var daily rollover.Detector = disabledDetector{}
	if cfg.Rollover.Enabled {
		daily = s.Detector
	}
	s.Processor = rollover.NewProcessor(daily, s.Executor, s.Builder, logger.Named("process"))

	var dlOpts []deadlines.Option
	dlOpts = append(dlOpts, deadlines.WithClock(clock))
	if d.Exports != nil {
		dlOpts = append(dlOpts, deadlines.WithObjectStore(d.Exports, cfg.MinIO.PresignExpiry))
	}
	s.Deadlines = deadlines.NewService(d.Store, s.Holidays, cfg.Scheduling.Region, logger.Named("deadlines"), dlOpts...)
	s.Customization = customization.NewService(d.Store, s.Builder, clock, logger.Named("customization"))
	s.Intake = intake.NewService(signal.NewScorer(), d.Store, s.Records, cfg.Signal.Threshold, logger.Named("intake"))

	if cfg.Credentials.TokenURL != "" && d.CredentialRepo != nil && d.CredLocker != nil {
		refresher, err := oauth.NewRefresher(oauth.Config{
			TokenURL:       cfg.Credentials.TokenURL,
			ClientID:       cfg.Credentials.ClientID,
			ClientSecret:   cfg.Credentials.ClientSecret,
			RequestTimeout: cfg.Credentials.RequestTimeout,
			RetryAttempts:  cfg.Credentials.RetryAttempts,
			RetryDelay:     cfg.Credentials.RetryDelay,
		}, logger.Named("oauth"))
		if err != nil {
			return nil, err
		}
		s.Credentials = credential.NewManager(d.CredentialRepo, d.CredLocker, refresher, credential.Config{
			LockTTL:     cfg.Credentials.LockTTL,
			RetryDelay:  cfg.Credentials.RetryDelay,
			MaxAttempts: cfg.Credentials.MaxAttempts,
			Skew:        cfg.Credentials.Skew,
		}, clock, logger.Named("credentials"))
		if d.Metrics != nil {
			s.Credentials.SetMetrics(d.Metrics)
		}
	}
	return s, nil
}

func parseFilingTypes(raw []string) ([]filing.FilingType, error) {
	out := make([]filing.FilingType, 0, len(raw))
	for _, r := range raw {
		ft, err := filing.ParseFilingType(r)
		if err != nil {
			return nil, fmt.Errorf("scheduling.adjust_deadlines: %w", err)
		}
		out = append(out, ft)
	}
	return out, nil
}

// disabledDetector keeps the daily job from rolling anything over when
// rollover.enabled is false.  Explicit rollovers still use the real detector.
type disabledDetector struct{}

func (disabledDetector) Candidates(context.Context) ([]rollover.Candidate, error) { return nil, nil }

func (disabledDetector) ForClient(context.Context, string) ([]rollover.Candidate, error) {
	return nil, nil
}
