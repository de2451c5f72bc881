// Package scheduler drives the engine's periodic jobs: the daily
// rollover-and-rebuild run and the frequent promotion of due reminders.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

// Lock names guarding the jobs across replicas.
const (
	DailyLockName   = "job:daily-process"
	PromoteLockName = "job:promote-due"
)

// DailyProcessor runs the daily job.
type DailyProcessor interface {
	ProcessReminders(ctx context.Context) (*rollover.ProcessResult, error)
}

// Config tunes the Runner.
type Config struct {
	// DailyHour and DailyMinute are the UTC wall-clock time of the daily run.
	DailyHour   int
	DailyMinute int
	// PromoteInterval is the period of due-reminder promotion.
	PromoteInterval time.Duration
	// RunOnStart runs the daily job once immediately.
	RunOnStart bool
	// JobTimeout bounds one run of either job.
	JobTimeout time.Duration
	// LockTTL bounds how long a crashed replica blocks the others.
	LockTTL time.Duration
}

// Runner owns the job loops.  Only one replica runs a job at a time when a
// shared Locker is supplied.
type Runner struct {
	cfg        Config
	processor  DailyProcessor
	dispatcher scheduling.Dispatcher
	locker     credential.Locker
	clock      calendar.Clock
	logger     logging.Logger

	// after is time.After; replaced in tests.
	after func(time.Duration) <-chan time.Time
}

// NewRunner constructs a Runner.  A nil locker runs every job unguarded.
func NewRunner(cfg Config, processor DailyProcessor, dispatcher scheduling.Dispatcher, locker credential.Locker, clock calendar.Clock, logger logging.Logger) *Runner {
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = 5 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.JobTimeout
	}
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Runner{
		cfg:        cfg,
		processor:  processor,
		dispatcher: dispatcher,
		locker:     locker,
		clock:      clock,
		logger:     logger,
		after:      time.After,
	}
}

// Run blocks until ctx is done, then waits for in-flight jobs.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.dailyLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.promoteLoop(ctx)
	}()
	wg.Wait()
	r.logger.Info("scheduler stopped")
}

func (r *Runner) dailyLoop(ctx context.Context) {
	if r.cfg.RunOnStart {
		r.RunDaily(ctx)
	}
	for {
		next := NextDaily(r.clock.Now(), r.cfg.DailyHour, r.cfg.DailyMinute)
		wait := next.Sub(r.clock.Now())
		r.logger.Info("next daily run scheduled", logging.Time("at", next), logging.Duration("in", wait))
		select {
		case <-ctx.Done():
			return
		case <-r.after(wait):
			r.RunDaily(ctx)
		}
	}
}

func (r *Runner) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunPromote(ctx)
		}
	}
}

// RunDaily runs the daily job once unless another replica holds its lock.
func (r *Runner) RunDaily(ctx context.Context) {
	r.guarded(ctx, DailyLockName, func(ctx context.Context) {
		res, err := r.processor.ProcessReminders(ctx)
		if err != nil {
			r.logger.Error("daily process failed", logging.Err(err))
			return
		}
		r.logger.Info("daily process finished",
			logging.Int("queued", res.Queued),
			logging.Int("rolled_over", res.RolledOver),
			logging.Int("errors", res.Errors),
			logging.Duration("elapsed", res.Elapsed),
		)
	})
}

// RunPromote promotes due reminders once unless another replica is doing so.
func (r *Runner) RunPromote(ctx context.Context) {
	r.guarded(ctx, PromoteLockName, func(ctx context.Context) {
		res, err := r.dispatcher.PromoteDue(ctx)
		if err != nil {
			r.logger.Error("promotion failed", logging.Err(err))
			return
		}
		if res.Promoted > 0 || len(res.Errors) > 0 {
			r.logger.Info("due reminders promoted",
				logging.Int("promoted", res.Promoted),
				logging.Int("paused", res.Paused),
				logging.Int("errors", len(res.Errors)),
			)
		}
	})
}

func (r *Runner) guarded(ctx context.Context, name string, fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, name, r.cfg.LockTTL)
		if err != nil {
			r.logger.Error("job lock failed", logging.String("job", name), logging.Err(err))
			return
		}
		if !ok {
			r.logger.Debug("job running elsewhere", logging.String("job", name))
			return
		}
		defer func() {
			rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer rcancel()
			if err := release(rctx); err != nil {
				r.logger.Warn("job lock release failed", logging.String("job", name), logging.Err(err))
			}
		}()
	}
	fn(ctx)
}

// NextDaily returns the first hour:minute UTC strictly after now.
func NextDaily(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
