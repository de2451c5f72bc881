package rollover

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/deadline"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Outcome describes one executed rollover.  A non-empty RebuildError means
// the state change is committed but the next cycle was not scheduled.
type Outcome struct {
	ClientID   string            `json:"client_id"`
	FilingType filing.FilingType `json:"filing_type"`
	OldYearEnd *time.Time        `json:"old_year_end,omitempty"`
	NewYearEnd *time.Time        `json:"new_year_end,omitempty"`

	// YearEndShared is set when another annual filing type of the same cycle
	// already advanced the year-end.
	YearEndShared bool `json:"year_end_shared,omitempty"`

	Deleted      int                      `json:"deleted"`
	Rebuild      *scheduling.ClientResult `json:"rebuild,omitempty"`
	RebuildError string                   `json:"rebuild_error,omitempty"`
}

// YearEndChanged reports whether the rollover moved the year-end.
func (o *Outcome) YearEndChanged() bool {
	return o.NewYearEnd != nil && (o.OldYearEnd == nil || !o.NewYearEnd.Equal(*o.OldYearEnd))
}

// BulkResult aggregates ExecuteBulk.
type BulkResult struct {
	Total         int                    `json:"total"`
	Succeeded     int                    `json:"succeeded"`
	Failed        int                    `json:"failed"`
	RebuildErrors int                    `json:"rebuild_errors"`
	Outcomes      []*Outcome             `json:"outcomes,omitempty"`
	Errors        []scheduling.ItemError `json:"errors,omitempty"`
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Metrics receives rollover outcomes.
type Metrics interface {
	RecordRollover(outcome string)
}

// Rollover outcomes reported to Metrics.
const (
	OutcomeSuccess      = "success"
	OutcomeError        = "error"
	OutcomeRebuildError = "rebuild_error"
)

type nopMetrics struct{}

func (nopMetrics) RecordRollover(string) {}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// Executor advances obligations to their next cycle.
type Executor interface {
	// Execute rolls one candidate over.  Year-end and marker changes and the
	// removal of scheduled entries commit together or not at all.
	Execute(ctx context.Context, c Candidate) (*Outcome, error)

	// ExecuteBulk runs every candidate independently.
	ExecuteBulk(ctx context.Context, cs []Candidate) *BulkResult
}

type executorImpl struct {
	store       reminder.Store
	locker      scheduling.ClientLocker
	builder     scheduling.QueueBuilder
	publisher   reminder.Publisher
	metrics     Metrics
	clock       calendar.Clock
	logger      logging.Logger
	concurrency int
}

// Option configures optional collaborators.
type Option func(*executorImpl)

// WithPublisher sets the event publisher.
func WithPublisher(p reminder.Publisher) Option {
	return func(e *executorImpl) { e.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *executorImpl) { e.metrics = m }
}

// WithClock injects the time source.
func WithClock(c calendar.Clock) Option {
	return func(e *executorImpl) { e.clock = c }
}

// WithConcurrency bounds parallel candidates in ExecuteBulk.
func WithConcurrency(n int) Option {
	return func(e *executorImpl) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExecutor constructs an Executor.
func NewExecutor(store reminder.Store, locker scheduling.ClientLocker, builder scheduling.QueueBuilder, logger logging.Logger, opts ...Option) Executor {
	e := &executorImpl{
		store:       store,
		locker:      locker,
		builder:     builder,
		publisher:   reminder.NopPublisher{},
		metrics:     nopMetrics{},
		clock:       calendar.SystemClock{},
		logger:      logger,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *executorImpl) Execute(ctx context.Context, c Candidate) (*Outcome, error) {
	out, err := e.execute(ctx, c)
	switch {
	case err != nil:
		e.metrics.RecordRollover(OutcomeError)
	case out.RebuildError != "":
		e.metrics.RecordRollover(OutcomeRebuildError)
	default:
		e.metrics.RecordRollover(OutcomeSuccess)
	}
	return out, err
}

func (e *executorImpl) execute(ctx context.Context, c Candidate) (*Outcome, error) {
	if !c.FilingType.IsValid() {
		return nil, errors.New(errors.ErrCodeInvalidFilingType, "unknown filing type").WithDetail(string(c.FilingType))
	}
	out, err := e.commit(ctx, c)
	if err != nil {
		return nil, err
	}

	// The client lock is released by now; the builder takes it again.
	res, err := e.builder.BuildClient(ctx, c.ClientID)
	if err != nil {
		out.RebuildError = err.Error()
		e.logger.Error("rollover committed but queue rebuild failed",
			logging.ClientID(c.ClientID), logging.FilingType(string(c.FilingType)), logging.Err(err))
	} else {
		out.Rebuild = res
	}

	now := e.clock.Now().UTC()
	if err := e.store.Audit().Append(ctx, &reminder.AuditRecord{
		ClientID:   c.ClientID,
		FilingType: c.FilingType,
		Action:     reminder.AuditRollover,
		OldYearEnd: out.OldYearEnd,
		NewYearEnd: out.NewYearEnd,
		Detail:     out.RebuildError,
		CreatedAt:  now,
	}); err != nil {
		e.logger.Error("rollover audit record not written",
			logging.ClientID(c.ClientID), logging.FilingType(string(c.FilingType)), logging.Err(err))
	}

	ev := &reminder.RolloverEvent{
		EventMeta:    reminder.NewEventMeta(now),
		ClientID:     c.ClientID,
		FilingType:   c.FilingType,
		RebuildError: out.RebuildError,
	}
	if out.OldYearEnd != nil {
		ev.OldYearEnd = calendar.Key(*out.OldYearEnd)
	}
	if out.NewYearEnd != nil {
		ev.NewYearEnd = calendar.Key(*out.NewYearEnd)
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("rollover event not published", logging.ClientID(c.ClientID), logging.Err(err))
	}

	e.logger.Info("rollover executed",
		logging.ClientID(c.ClientID),
		logging.FilingType(string(c.FilingType)),
		logging.Bool("year_end_changed", out.YearEndChanged()),
		logging.Int("deleted", out.Deleted))
	return out, nil
}

// commit applies the state change under the client lock in one transaction.
func (e *executorImpl) commit(ctx context.Context, c Candidate) (*Outcome, error) {
	unlock, err := e.locker.LockClient(ctx, c.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLockNotAcquired, "lock client").WithDetail(c.ClientID)
	}
	defer unlock()

	today := calendar.Today(e.clock)
	out := &Outcome{ClientID: c.ClientID, FilingType: c.FilingType}
	err = e.store.WithTx(ctx, func(tx reminder.Store) error {
		client, err := tx.Clients().Get(ctx, c.ClientID)
		if err != nil {
			return err
		}
		if !client.HasRecordsReceived(c.FilingType) {
			return errors.New(errors.ErrCodeRolloverNotEligible, "records not marked received").
				WithDetail(c.ClientID + "/" + string(c.FilingType))
		}
		annual := c.FilingType.IsAnnual()
		if annual && client.YearEnd == nil {
			return errors.New(errors.ErrCodeRolloverNoYearEnd, "annual filing type requires a year-end date").
				WithDetail(c.ClientID + "/" + string(c.FilingType))
		}

		overrides, err := tx.DeadlineOverrides().ListByClient(ctx, client.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "list deadline overrides")
		}
		due, _, ok := deadline.Effective(c.FilingType, deadline.FactsOf(client), filing.OverrideFor(overrides, c.FilingType), today)
		if !ok {
			return errors.New(errors.ErrCodeRolloverNotEligible, "no deadline").WithDetail(c.ClientID + "/" + string(c.FilingType))
		}

		advance := annual
		if !due.Before(today) {
			// A sibling annual type may already have moved the year-end past
			// the cycle this candidate was detected in.
			if !annual || c.Deadline.IsZero() || !due.After(c.Deadline) {
				return errors.New(errors.ErrCodeRolloverNotEligible, "deadline not yet passed").
					WithDetail(c.ClientID + "/" + string(c.FilingType))
			}
			advance = false
			out.YearEndShared = true
		}

		if client.YearEnd != nil {
			old := *client.YearEnd
			out.OldYearEnd = &old
			next := old
			if advance {
				next = calendar.AddYears(old, 1)
			}
			out.NewYearEnd = &next
		}

		client.ClearRecordsReceived(c.FilingType)
		client.ClearCompleted(c.FilingType)
		if err := tx.Clients().UpdateFilingState(ctx, client.ID, out.NewYearEnd, client.RecordsReceivedFor, client.CompletedFor); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "update filing state")
		}

		n, err := tx.Queue().DeleteByStatus(ctx, client.ID, c.FilingType, reminder.StatusScheduled)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "delete scheduled entries")
		}
		out.Deleted = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteBulk runs each candidate on its own; one failure never stops the
// others.  Outcomes and errors follow completion order.
func (e *executorImpl) ExecuteBulk(ctx context.Context, cs []Candidate) *BulkResult {
	res := &BulkResult{Total: len(cs)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, c := range cs {
		c := c
		g.Go(func() error {
			out, err := e.Execute(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, scheduling.ItemError{ClientID: c.ClientID, FilingType: c.FilingType, Error: err.Error()})
				e.logger.Warn("rollover failed", logging.ClientID(c.ClientID), logging.FilingType(string(c.FilingType)), logging.Err(err))
				return nil
			}
			res.Succeeded++
			if out.RebuildError != "" {
				res.RebuildErrors++
			}
			res.Outcomes = append(res.Outcomes, out)
			return nil
		})
	}
	_ = g.Wait()
	return res
}
