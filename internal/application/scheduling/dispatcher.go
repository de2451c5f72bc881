package scheduling

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// PromoteResult reports a due-promotion pass.
type PromoteResult struct {
	Promoted int         `json:"promoted"`
	Paused   int         `json:"paused"`
	Expired  int         `json:"expired"`
	Errors   []ItemError `json:"errors,omitempty"`
}

// Dispatcher hands due entries to the external sender and records what the
// sender reports back.
type Dispatcher interface {
	// PromoteDue publishes every scheduled entry whose send date has arrived
	// and marks it pending, oldest send date first.  Entries of paused
	// clients wait; entries whose deadline has passed are left for the
	// builder to retire.  Neither counts against the batch.
	PromoteDue(ctx context.Context) (*PromoteResult, error)

	// RecordDelivery applies a sent/failed outcome.  Replaying an outcome is
	// a no-op.
	RecordDelivery(ctx context.Context, outcome *reminder.DeliveryOutcome) error
}

type dispatcherImpl struct {
	store     reminder.Store
	publisher reminder.Publisher
	metrics   Metrics
	clock     calendar.Clock
	logger    logging.Logger
	batchSize int
}

// NewDispatcher constructs a Dispatcher.  batchSize bounds one pass.
func NewDispatcher(store reminder.Store, publisher reminder.Publisher, metrics Metrics, clock calendar.Clock, logger logging.Logger, batchSize int) Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &dispatcherImpl{store: store, publisher: publisher, metrics: metrics, clock: clock, logger: logger, batchSize: batchSize}
}

func (d *dispatcherImpl) PromoteDue(ctx context.Context) (*PromoteResult, error) {
	start := time.Now()
	defer func() { d.metrics.ObserveBatch("promote_due", time.Since(start)) }()

	today := calendar.Today(d.clock)
	due, err := d.store.Queue().List(ctx, reminder.EntryFilter{
		Statuses:          []reminder.Status{reminder.StatusScheduled, reminder.StatusRescheduled},
		SendOnOrBefore:    &today,
		DeadlineOnOrAfter: &today,
		ExcludePaused:     true,
		BySendDate:        true,
		Limit:             d.batchSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list due entries")
	}

	res := &PromoteResult{}
	clients := make(map[string]*filing.Client)
	for _, e := range due {
		c, ok := clients[e.ClientID]
		if !ok {
			c, err = d.store.Clients().Get(ctx, e.ClientID)
			if err != nil {
				res.Errors = append(res.Errors, ItemError{ClientID: e.ClientID, FilingType: e.FilingType, Error: err.Error()})
				continue
			}
			clients[e.ClientID] = c
		}
		// The listing already excludes paused clients; a pause can still
		// land between the listing and this check.
		if c.Paused {
			res.Paused++
			continue
		}
		if e.DeadlineDate.Before(today) {
			res.Expired++
			continue
		}

		ev := &reminder.DueEvent{
			EventMeta:    reminder.NewEventMeta(d.clock.Now()),
			EntryID:      e.ID,
			ClientID:     e.ClientID,
			FilingType:   e.FilingType,
			StepNumber:   e.StepNumber,
			DeadlineDate: calendar.Key(e.DeadlineDate),
			SendDate:     calendar.Key(e.SendDate),
			Subject:      e.Subject,
			Body:         e.Body,
		}
		if err := d.publisher.Publish(ctx, ev); err != nil {
			res.Errors = append(res.Errors, ItemError{ClientID: e.ClientID, FilingType: e.FilingType, Error: err.Error()})
			continue
		}
		updated, err := d.store.Queue().UpdateStatus(ctx, e.ID,
			[]reminder.Status{reminder.StatusScheduled, reminder.StatusRescheduled}, reminder.StatusPending, "")
		if err != nil {
			res.Errors = append(res.Errors, ItemError{ClientID: e.ClientID, FilingType: e.FilingType, Error: err.Error()})
			continue
		}
		if updated {
			res.Promoted++
		}
	}

	d.metrics.RecordEntries(ActionPromoted, res.Promoted)
	d.logger.Info("due reminders promoted",
		logging.Int("promoted", res.Promoted),
		logging.Int("paused", res.Paused),
		logging.Int("expired", res.Expired),
		logging.Int("errors", len(res.Errors)))
	return res, nil
}

func (d *dispatcherImpl) RecordDelivery(ctx context.Context, o *reminder.DeliveryOutcome) error {
	if err := errors.ValidateStruct(o); err != nil {
		return err
	}
	updated, err := d.store.Queue().UpdateStatus(ctx, o.EntryID, []reminder.Status{reminder.StatusPending}, o.Status, o.Error)
	if err != nil {
		return err
	}
	if updated {
		if o.Status == reminder.StatusSent {
			d.metrics.RecordEntries(ActionSent, 1)
		} else {
			d.metrics.RecordEntries(ActionFailed, 1)
			d.logger.Warn("reminder delivery failed", logging.String("entry_id", o.EntryID), logging.String("reason", o.Error))
		}
		return nil
	}

	e, err := d.store.Queue().Get(ctx, o.EntryID)
	if err != nil {
		return err
	}
	if e.Status == o.Status {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidTransition, "entry %s is %s, cannot record %s", e.ID, e.Status, o.Status)
}
