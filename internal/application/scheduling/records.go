package scheduling

import (
	"context"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// RecordsChange reports the effect of a records or completion marker update.
type RecordsChange struct {
	ClientID   string            `json:"client_id"`
	FilingType filing.FilingType `json:"filing_type"`
	Changed    bool              `json:"changed"`
	Entries    int               `json:"entries"`
	Rebuild    *ClientResult     `json:"rebuild,omitempty"`
}

// RecordsService maintains the records-received and completed markers and
// keeps the queue consistent with them.  Every call is idempotent.
type RecordsService interface {
	// MarkReceived adds the marker and moves scheduled entries of the filing
	// type to records_received.
	MarkReceived(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error)

	// MarkNotReceived removes the marker, drops the current cycle's
	// records_received entries and regenerates the schedule through the
	// builder.
	MarkNotReceived(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error)

	MarkCompleted(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error)
	MarkNotCompleted(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error)
}

type recordsServiceImpl struct {
	store   reminder.Store
	locker  ClientLocker
	builder QueueBuilder
	clock   calendar.Clock
	logger  logging.Logger
}

// NewRecordsService constructs a RecordsService.
func NewRecordsService(store reminder.Store, locker ClientLocker, builder QueueBuilder, clock calendar.Clock, logger logging.Logger) RecordsService {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &recordsServiceImpl{store: store, locker: locker, builder: builder, clock: clock, logger: logger}
}

// mutate applies fn to the client under the client lock inside one
// transaction and persists the marker sets.
func (s *recordsServiceImpl) mutate(ctx context.Context, clientID string, ft filing.FilingType, fn func(tx reminder.Store, c *filing.Client, ch *RecordsChange) error) (*RecordsChange, error) {
	if !ft.IsValid() {
		return nil, errors.New(errors.ErrCodeInvalidFilingType, "unknown filing type").WithDetail(string(ft))
	}
	unlock, err := s.locker.LockClient(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLockNotAcquired, "lock client").WithDetail(clientID)
	}
	defer unlock()

	ch := &RecordsChange{ClientID: clientID, FilingType: ft}
	err = s.store.WithTx(ctx, func(tx reminder.Store) error {
		c, err := tx.Clients().Get(ctx, clientID)
		if err != nil {
			return err
		}
		if err := fn(tx, c, ch); err != nil {
			return err
		}
		if !ch.Changed {
			return nil
		}
		return tx.Clients().UpdateFilingState(ctx, c.ID, c.YearEnd, c.RecordsReceivedFor, c.CompletedFor)
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *recordsServiceImpl) MarkReceived(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error) {
	ch, err := s.mutate(ctx, clientID, ft, func(tx reminder.Store, c *filing.Client, ch *RecordsChange) error {
		ch.Changed = c.MarkRecordsReceived(ft)
		n, err := tx.Queue().TransitionAll(ctx, c.ID, ft, reminder.StatusScheduled, reminder.StatusRecordsReceived)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "cancel scheduled entries")
		}
		ch.Entries = n
		if ch.Changed {
			return tx.Audit().Append(ctx, &reminder.AuditRecord{
				ClientID:   c.ID,
				FilingType: ft,
				Action:     reminder.AuditRecordsReceived,
				CreatedAt:  s.clock.Now().UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("records marked received",
		logging.ClientID(clientID), logging.FilingType(string(ft)),
		logging.Bool("changed", ch.Changed), logging.Int("entries", ch.Entries))
	return ch, nil
}

func (s *recordsServiceImpl) MarkNotReceived(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error) {
	ch, err := s.mutate(ctx, clientID, ft, func(tx reminder.Store, c *filing.Client, ch *RecordsChange) error {
		ch.Changed = c.ClearRecordsReceived(ft)
		n, err := s.dropCurrentCycle(ctx, tx, c, ft)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "drop records_received entries")
		}
		ch.Entries = n
		if ch.Changed {
			return tx.Audit().Append(ctx, &reminder.AuditRecord{
				ClientID:   c.ID,
				FilingType: ft,
				Action:     reminder.AuditRecordsReverted,
				CreatedAt:  s.clock.Now().UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The lock is released before the rebuild takes it again.
	res, err := s.builder.BuildClient(ctx, clientID)
	if err != nil {
		return ch, errors.Wrap(err, errors.ErrCodeQueueBuildFailed, "regenerate schedule").WithDetail(clientID)
	}
	ch.Rebuild = res
	s.logger.Info("records marked not received",
		logging.ClientID(clientID), logging.FilingType(string(ft)),
		logging.Int("dropped", ch.Entries), logging.Int("created", res.Created))
	return ch, nil
}

// dropCurrentCycle deletes the records_received entries of the current
// cycle.  Earlier cycles keep theirs as history.
func (s *recordsServiceImpl) dropCurrentCycle(ctx context.Context, tx reminder.Store, c *filing.Client, ft filing.FilingType) (int, error) {
	due, ok, err := s.builder.CurrentDeadline(ctx, tx, c, ft)
	if err != nil || !ok {
		return 0, err
	}
	entries, err := tx.Queue().List(ctx, reminder.EntryFilter{
		ClientID:   c.ID,
		FilingType: ft,
		Statuses:   []reminder.Status{reminder.StatusRecordsReceived},
		DeadlineOn: &due,
	})
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return tx.Queue().DeleteByIDs(ctx, ids)
}

func (s *recordsServiceImpl) MarkCompleted(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error) {
	return s.mutate(ctx, clientID, ft, func(_ reminder.Store, c *filing.Client, ch *RecordsChange) error {
		ch.Changed = c.MarkCompleted(ft)
		return nil
	})
}

func (s *recordsServiceImpl) MarkNotCompleted(ctx context.Context, clientID string, ft filing.FilingType) (*RecordsChange, error) {
	return s.mutate(ctx, clientID, ft, func(_ reminder.Store, c *filing.Client, ch *RecordsChange) error {
		ch.Changed = c.ClearCompleted(ft)
		return nil
	})
}
