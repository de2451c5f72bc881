package scheduling

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/deadline"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// BuilderConfig holds queue builder tunables.
type BuilderConfig struct {
	// Region selects the bank-holiday calendar.
	Region string
	// AdjustDeadlines lists filing types whose deadline is moved to the next
	// working day before send dates are derived.
	AdjustDeadlines []filing.FilingType
	// ShiftSendDates moves send dates off weekends and holidays, never past
	// the deadline.
	ShiftSendDates bool
	// Concurrency bounds parallel clients in BuildAll.
	Concurrency int
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

// QueueBuilder reconciles persisted queue entries with the desired schedule.
type QueueBuilder interface {
	// BuildClient reconciles one client inside one transaction under the
	// client lock.
	BuildClient(ctx context.Context, clientID string) (*ClientResult, error)

	// BuildAll reconciles every non-paused client.  Per-client failures are
	// collected in the result; only a failure to list clients is returned.
	BuildAll(ctx context.Context) (*BatchResult, error)

	// Plan computes the desired entries of a client without writing them.
	Plan(ctx context.Context, clientID string) ([]*reminder.Entry, []SkippedObligation, error)

	// CurrentDeadline returns the deadline the builder schedules for the
	// client's current cycle of ft, read through st.  ok is false when no
	// deadline can be derived.
	CurrentDeadline(ctx context.Context, st reminder.Store, c *filing.Client, ft filing.FilingType) (due time.Time, ok bool, err error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type queueBuilderImpl struct {
	store     reminder.Store
	locker    ClientLocker
	holidays  HolidayProvider
	publisher reminder.Publisher
	metrics   Metrics
	clock     calendar.Clock
	logger    logging.Logger
	cfg       BuilderConfig
	adjust    map[filing.FilingType]bool
}

// BuilderOption configures optional collaborators.
type BuilderOption func(*queueBuilderImpl)

// WithHolidays sets the holiday provider.
func WithHolidays(h HolidayProvider) BuilderOption {
	return func(b *queueBuilderImpl) { b.holidays = h }
}

// WithPublisher sets the event publisher.
func WithPublisher(p reminder.Publisher) BuilderOption {
	return func(b *queueBuilderImpl) { b.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) BuilderOption {
	return func(b *queueBuilderImpl) { b.metrics = m }
}

// WithClock injects the time source.
func WithClock(c calendar.Clock) BuilderOption {
	return func(b *queueBuilderImpl) { b.clock = c }
}

// NewQueueBuilder constructs a QueueBuilder.
func NewQueueBuilder(store reminder.Store, locker ClientLocker, cfg BuilderConfig, logger logging.Logger, opts ...BuilderOption) QueueBuilder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	b := &queueBuilderImpl{
		store:     store,
		locker:    locker,
		holidays:  noHolidays{},
		publisher: reminder.NopPublisher{},
		metrics:   nopMetrics{},
		clock:     calendar.SystemClock{},
		logger:    logger,
		cfg:       cfg,
		adjust:    make(map[filing.FilingType]bool),
	}
	for _, ft := range cfg.AdjustDeadlines {
		b.adjust[ft] = true
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildClient reconciles one client.
func (b *queueBuilderImpl) BuildClient(ctx context.Context, clientID string) (*ClientResult, error) {
	unlock, err := b.locker.LockClient(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLockNotAcquired, "lock client").WithDetail(clientID)
	}
	defer unlock()

	var res *ClientResult
	err = b.store.WithTx(ctx, func(tx reminder.Store) error {
		var txErr error
		res, txErr = b.reconcile(ctx, tx, clientID)
		return txErr
	})
	if err != nil {
		b.metrics.RecordClientBuild(OutcomeError)
		return nil, err
	}

	if res.Paused {
		b.metrics.RecordClientBuild(OutcomeSkipped)
		return res, nil
	}
	b.metrics.RecordClientBuild(OutcomeSuccess)
	b.metrics.RecordEntries(ActionCreated, res.Created)
	b.metrics.RecordEntries(ActionRetired, res.Retired)

	if res.Created > 0 || res.Retired > 0 {
		ev := &reminder.QueueRebuiltEvent{
			EventMeta: reminder.NewEventMeta(b.clock.Now()),
			ClientID:  clientID,
			Created:   res.Created,
			Retired:   res.Retired,
			Kept:      res.Kept,
		}
		if err := b.publisher.Publish(ctx, ev); err != nil {
			b.logger.Warn("publish queue rebuilt event failed", logging.ClientID(clientID), logging.Err(err))
		}
	}
	b.logger.Debug("client queue reconciled",
		logging.ClientID(clientID),
		logging.Int("created", res.Created),
		logging.Int("retired", res.Retired),
		logging.Int("kept", res.Kept))
	return res, nil
}

// BuildAll reconciles every non-paused client with bounded concurrency.
func (b *queueBuilderImpl) BuildAll(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	defer func() { b.metrics.ObserveBatch("build_all", time.Since(start)) }()

	clients, err := b.store.Clients().List(ctx, filing.ClientFilter{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list clients")
	}

	result := &BatchResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for _, c := range clients {
		id := c.ID
		g.Go(func() error {
			if gctx.Err() != nil {
				result.AddError(id, gctx.Err())
				return nil
			}
			res, err := b.BuildClient(gctx, id)
			if err != nil {
				b.logger.Error("client queue build failed", logging.ClientID(id), logging.Err(err))
				result.AddError(id, err)
				return nil
			}
			result.AddClient(res)
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Info("queue build finished",
		logging.Int("clients", result.Clients),
		logging.Int("created", result.Created),
		logging.Int("retired", result.Retired),
		logging.Int("errors", len(result.Errors)),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Plan computes desired entries without writing.
func (b *queueBuilderImpl) Plan(ctx context.Context, clientID string) ([]*reminder.Entry, []SkippedObligation, error) {
	client, err := b.store.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	desired, skipped, err := b.desired(ctx, b.store, client)
	if err != nil {
		return nil, nil, err
	}
	out := make([]*reminder.Entry, 0, len(desired))
	for _, e := range desired {
		out = append(out, e)
	}
	sortByKey(out)
	return out, skipped, nil
}

// reconcile runs inside the client transaction.  Mutable entries whose key
// is no longer desired, or whose content changed, are deleted; desired keys
// without a surviving entry are inserted.  Pending entries keep their key
// whatever their content and are cancelled, never deleted, once the key is
// dropped.  Terminal entries satisfy their key and are never touched.
func (b *queueBuilderImpl) reconcile(ctx context.Context, tx reminder.Store, clientID string) (*ClientResult, error) {
	client, err := tx.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	res := &ClientResult{ClientID: clientID}
	if client.Paused {
		res.Paused = true
		res.Skipped = []SkippedObligation{{Reason: SkipPaused}}
		return res, nil
	}

	desired, skipped, err := b.desired(ctx, tx, client)
	if err != nil {
		return nil, err
	}
	res.Skipped = skipped

	existing, err := tx.Queue().List(ctx, reminder.EntryFilter{ClientID: clientID})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list queue entries")
	}

	satisfied := make(map[reminder.Key]bool)
	var retire, cancel []string
	for _, e := range existing {
		key := e.Key()
		if e.Status.IsInFlight() {
			if _, ok := desired[key]; !ok {
				cancel = append(cancel, e.ID)
				continue
			}
			satisfied[key] = true
			res.Kept++
			continue
		}
		if !e.Status.IsMutable() {
			satisfied[key] = true
			continue
		}
		want, ok := desired[key]
		if !ok || satisfied[key] || !e.SameContent(want) {
			retire = append(retire, e.ID)
			continue
		}
		satisfied[key] = true
		res.Kept++
	}

	if len(retire) > 0 {
		n, err := tx.Queue().DeleteByIDs(ctx, retire)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "retire queue entries")
		}
		res.Retired = n
	}
	for _, id := range cancel {
		ok, err := tx.Queue().UpdateStatus(ctx, id, []reminder.Status{reminder.StatusPending}, reminder.StatusCancelled, "obligation no longer scheduled")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "cancel in-flight entry").WithDetail(id)
		}
		if ok {
			res.Retired++
		}
	}

	entries := make([]*reminder.Entry, 0, len(desired))
	for key, e := range desired {
		if !satisfied[key] {
			entries = append(entries, e)
		}
	}
	sortByKey(entries)
	for _, e := range entries {
		created, err := tx.Queue().Insert(ctx, e)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "insert queue entry").WithDetail(e.Key().String())
		}
		if created {
			res.Created++
		}
	}
	return res, nil
}

// desired computes the entries the client should have, keyed by
// idempotency key.
func (b *queueBuilderImpl) desired(ctx context.Context, st reminder.Store, client *filing.Client) (map[reminder.Key]*reminder.Entry, []SkippedObligation, error) {
	today := calendar.Today(b.clock)
	now := b.clock.Now().UTC()

	assignments, err := st.Assignments().ListByClient(ctx, client.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list assignments")
	}
	overrides, err := st.DeadlineOverrides().ListByClient(ctx, client.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list deadline overrides")
	}

	var holidays calendar.HolidaySet
	if len(b.adjust) > 0 || b.cfg.ShiftSendDates {
		holidays = b.holidays.HolidaysOrWeekends(ctx, b.cfg.Region)
	}

	out := make(map[reminder.Key]*reminder.Entry)
	var skipped []SkippedObligation
	skip := func(ft filing.FilingType, reason string) {
		skipped = append(skipped, SkippedObligation{FilingType: ft, Reason: reason})
	}

	facts := deadline.FactsOf(client)
	for _, ft := range filing.ActiveTypes(assignments) {
		def, ok := filing.Lookup(ft)
		if !ok || !def.AppliesTo(client.ClientType) {
			skip(ft, SkipNotApplicable)
			continue
		}
		if client.HasRecordsReceived(ft) {
			skip(ft, SkipRecordsReceived)
			continue
		}
		if client.HasCompleted(ft) {
			skip(ft, SkipCompleted)
			continue
		}

		due, ok := b.effectiveDeadline(ft, facts, overrides, holidays, today)
		if !ok {
			skip(ft, SkipNoDeadline)
			continue
		}
		if due.Before(today) {
			skip(ft, SkipPastDeadline)
			continue
		}

		tpl, err := st.Templates().GetByFilingType(ctx, ft)
		if err != nil {
			if errors.IsNotFound(err) {
				skip(ft, SkipNoTemplate)
				continue
			}
			return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "load template")
		}
		stepOverrides, err := st.Templates().ListStepOverrides(ctx, client.ID, tpl.ID)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list step overrides")
		}

		for _, step := range template.Resolve(tpl.Steps, stepOverrides) {
			send := calendar.AddDays(due, -step.DelayDays)
			if send.After(due) {
				continue
			}
			if b.cfg.ShiftSendDates {
				if shifted := calendar.NextWorkingDay(send, holidays); !shifted.After(due) {
					send = shifted
				}
			}
			r := template.Render(step, template.Vars{
				ClientName: client.CompanyName,
				FilingType: ft,
				Deadline:   due,
				SendDate:   send,
			})
			e := reminder.NewEntry(client.ID, ft, tpl.ID, step.StepNumber, due, send, r.Subject, r.Body, now)
			out[e.Key()] = e
		}
	}
	return out, skipped, nil
}

func (b *queueBuilderImpl) CurrentDeadline(ctx context.Context, st reminder.Store, c *filing.Client, ft filing.FilingType) (time.Time, bool, error) {
	if st == nil {
		st = b.store
	}
	overrides, err := st.DeadlineOverrides().ListByClient(ctx, c.ID)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "list deadline overrides")
	}
	var holidays calendar.HolidaySet
	if b.adjust[ft] {
		holidays = b.holidays.HolidaysOrWeekends(ctx, b.cfg.Region)
	}
	due, ok := b.effectiveDeadline(ft, deadline.FactsOf(c), overrides, holidays, calendar.Today(b.clock))
	return due, ok, nil
}

func (b *queueBuilderImpl) effectiveDeadline(ft filing.FilingType, facts deadline.Facts, overrides []filing.DeadlineOverride, holidays calendar.HolidaySet, today time.Time) (time.Time, bool) {
	due, _, ok := deadline.Effective(ft, facts, filing.OverrideFor(overrides, ft), today)
	if !ok {
		return time.Time{}, false
	}
	if b.adjust[ft] {
		due = deadline.AdjustToWorkingDay(due, holidays)
	}
	return due, true
}

func sortByKey(es []*reminder.Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Key().String() < es[j].Key().String() })
}
