// Package rollover finds obligations whose records have arrived and whose
// deadline has passed, and advances them to their next cycle.
package rollover

import (
	"context"
	"sort"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/deadline"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// Candidate is a (client, filing type) ready to roll over.
type Candidate struct {
	ClientID    string            `json:"client_id"`
	CompanyName string            `json:"company_name"`
	FilingType  filing.FilingType `json:"filing_type"`
	Deadline    time.Time         `json:"deadline"`
	DaysOverdue int               `json:"days_overdue"`
}

// Detector lists rollover candidates.  It never writes.
type Detector interface {
	Candidates(ctx context.Context) ([]Candidate, error)
	// ForClient lists the candidates of one client.
	ForClient(ctx context.Context, clientID string) ([]Candidate, error)
}

type detectorImpl struct {
	store  reminder.Store
	clock  calendar.Clock
	logger logging.Logger
}

// NewDetector constructs a Detector.
func NewDetector(store reminder.Store, clock calendar.Clock, logger logging.Logger) Detector {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &detectorImpl{store: store, clock: clock, logger: logger}
}

// Candidates scans every non-paused client carrying a records-received
// marker.  The result is ordered by days overdue, most overdue first.
func (d *detectorImpl) Candidates(ctx context.Context) ([]Candidate, error) {
	clients, err := d.store.Clients().List(ctx, filing.ClientFilter{WithRecordsReceived: true})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list clients")
	}
	today := calendar.Today(d.clock)

	var out []Candidate
	for _, c := range clients {
		found, err := d.scan(ctx, c, today)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	sortCandidates(out)
	d.logger.Debug("rollover candidates detected", logging.Int("clients", len(clients)), logging.Int("candidates", len(out)))
	return out, nil
}

func (d *detectorImpl) ForClient(ctx context.Context, clientID string) ([]Candidate, error) {
	c, err := d.store.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if c.Paused {
		return nil, nil
	}
	out, err := d.scan(ctx, c, calendar.Today(d.clock))
	if err != nil {
		return nil, err
	}
	sortCandidates(out)
	return out, nil
}

func (d *detectorImpl) scan(ctx context.Context, c *filing.Client, today time.Time) ([]Candidate, error) {
	if c.Paused || len(c.RecordsReceivedFor) == 0 {
		return nil, nil
	}
	assignments, err := d.store.Assignments().ListByClient(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list assignments").WithDetail(c.ID)
	}
	overrides, err := d.store.DeadlineOverrides().ListByClient(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list deadline overrides").WithDetail(c.ID)
	}
	active := make(map[filing.FilingType]bool)
	for _, ft := range filing.ActiveTypes(assignments) {
		active[ft] = true
	}

	var out []Candidate
	facts := deadline.FactsOf(c)
	for _, ft := range c.RecordsReceivedFor {
		if !active[ft] {
			continue
		}
		due, _, ok := deadline.Effective(ft, facts, filing.OverrideFor(overrides, ft), today)
		if !ok || !due.Before(today) {
			continue
		}
		out = append(out, Candidate{
			ClientID:    c.ID,
			CompanyName: c.CompanyName,
			FilingType:  ft,
			Deadline:    due,
			DaysOverdue: calendar.DaysBetween(due, today),
		})
	}
	return out, nil
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].DaysOverdue != cs[j].DaysOverdue {
			return cs[i].DaysOverdue > cs[j].DaysOverdue
		}
		if cs[i].ClientID != cs[j].ClientID {
			return cs[i].ClientID < cs[j].ClientID
		}
		return cs[i].FilingType < cs[j].FilingType
	})
}
