// Package deadlines lists a client's effective deadlines and exports them as
// an iCalendar file.
package deadlines

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/deadline"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// Status classifies a deadline relative to today.
type Status string

const (
	StatusOverdue  Status = "overdue"
	StatusDueSoon  Status = "due_soon"
	StatusUpcoming Status = "upcoming"
)

// DueSoonDays is the window in which a deadline counts as due soon.
const DueSoonDays = 14

// Item is one effective deadline of a client.
type Item struct {
	FilingType      filing.FilingType `json:"filing_type"`
	DisplayName     string            `json:"display_name"`
	Deadline        time.Time         `json:"deadline"`
	Source          deadline.Source   `json:"source"`
	WorkingDay      time.Time         `json:"working_day"`
	DaysRemaining   int               `json:"days_remaining"`
	Status          Status            `json:"status"`
	RecordsReceived bool              `json:"records_received"`
	Completed       bool              `json:"completed"`
}

// Listing is a client's deadlines ordered by date.
type Listing struct {
	ClientID    string    `json:"client_id"`
	CompanyName string    `json:"company_name"`
	AsOf        time.Time `json:"as_of"`
	Items       []Item    `json:"items"`
	// Missing lists active filing types without a resolvable deadline.
	Missing []filing.FilingType `json:"missing,omitempty"`
}

// ObjectStore stores export files.
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// Export describes an uploaded calendar file.
type Export struct {
	ObjectName string    `json:"object_name"`
	URL        string    `json:"url"`
	Size       int       `json:"size"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Service computes deadline listings.
type Service struct {
	store    reminder.Store
	holidays scheduling.HolidayProvider
	region   string
	objects  ObjectStore
	expiry   time.Duration
	clock    calendar.Clock
	logger   logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithObjectStore enables ICS uploads with presigned links valid for expiry.
func WithObjectStore(o ObjectStore, expiry time.Duration) Option {
	return func(s *Service) {
		s.objects = o
		if expiry > 0 {
			s.expiry = expiry
		}
	}
}

// WithClock injects the time source.
func WithClock(c calendar.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService constructs a Service.
func NewService(store reminder.Store, holidays scheduling.HolidayProvider, region string, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		holidays: holidays,
		region:   region,
		expiry:   24 * time.Hour,
		clock:    calendar.SystemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForClient lists every active filing type's effective deadline.
func (s *Service) ForClient(ctx context.Context, clientID string) (*Listing, error) {
	c, err := s.store.Clients().Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.store.Assignments().ListByClient(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list assignments")
	}
	overrides, err := s.store.DeadlineOverrides().ListByClient(ctx, clientID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list deadline overrides")
	}

	today := calendar.Today(s.clock)
	holidays := calendar.NewHolidaySet()
	if s.holidays != nil {
		holidays = s.holidays.HolidaysOrWeekends(ctx, s.region)
	}

	out := &Listing{ClientID: c.ID, CompanyName: c.CompanyName, AsOf: today}
	facts := deadline.FactsOf(c)
	for _, ft := range filing.ActiveTypes(assignments) {
		due, src, ok := deadline.Effective(ft, facts, filing.OverrideFor(overrides, ft), today)
		if !ok {
			out.Missing = append(out.Missing, ft)
			continue
		}
		days := calendar.DaysBetween(today, due)
		out.Items = append(out.Items, Item{
			FilingType:      ft,
			DisplayName:     ft.DisplayName(),
			Deadline:        due,
			Source:          src,
			WorkingDay:      deadline.AdjustToWorkingDay(due, holidays),
			DaysRemaining:   days,
			Status:          statusFor(days),
			RecordsReceived: c.HasRecordsReceived(ft),
			Completed:       c.HasCompleted(ft),
		})
	}
	sort.SliceStable(out.Items, func(i, j int) bool {
		if !out.Items[i].Deadline.Equal(out.Items[j].Deadline) {
			return out.Items[i].Deadline.Before(out.Items[j].Deadline)
		}
		return out.Items[i].FilingType < out.Items[j].FilingType
	})
	return out, nil
}

// ICS renders the client's deadlines as an iCalendar document.
func (s *Service) ICS(ctx context.Context, clientID string) ([]byte, *Listing, error) {
	l, err := s.ForClient(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	return BuildICS(l, s.clock.Now()), l, nil
}

// ExportICS uploads the client's calendar and returns a presigned link.
func (s *Service) ExportICS(ctx context.Context, clientID string) (*Export, error) {
	if s.objects == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "calendar export storage not configured")
	}
	data, _, err := s.ICS(ctx, clientID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	name := fmt.Sprintf("deadlines/%s/%s.ics", clientID, now.Format("20060102T150405Z"))
	if err := s.objects.Put(ctx, name, data, "text/calendar; charset=utf-8"); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "upload calendar")
	}
	u, err := s.objects.PresignedGetURL(ctx, name, s.expiry)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "presign calendar")
	}
	s.logger.Info("deadline calendar exported", logging.ClientID(clientID), logging.String("object", name), logging.Int("bytes", len(data)))
	return &Export{ObjectName: name, URL: u, Size: len(data), ExpiresAt: now.Add(s.expiry)}, nil
}

func statusFor(daysRemaining int) Status {
	switch {
	case daysRemaining < 0:
		return StatusOverdue
	case daysRemaining <= DueSoonDays:
		return StatusDueSoon
	default:
		return StatusUpcoming
	}
}
