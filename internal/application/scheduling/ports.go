// Package scheduling reconciles the reminder queue with what the current
// client facts, deadlines and templates call for, and moves entries through
// their send lifecycle.
package scheduling

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
)

// HolidayProvider supplies non-working dates.  It never fails; with no data
// it returns an empty set so only weekends are skipped.
type HolidayProvider interface {
	HolidaysOrWeekends(ctx context.Context, region string) calendar.HolidaySet
}

// Metrics receives queue activity counters.
type Metrics interface {
	RecordEntries(action string, n int)
	RecordClientBuild(outcome string)
	ObserveBatch(job string, d time.Duration)
}

// Entry actions and client outcomes reported to Metrics.
const (
	ActionCreated  = "created"
	ActionRetired  = "retired"
	ActionPromoted = "promoted"
	ActionSent     = "sent"
	ActionFailed   = "failed"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

type nopMetrics struct{}

func (nopMetrics) RecordEntries(string, int)           {}
func (nopMetrics) RecordClientBuild(string)            {}
func (nopMetrics) ObserveBatch(string, time.Duration) {}

type noHolidays struct{}

func (noHolidays) HolidaysOrWeekends(context.Context, string) calendar.HolidaySet {
	return calendar.NewHolidaySet()
}
