// Package deadline maps a filing type and the client's facts to the statutory
// deadline date.  Every rule is a pure function; a rule whose required fact is
// missing returns nil and callers skip that filing type.
//
// Working-day adjustment is never applied here.  Callers that want a
// business-day shifted date call AdjustToWorkingDay explicitly.
package deadline

import (
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

// Facts are the client attributes deadline rules read.
type Facts struct {
	YearEnd         *time.Time
	VATStaggerGroup *int
}

// FactsOf extracts Facts from a client.
func FactsOf(c *filing.Client) Facts {
	return Facts{YearEnd: c.YearEnd, VATStaggerGroup: c.VATStaggerGroup}
}

// Source tells where an effective deadline came from.
type Source string

const (
	SourceCalculated Source = "calculated"
	SourceOverride   Source = "override"
)

// Rule computes a deadline from facts as of today, or nil.
type Rule func(f Facts, today time.Time) *time.Time

var rules = map[filing.FilingType]Rule{
	filing.CorporationTaxPayment:  CorporationTaxPayment,
	filing.CT600Filing:            CT600Filing,
	filing.CompaniesHouseAccounts: CompaniesHouseAccounts,
	filing.VATReturn:              VATReturn,
	filing.SelfAssessment:         SelfAssessment,
}

// Calculate applies the rule registered for ft.  Unknown filing types and
// missing facts both yield nil.
func Calculate(ft filing.FilingType, f Facts, today time.Time) *time.Time {
	rule, ok := rules[ft]
	if !ok {
		return nil
	}
	return rule(f, calendar.Normalize(today))
}

// Effective returns the override date when one is given, otherwise the
// calculated date.  ok is false when neither resolves.
func Effective(ft filing.FilingType, f Facts, override *filing.DeadlineOverride, today time.Time) (date time.Time, src Source, ok bool) {
	if override != nil {
		return calendar.Normalize(override.Date), SourceOverride, true
	}
	if d := Calculate(ft, f, today); d != nil {
		return *d, SourceCalculated, true
	}
	return time.Time{}, "", false
}

// AdjustToWorkingDay shifts d forward to the next working day.
func AdjustToWorkingDay(d time.Time, holidays calendar.HolidaySet) time.Time {
	return calendar.NextWorkingDay(d, holidays)
}

// ─────────────────────────────────────────────────────────────────────────────
// Annual rules
// ─────────────────────────────────────────────────────────────────────────────

// CorporationTaxPayment: year-end + 9 months + 1 day.
func CorporationTaxPayment(f Facts, _ time.Time) *time.Time {
	if f.YearEnd == nil {
		return nil
	}
	d := calendar.AddDays(calendar.AddMonths(*f.YearEnd, 9), 1)
	return &d
}

// CT600Filing: year-end + 12 months.
func CT600Filing(f Facts, _ time.Time) *time.Time {
	if f.YearEnd == nil {
		return nil
	}
	d := calendar.AddMonths(*f.YearEnd, 12)
	return &d
}

// CompaniesHouseAccounts: year-end + 9 months.
func CompaniesHouseAccounts(f Facts, _ time.Time) *time.Time {
	if f.YearEnd == nil {
		return nil
	}
	d := calendar.AddMonths(*f.YearEnd, 9)
	return &d
}

// ─────────────────────────────────────────────────────────────────────────────
// VAT
// ─────────────────────────────────────────────────────────────────────────────

// staggerFirstQuarterEnd is the first quarter-end month of each stagger group.
// Stagger 1 ends Mar/Jun/Sep/Dec, 2 ends Jan/Apr/Jul/Oct, 3 ends Feb/May/Aug/Nov.
var staggerFirstQuarterEnd = map[int]time.Month{
	1: time.March,
	2: time.January,
	3: time.February,
}

// LastQuarterEnd returns the most recent quarter-end of the stagger group that
// is strictly before today.
func LastQuarterEnd(stagger int, today time.Time) (time.Time, bool) {
	first, ok := staggerFirstQuarterEnd[stagger]
	if !ok {
		return time.Time{}, false
	}
	today = calendar.Normalize(today)
	// Walk back month by month; a quarter-end is found within four months.
	for i := 0; i <= 4; i++ {
		m := calendar.AddMonths(calendar.Date(today.Year(), today.Month(), 1), -i)
		if (int(m.Month())-int(first)+12)%3 != 0 {
			continue
		}
		end := calendar.EndOfMonth(m)
		if end.Before(today) {
			return end, true
		}
	}
	return time.Time{}, false
}

// VATReturn: the stagger group's most recently completed quarter-end
// + 1 month + 7 days.
func VATReturn(f Facts, today time.Time) *time.Time {
	if f.VATStaggerGroup == nil {
		return nil
	}
	qe, ok := LastQuarterEnd(*f.VATStaggerGroup, today)
	if !ok {
		return nil
	}
	d := calendar.AddDays(calendar.AddMonths(qe, 1), 7)
	return &d
}

// ─────────────────────────────────────────────────────────────────────────────
// Self assessment
// ─────────────────────────────────────────────────────────────────────────────

// TaxYearEnd returns 5 April of the most recently ended UK tax year.
func TaxYearEnd(today time.Time) time.Time {
	today = calendar.Normalize(today)
	end := calendar.Date(today.Year(), time.April, 5)
	if !end.Before(today) {
		end = calendar.Date(today.Year()-1, time.April, 5)
	}
	return end
}

// SelfAssessment: 31 January following the most recently ended tax year.
func SelfAssessment(_ Facts, today time.Time) *time.Time {
	end := TaxYearEnd(today)
	d := calendar.Date(end.Year()+1, time.January, 31)
	return &d
}
