package holiday

import (
	"context"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// StaticSource serves fixed dates.  Dates under the empty region apply to
// every region.
type StaticSource struct {
	dates map[string]calendar.HolidaySet
}

// NewStaticSource parses YYYY-MM-DD strings per region.
func NewStaticSource(byRegion map[string][]string) (*StaticSource, error) {
	s := &StaticSource{dates: make(map[string]calendar.HolidaySet)}
	for region, list := range byRegion {
		set := calendar.NewHolidaySet()
		for _, raw := range list {
			d, err := calendar.ParseDate(raw)
			if err != nil {
				return nil, errors.NewValidationError("holidays."+region, "invalid date "+raw)
			}
			set.Add(d)
		}
		s.dates[region] = set
	}
	return s, nil
}

// Holidays returns the region's dates merged with the global ones.
func (s *StaticSource) Holidays(_ context.Context, region string) (calendar.HolidaySet, error) {
	return s.dates[region].Merge(s.dates[""]), nil
}

// Combined merges the sets of several sources.  Any failing source fails the
// whole lookup so the cache can fall back to stale data.
type Combined []Source

// Holidays merges every source's set for region.
func (c Combined) Holidays(ctx context.Context, region string) (calendar.HolidaySet, error) {
	out := calendar.NewHolidaySet()
	for _, s := range c {
		set, err := s.Holidays(ctx, region)
		if err != nil {
			return nil, err
		}
		out = out.Merge(set)
	}
	return out, nil
}
