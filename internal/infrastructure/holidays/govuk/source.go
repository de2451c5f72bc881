// Package govuk reads UK bank holidays from the gov.uk JSON feed.
package govuk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// DefaultURL is the public feed.
const DefaultURL = "https://www.gov.uk/bank-holidays.json"

// Config configures the feed client.
type Config struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type division struct {
	Division string  `json:"division"`
	Events   []event `json:"events"`
}

type event struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

// Source implements holiday.Source against the feed.  Every call performs one
// request; caching is left to holiday.Cache.
type Source struct {
	url        string
	httpClient *http.Client
	logger     logging.Logger
}

// NewSource constructs a Source.
func NewSource(cfg Config, logger logging.Logger) *Source {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Source{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Holidays returns the dates of region.  An unknown region is a validation
// error; a malformed event date is skipped with a warning.
func (s *Source) Holidays(ctx context.Context, region string) (calendar.HolidaySet, error) {
	divisions, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := divisions[region]
	if !ok {
		return nil, errors.NewValidationError("region", fmt.Sprintf("unknown bank holiday region %q", region))
	}

	set := calendar.NewHolidaySet()
	for _, ev := range d.Events {
		date, err := calendar.ParseDate(ev.Date)
		if err != nil {
			s.logger.Warn("skipping malformed bank holiday",
				logging.String("region", region),
				logging.String("title", ev.Title),
				logging.String("date", ev.Date),
			)
			continue
		}
		set.Add(date)
	}
	s.logger.Debug("bank holidays fetched", logging.String("region", region), logging.Int("count", len(set)))
	return set, nil
}

func (s *Source) fetch(ctx context.Context) (map[string]division, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "build bank holiday request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "bank holiday feed unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeExternalService, "bank holiday feed returned %s", resp.Status)
	}

	var out map[string]division
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode bank holiday feed")
	}
	return out, nil
}
