// Package holiday supplies bank-holiday sets to the scheduling engine through
// a TTL cache with an injectable clock and an optional shared second level.
package holiday

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// Region names understood by the gov.uk feed.
const (
	RegionEnglandAndWales = "england-and-wales"
	RegionScotland        = "scotland"
	RegionNorthernIreland = "northern-ireland"
)

// Source returns the non-working dates of a region.
type Source interface {
	Holidays(ctx context.Context, region string) (calendar.HolidaySet, error)
}

// SharedStore is a cache level shared between processes.
type SharedStore interface {
	Get(ctx context.Context, region string) (calendar.HolidaySet, bool, error)
	Set(ctx context.Context, region string, set calendar.HolidaySet, ttl time.Duration) error
}

// Metrics records fetch outcomes.
type Metrics interface {
	RecordHolidayFetch(region, result string)
}

// Fetch outcomes reported to Metrics.
const (
	ResultFresh  = "fresh"
	ResultShared = "shared"
	ResultFetch  = "fetched"
	ResultStale  = "stale"
	ResultError  = "error"
)

type cacheEntry struct {
	set       calendar.HolidaySet
	fetchedAt time.Time
}

// Cache wraps a Source.  Fresh entries are served from memory; when an entry
// expires the source is asked again and, if it fails, the expired entry is
// served with a warning.
type Cache struct {
	source       Source
	shared       SharedStore
	ttl          time.Duration
	fetchTimeout time.Duration
	clock        calendar.Clock
	logger       logging.Logger
	metrics      Metrics

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithFetchTimeout bounds one source fetch.  The fetch is shared by every
// concurrent caller of a region, so it does not inherit any caller's
// cancellation.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithClock injects the time source.
func WithClock(clock calendar.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

// WithSharedStore adds a shared second level.
func WithSharedStore(s SharedStore) CacheOption {
	return func(c *Cache) { c.shared = s }
}

// WithMetrics reports fetch outcomes.
func WithMetrics(m Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache builds a Cache over source.  The default TTL is 24 hours and a
// fetch is given 30 seconds.
func NewCache(source Source, logger logging.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		source:       source,
		ttl:          24 * time.Hour,
		fetchTimeout: 30 * time.Second,
		clock:        calendar.SystemClock{},
		logger:       logger,
		entries:      make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Holidays returns the holiday set of region.  The returned set is shared and
// must not be modified.
func (c *Cache) Holidays(ctx context.Context, region string) (calendar.HolidaySet, error) {
	now := c.clock.Now()

	c.mu.Lock()
	entry, ok := c.entries[region]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		c.record(region, ResultFresh)
		return entry.set, nil
	}

	if c.shared != nil {
		set, hit, err := c.shared.Get(ctx, region)
		if err != nil {
			c.logger.Warn("holiday shared cache read failed", logging.String("region", region), logging.Err(err))
		} else if hit {
			c.store(region, set, now)
			c.record(region, ResultShared)
			return set, nil
		}
	}

	fetch := c.group.DoChan(region, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.source.Holidays(fctx, region)
	})
	var (
		v   interface{}
		err error
	)
	select {
	case r := <-fetch:
		v, err = r.Val, r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if ok {
			c.logger.Warn("holiday source unreachable, serving stale data",
				logging.String("region", region),
				logging.Duration("age", now.Sub(entry.fetchedAt)),
				logging.Err(err))
			c.record(region, ResultStale)
			return entry.set, nil
		}
		c.record(region, ResultError)
		return nil, errors.Wrap(err, errors.ErrCodeHolidaySource, "fetch bank holidays").WithDetail(region)
	}

	set := v.(calendar.HolidaySet)
	c.store(region, set, now)
	if c.shared != nil {
		if err := c.shared.Set(ctx, region, set, c.ttl); err != nil {
			c.logger.Warn("holiday shared cache write failed", logging.String("region", region), logging.Err(err))
		}
	}
	c.record(region, ResultFetch)
	return set, nil
}

// HolidaysOrWeekends is Holidays falling back to an empty set, so callers
// still skip weekends when no holiday data has ever been obtained.
func (c *Cache) HolidaysOrWeekends(ctx context.Context, region string) calendar.HolidaySet {
	set, err := c.Holidays(ctx, region)
	if err != nil {
		c.logger.Error("no holiday data available, using weekends only", logging.String("region", region), logging.Err(err))
		return calendar.NewHolidaySet()
	}
	return set
}

// Invalidate drops the in-memory entry of region.
func (c *Cache) Invalidate(region string) {
	c.mu.Lock()
	delete(c.entries, region)
	c.mu.Unlock()
}

func (c *Cache) store(region string, set calendar.HolidaySet, at time.Time) {
	c.mu.Lock()
	c.entries[region] = cacheEntry{set: set, fetchedAt: at}
	c.mu.Unlock()
}

func (c *Cache) record(region, result string) {
	if c.metrics != nil {
		c.metrics.RecordHolidayFetch(region, result)
	}
}
