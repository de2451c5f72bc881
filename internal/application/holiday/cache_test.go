package holiday

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/testutil"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Holidays(ctx context.Context, region string) (calendar.HolidaySet, error) {
	args := m.Called(ctx, region)
	set, _ := args.Get(0).(calendar.HolidaySet)
	return set, args.Error(1)
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memShared struct {
	sets map[string]calendar.HolidaySet
	ttls map[string]time.Duration
}

func (s *memShared) Get(_ context.Context, region string) (calendar.HolidaySet, bool, error) {
	set, ok := s.sets[region]
	return set, ok, nil
}

func (s *memShared) Set(_ context.Context, region string, set calendar.HolidaySet, ttl time.Duration) error {
	s.sets[region] = set
	s.ttls[region] = ttl
	return nil
}

type countingMetrics struct {
	mu      sync.Mutex
	results map[string]int
}

func (m *countingMetrics) RecordHolidayFetch(_, result string) {
	m.mu.Lock()
	m.results[result]++
	m.mu.Unlock()
}

var christmas = calendar.NewHolidaySet(calendar.MustParseDate("2025-12-25"), calendar.MustParseDate("2025-12-26"))

func TestCache_ServesFreshFromMemory(t *testing.T) {
	src := &mockSource{}
	src.On("Holidays", mock.Anything, RegionEnglandAndWales).Return(christmas, nil).Once()
	clock := &manualClock{t: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)}
	metrics := &countingMetrics{results: map[string]int{}}

	c := NewCache(src, testutil.NewMockLogger(), WithTTL(time.Hour), WithClock(clock), WithMetrics(metrics))

	for i := 0; i < 3; i++ {
		set, err := c.Holidays(context.Background(), RegionEnglandAndWales)
		require.NoError(t, err)
		assert.True(t, set.Contains(calendar.MustParseDate("2025-12-25")))
	}
	src.AssertExpectations(t)
	assert.Equal(t, 1, metrics.results[ResultFetch])
	assert.Equal(t, 2, metrics.results[ResultFresh])
}

func TestCache_RefetchesAfterTTL(t *testing.T) {
	src := &mockSource{}
	src.On("Holidays", mock.Anything, RegionScotland).Return(christmas, nil).Twice()
	clock := &manualClock{t: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)}

	c := NewCache(src, testutil.NewMockLogger(), WithTTL(time.Hour), WithClock(clock))

	_, err := c.Holidays(context.Background(), RegionScotland)
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)
	_, err = c.Holidays(context.Background(), RegionScotland)
	require.NoError(t, err)

	src.AssertExpectations(t)
}

func TestCache_StaleFallbackLogsWarning(t *testing.T) {
	src := &mockSource{}
	src.On("Holidays", mock.Anything, RegionEnglandAndWales).Return(christmas, nil).Once()
	src.On("Holidays", mock.Anything, RegionEnglandAndWales).Return(nil, fmt.Errorf("dial tcp: timeout")).Once()
	clock := &manualClock{t: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)}
	logger := testutil.NewMockLogger()

	c := NewCache(src, logger, WithTTL(time.Hour), WithClock(clock))

	_, err := c.Holidays(context.Background(), RegionEnglandAndWales)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	set, err := c.Holidays(context.Background(), RegionEnglandAndWales)
	require.NoError(t, err)
	assert.Equal(t, christmas, set)
	assert.True(t, logger.HasMessage("warn", "holiday source unreachable, serving stale data"))
}

func TestCache_NoEntryAndSourceDown(t *testing.T) {
	src := &mockSource{}
	src.On("Holidays", mock.Anything, RegionNorthernIreland).Return(nil, fmt.Errorf("503"))
	logger := testutil.NewMockLogger()

	c := NewCache(src, logger)

	_, err := c.Holidays(context.Background(), RegionNorthernIreland)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHolidaySource))

	set := c.HolidaysOrWeekends(context.Background(), RegionNorthernIreland)
	assert.Empty(t, set)
	assert.True(t, logger.HasMessage("error", "no holiday data available, using weekends only"))
}

type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func (s *gatedSource) Holidays(ctx context.Context, _ string) (calendar.HolidaySet, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return christmas, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCache_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(src, testutil.NewMockLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Holidays(firstCtx, RegionEnglandAndWales)
		firstErr <- err
	}()
	<-src.started

	type result struct {
		set calendar.HolidaySet
		err error
	}
	second := make(chan result, 1)
	go func() {
		set, err := c.Holidays(context.Background(), RegionEnglandAndWales)
		second <- result{set, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.Error(t, <-firstErr)

	close(src.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, christmas, got.set)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.calls)
}

func TestCache_SharedStore(t *testing.T) {
	shared := &memShared{sets: map[string]calendar.HolidaySet{}, ttls: map[string]time.Duration{}}
	src := &mockSource{}
	src.On("Holidays", mock.Anything, RegionEnglandAndWales).Return(christmas, nil).Once()

	first := NewCache(src, testutil.NewMockLogger(), WithSharedStore(shared), WithTTL(6*time.Hour))
	_, err := first.Holidays(context.Background(), RegionEnglandAndWales)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, shared.ttls[RegionEnglandAndWales])

	// A second process reads the shared level and never calls the source.
	second := NewCache(src, testutil.NewMockLogger(), WithSharedStore(shared))
	set, err := second.Holidays(context.Background(), RegionEnglandAndWales)
	require.NoError(t, err)
	assert.Equal(t, christmas, set)
	src.AssertExpectations(t)
}

func TestCache_Invalidate(t *testing.T) {
	src := &mockSource{}
	src.On("Holidays", mock.Anything, RegionScotland).Return(christmas, nil).Twice()

	c := NewCache(src, testutil.NewMockLogger())
	_, _ = c.Holidays(context.Background(), RegionScotland)
	c.Invalidate(RegionScotland)
	_, _ = c.Holidays(context.Background(), RegionScotland)
	src.AssertExpectations(t)
}

func TestStaticSource(t *testing.T) {
	s, err := NewStaticSource(map[string][]string{
		"":              {"2026-05-08"},
		RegionScotland: {"2026-11-30"},
	})
	require.NoError(t, err)

	set, err := s.Holidays(context.Background(), RegionScotland)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-05-08", "2026-11-30"}, set.Keys())

	set, err = s.Holidays(context.Background(), RegionEnglandAndWales)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-05-08"}, set.Keys())

	_, err = NewStaticSource(map[string][]string{"": {"08/05/2026"}})
	assert.True(t, errors.IsValidation(err))
}

func TestCombined_FailsWhenAnySourceFails(t *testing.T) {
	static, err := NewStaticSource(map[string][]string{"": {"2026-05-08"}})
	require.NoError(t, err)
	down := &mockSource{}
	down.On("Holidays", mock.Anything, RegionScotland).Return(nil, fmt.Errorf("down"))

	_, err = Combined{static, down}.Holidays(context.Background(), RegionScotland)
	assert.Error(t, err)

	set, err := Combined{static}.Holidays(context.Background(), RegionScotland)
	require.NoError(t, err)
	assert.True(t, set.Contains(calendar.MustParseDate("2026-05-08")))
}
