package credential

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	domain "github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/testutil"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

var now = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type memRepo struct {
	mu    sync.Mutex
	creds map[string]domain.Credential
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeCredentialNotFound, "credential not found")
	}
	return &c, nil
}

func (r *memRepo) Save(_ context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[c.ConnectionID] = *c
	return nil
}

type memLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	releases int32
	// busy makes every TryLock fail.
	busy bool
}

func (l *memLocker) TryLock(_ context.Context, name string, _ time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		atomic.AddInt32(&l.releases, 1)
		return nil
	}, true, nil
}

type mockRefresher struct{ mock.Mock }

func (m *mockRefresher) Refresh(ctx context.Context, rt string) (*domain.Token, error) {
	args := m.Called(ctx, rt)
	if t := args.Get(0); t != nil {
		return t.(*domain.Token), args.Error(1)
	}
	return nil, args.Error(1)
}

func newManager(expiresAt time.Time) (*Manager, *memRepo, *memLocker, *mockRefresher) {
	repo := &memRepo{creds: map[string]domain.Credential{
		"xero": {
			ConnectionID: "xero", Provider: "xero", AccessToken: "at-1", RefreshToken: "rt-1",
			ExpiresAt: expiresAt, UpdatedAt: now.Add(-time.Hour),
		},
	}}
	locker := &memLocker{held: map[string]bool{}}
	ref := &mockRefresher{}
	m := NewManager(repo, locker, ref, Config{RetryDelay: time.Millisecond, MaxAttempts: 50, Skew: time.Minute},
		calendar.FixedClock{T: now}, testutil.NewMockLogger())
	return m, repo, locker, ref
}

func TestAccessToken_FreshSkipsRefresh(t *testing.T) {
	m, _, locker, ref := newManager(now.Add(time.Hour))

	tok, err := m.AccessToken(context.Background(), "xero")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok)
	ref.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	assert.Equal(t, int32(0), locker.releases)
}

func TestAccessToken_RefreshesWithinSkew(t *testing.T) {
	m, repo, locker, ref := newManager(now.Add(30 * time.Second))
	ref.On("Refresh", mock.Anything, "rt-1").Return(&domain.Token{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: time.Hour}, nil).Once()

	tok, err := m.AccessToken(context.Background(), "xero")
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok)

	saved := repo.creds["xero"]
	assert.Equal(t, "rt-2", saved.RefreshToken)
	assert.Equal(t, now.Add(time.Hour), saved.ExpiresAt)
	assert.Equal(t, int32(1), locker.releases)
	assert.Empty(t, locker.held)
	ref.AssertExpectations(t)
}

func TestAccessToken_ConcurrentCallersRefreshOnce(t *testing.T) {
	m, _, _, ref := newManager(now.Add(-time.Minute))
	ref.On("Refresh", mock.Anything, "rt-1").
		Run(func(mock.Arguments) { time.Sleep(5 * time.Millisecond) }).
		Return(&domain.Token{AccessToken: "at-2", ExpiresIn: time.Hour}, nil)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	errs := make([]error, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.AccessToken(context.Background(), "xero")
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-2", tokens[i])
	}
	ref.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestAccessToken_RefreshFailureReleasesLock(t *testing.T) {
	m, repo, locker, ref := newManager(now.Add(-time.Minute))
	ref.On("Refresh", mock.Anything, "rt-1").Return(nil, fmt.Errorf("invalid_grant"))

	_, err := m.AccessToken(context.Background(), "xero")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCredentialRefresh))
	assert.Empty(t, locker.held)
	assert.Equal(t, int32(1), locker.releases)
	assert.Equal(t, "at-1", repo.creds["xero"].AccessToken)
}

func TestAccessToken_BusyLockGivesUp(t *testing.T) {
	m, _, locker, ref := newManager(now.Add(-time.Minute))
	locker.busy = true
	var waits []time.Duration
	m.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	m.cfg.MaxAttempts = 4

	_, err := m.AccessToken(context.Background(), "xero")
	assert.True(t, errors.IsCode(err, errors.ErrCodeRefreshInProgress))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, waits)
	ref.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestForceRefresh(t *testing.T) {
	m, _, _, ref := newManager(now.Add(time.Hour))
	ref.On("Refresh", mock.Anything, "rt-1").Return(&domain.Token{AccessToken: "at-2", ExpiresIn: time.Hour}, nil).Once()

	cred, err := m.ForceRefresh(context.Background(), "xero")
	require.NoError(t, err)
	assert.Equal(t, "at-2", cred.AccessToken)
	assert.Equal(t, "rt-1", cred.RefreshToken)
}

func TestAccessToken_UnknownConnection(t *testing.T) {
	m, _, _, _ := newManager(now)
	_, err := m.AccessToken(context.Background(), "sage")
	assert.True(t, errors.IsNotFound(err))
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingMetrics) RecordCredentialRefresh(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[outcome]++
}

func TestMetrics_RecordOutcomes(t *testing.T) {
	m, _, locker, ref := newManager(now.Add(-time.Minute))
	metrics := &countingMetrics{outcomes: map[string]int{}}
	m.SetMetrics(metrics)
	ref.On("Refresh", mock.Anything, "rt-1").Return(nil, fmt.Errorf("invalid_grant")).Once()

	_, err := m.AccessToken(context.Background(), "xero")
	require.Error(t, err)

	locker.busy = true
	m.cfg.MaxAttempts = 1
	_, err = m.AccessToken(context.Background(), "xero")
	require.True(t, errors.IsCode(err, errors.ErrCodeRefreshInProgress))

	assert.Equal(t, 1, metrics.outcomes[RefreshOutcomeError])
	assert.Equal(t, 1, metrics.outcomes[RefreshOutcomeBusy])
}
