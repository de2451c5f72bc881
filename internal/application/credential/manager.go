// Package credential keeps the accounting-data connection's OAuth access token
// fresh across concurrent processes.
package credential

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	domain "github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// ReleaseFunc releases a held lock.  It is safe to call once.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires a short-lived lock shared by every process.
type Locker interface {
	// TryLock returns ok=false without error when another holder owns name.
	TryLock(ctx context.Context, name string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// Refresher exchanges a refresh token with the provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.Token, error)
}

// Config tunes refresh behaviour.
type Config struct {
	// LockTTL bounds how long a crashed holder blocks others.
	LockTTL time.Duration
	// RetryDelay is the first wait when the lock is busy; it doubles per
	// attempt.
	RetryDelay time.Duration
	// MaxAttempts bounds lock attempts per call.
	MaxAttempts int
	// Skew treats tokens expiring within this window as stale.
	Skew time.Duration
}

func (c *Config) applyDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Skew < 0 {
		c.Skew = 0
	}
}

// Manager hands out fresh access tokens.
type Manager struct {
	repo      domain.Repository
	locker    Locker
	refresher Refresher
	cfg       Config
	clock     calendar.Clock
	logger    logging.Logger
	metrics   Metrics
	sleep     func(ctx context.Context, d time.Duration) error
}

// Metrics counts refresh outcomes.
type Metrics interface {
	RecordCredentialRefresh(outcome string)
}

// Refresh outcomes reported to Metrics.
const (
	RefreshOutcomeRefreshed = "refreshed"
	RefreshOutcomeError     = "error"
	RefreshOutcomeBusy      = "busy"
)

type nopMetrics struct{}

func (nopMetrics) RecordCredentialRefresh(string) {}

// NewManager constructs a Manager.
func NewManager(repo domain.Repository, locker Locker, refresher Refresher, cfg Config, clock calendar.Clock, logger logging.Logger) *Manager {
	cfg.applyDefaults()
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Manager{
		repo:      repo,
		locker:    locker,
		refresher: refresher,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		metrics:   nopMetrics{},
		sleep:     sleepCtx,
	}
}

// SetMetrics attaches a Metrics sink.
func (m *Manager) SetMetrics(metrics Metrics) {
	if metrics != nil {
		m.metrics = metrics
	}
}

// AccessToken returns a usable access token, refreshing it when stale.
func (m *Manager) AccessToken(ctx context.Context, connectionID string) (string, error) {
	cred, err := m.refresh(ctx, connectionID, false)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// ForceRefresh refreshes the token even when it is still fresh.
func (m *Manager) ForceRefresh(ctx context.Context, connectionID string) (*domain.Credential, error) {
	return m.refresh(ctx, connectionID, true)
}

func (m *Manager) refresh(ctx context.Context, connectionID string, force bool) (*domain.Credential, error) {
	cred, err := m.repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !force && cred.IsFresh(m.clock.Now(), m.cfg.Skew) {
		return cred, nil
	}
	seen := cred.UpdatedAt

	lockName := "credential:" + connectionID
	delay := m.cfg.RetryDelay
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		release, ok, err := m.locker.TryLock(ctx, lockName, m.cfg.LockTTL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "acquire credential lock")
		}
		if ok {
			return m.refreshLocked(ctx, connectionID, force, seen, release)
		}

		m.logger.Debug("credential refresh in progress elsewhere",
			logging.String("connection_id", connectionID), logging.Int("attempt", attempt))
		if attempt == m.cfg.MaxAttempts {
			break
		}
		if err := m.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2

		// The holder may have finished while we waited.
		cur, err := m.repo.Get(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		if cur.UpdatedAt.After(seen) && cur.IsFresh(m.clock.Now(), m.cfg.Skew) {
			return cur, nil
		}
	}
	m.metrics.RecordCredentialRefresh(RefreshOutcomeBusy)
	return nil, errors.New(errors.ErrCodeRefreshInProgress, "credential lock busy").WithDetail(connectionID)
}

// refreshLocked runs with the lock held and releases it on every path.
func (m *Manager) refreshLocked(ctx context.Context, connectionID string, force bool, seen time.Time, release ReleaseFunc) (cred *domain.Credential, err error) {
	defer func() {
		// A cancelled caller context must not leave the lock behind.
		if rerr := release(context.Background()); rerr != nil {
			m.logger.Warn("credential lock release failed", logging.String("connection_id", connectionID), logging.Err(rerr))
		}
	}()

	cred, err = m.repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	// Double check: another process may have refreshed between our read and
	// the lock.
	if cred.IsFresh(m.clock.Now(), m.cfg.Skew) && (!force || cred.UpdatedAt.After(seen)) {
		return cred, nil
	}

	tok, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		m.logger.Error("credential refresh failed", logging.String("connection_id", connectionID), logging.Err(err))
		m.metrics.RecordCredentialRefresh(RefreshOutcomeError)
		return nil, errors.Wrap(err, errors.ErrCodeCredentialRefresh, "refresh access token").WithDetail(connectionID)
	}

	now := m.clock.Now().UTC()
	next := *cred
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.ExpiresAt = now.Add(tok.ExpiresIn)
	next.UpdatedAt = now
	if err := m.repo.Save(ctx, &next); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "save credential")
	}
	m.metrics.RecordCredentialRefresh(RefreshOutcomeRefreshed)
	m.logger.Info("credential refreshed",
		logging.String("connection_id", connectionID),
		logging.String("expires_at", next.ExpiresAt.Format(time.RFC3339)))
	return &next, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
