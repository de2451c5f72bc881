// Package credential models refreshable OAuth credentials for the external
// accounting-data connection.
package credential

import (
	"context"
	"time"
)

// Credential is an access/refresh token pair shared by every process that
// talks to one provider connection.
type Credential struct {
	ConnectionID string    `json:"connection_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsFresh reports whether the access token is still usable at now with skew of
// headroom.
func (c *Credential) IsFresh(now time.Time, skew time.Duration) bool {
	return c != nil && c.AccessToken != "" && now.Add(skew).Before(c.ExpiresAt)
}

// Token is the result of a refresh exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Repository persists credentials keyed by connection id.
type Repository interface {
	Get(ctx context.Context, connectionID string) (*Credential, error)
	Save(ctx context.Context, c *Credential) error
}
