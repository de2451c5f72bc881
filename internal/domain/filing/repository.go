package filing

import (
	"context"
	"time"
)

// ClientFilter narrows client listings.
type ClientFilter struct {
	IncludePaused bool
	IDs           []string
	// WithRecordsReceived keeps only clients with at least one marker.
	WithRecordsReceived bool
}

// ClientRepository persists clients.
type ClientRepository interface {
	Get(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context, filter ClientFilter) ([]*Client, error)
	Save(ctx context.Context, c *Client) error

	// UpdateFilingState writes the year-end and both marker sets in one
	// statement.
	UpdateFilingState(ctx context.Context, id string, yearEnd *time.Time, recordsReceivedFor, completedFor []FilingType) error
}

// AssignmentRepository persists filing assignments keyed by
// (client, filing type).
type AssignmentRepository interface {
	ListByClient(ctx context.Context, clientID string) ([]Assignment, error)
	Upsert(ctx context.Context, a Assignment) error
}

// OverrideRepository persists deadline overrides keyed by
// (client, filing type).
type OverrideRepository interface {
	ListByClient(ctx context.Context, clientID string) ([]DeadlineOverride, error)
	Upsert(ctx context.Context, o DeadlineOverride) error
	Delete(ctx context.Context, clientID string, ft FilingType) error
}
