package reminder

import (
	"context"
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
)

// EntryFilter narrows queue listings.  Zero fields do not filter.
type EntryFilter struct {
	ClientID          string
	FilingType        filing.FilingType
	Statuses          []Status
	SendOnOrBefore    *time.Time
	DeadlineOn        *time.Time
	DeadlineOnOrAfter *time.Time
	Limit             int

	// ExcludePaused drops entries whose client is paused.
	ExcludePaused bool

	// BySendDate orders by send date, then key.  The default is key order.
	BySendDate bool
}

// QueueRepository persists reminder queue entries.
type QueueRepository interface {
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, filter EntryFilter) ([]*Entry, error)

	// Insert stores e unless an entry with the same key already exists, in
	// which case it reports created=false and no error.
	Insert(ctx context.Context, e *Entry) (created bool, err error)

	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// DeleteByStatus removes the entries of (client, filing type) in status.
	DeleteByStatus(ctx context.Context, clientID string, ft filing.FilingType, status Status) (int, error)

	// TransitionAll moves every entry of (client, filing type) in from to to.
	TransitionAll(ctx context.Context, clientID string, ft filing.FilingType, from, to Status) (int, error)

	// UpdateStatus moves one entry to status when its current status is one
	// of from.  updated is false when the entry was not in an allowed state.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status, lastError string) (updated bool, err error)
}

// AuditAction names an audited operation.
type AuditAction string

const (
	AuditRollover        AuditAction = "rollover"
	AuditRecordsReceived AuditAction = "records_received"
	AuditRecordsReverted AuditAction = "records_not_received"
)

// AuditRecord captures a state change made by the engine.
type AuditRecord struct {
	ID         string            `json:"id"`
	ClientID   string            `json:"client_id"`
	FilingType filing.FilingType `json:"filing_type"`
	Action     AuditAction       `json:"action"`
	OldYearEnd *time.Time        `json:"old_year_end,omitempty"`
	NewYearEnd *time.Time        `json:"new_year_end,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AuditRepository appends audit records.
type AuditRepository interface {
	Append(ctx context.Context, r *AuditRecord) error
	ListByClient(ctx context.Context, clientID string, limit int) ([]*AuditRecord, error)
}

// Store groups the repositories the engine touches.  WithTx runs fn against
// a Store bound to one transaction; returning an error rolls it back.
type Store interface {
	Clients() filing.ClientRepository
	Assignments() filing.AssignmentRepository
	DeadlineOverrides() filing.OverrideRepository
	Templates() template.Repository
	Queue() QueueRepository
	Audit() AuditRepository

	WithTx(ctx context.Context, fn func(Store) error) error
}
