package scheduling

import (
	"sync"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

// Skip reasons recorded per obligation.
const (
	SkipNoDeadline      = "no_deadline"
	SkipRecordsReceived = "records_received"
	SkipCompleted       = "completed"
	SkipNotApplicable   = "not_applicable"
	SkipPastDeadline    = "past_deadline"
	SkipNoTemplate      = "no_template"
	SkipPaused          = "paused"
)

// SkippedObligation is an assigned filing type the builder did not schedule.
type SkippedObligation struct {
	FilingType filing.FilingType `json:"filing_type"`
	Reason     string            `json:"reason"`
}

// ClientResult reports one client's reconciliation.
type ClientResult struct {
	ClientID string              `json:"client_id"`
	Created  int                 `json:"created"`
	Retired  int                 `json:"retired"`
	Kept     int                 `json:"kept"`
	Skipped  []SkippedObligation `json:"skipped,omitempty"`
	Paused   bool                `json:"paused,omitempty"`
}

// ItemError is one failed unit of a batch.
type ItemError struct {
	ClientID   string            `json:"client_id"`
	FilingType filing.FilingType `json:"filing_type,omitempty"`
	Error      string            `json:"error"`
}

// BatchResult aggregates a multi-client run.  Safe for concurrent Add calls.
type BatchResult struct {
	mu sync.Mutex

	Clients   int         `json:"clients"`
	Succeeded int         `json:"succeeded"`
	Skipped   int         `json:"skipped"`
	Created   int         `json:"created"`
	Retired   int         `json:"retired"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// AddClient folds a successful client into the totals.
func (b *BatchResult) AddClient(r *ClientResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clients++
	if r.Paused {
		b.Skipped++
		return
	}
	b.Succeeded++
	b.Created += r.Created
	b.Retired += r.Retired
}

// AddError records a failed client.
func (b *BatchResult) AddError(clientID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clients++
	b.Errors = append(b.Errors, ItemError{ClientID: clientID, Error: err.Error()})
}

// ErrorCount returns the number of failed clients.
func (b *BatchResult) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Errors)
}
