package filing

import (
	"time"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Client aggregate
// ─────────────────────────────────────────────────────────────────────────────

// Client is an accounting-practice customer.  Clients are never deleted by the
// engine; deletion happens elsewhere.
type Client struct {
	ID          string     `json:"id"`
	CompanyName string     `json:"company_name"`
	ClientType  ClientType `json:"client_type"`

	// YearEnd is the accounting year-end date; nil when unknown.
	YearEnd *time.Time `json:"year_end_date,omitempty"`

	VATRegistered bool `json:"vat_registered"`

	// VATStaggerGroup is 1, 2 or 3; nil when unknown.
	VATStaggerGroup *int `json:"vat_stagger_group,omitempty"`

	Paused bool `json:"paused"`

	// RecordsReceivedFor lists filing types whose records have arrived and
	// that await rollover.
	RecordsReceivedFor []FilingType `json:"records_received_for"`

	// CompletedFor lists filing types completed for the current cycle.
	CompletedFor []FilingType `json:"completed_for"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the client's own invariants.
func (c *Client) Validate() error {
	v := &errors.ValidationError{}
	if c.ID == "" {
		v.Add("id", "must not be empty")
	}
	if !c.ClientType.IsValid() {
		v.Add("client_type", "must be one of limited_company, sole_trader, partnership, llp")
	}
	if c.VATStaggerGroup != nil && (*c.VATStaggerGroup < 1 || *c.VATStaggerGroup > 3) {
		v.Add("vat_stagger_group", "must be 1, 2 or 3")
	}
	for _, ft := range append(append([]FilingType{}, c.RecordsReceivedFor...), c.CompletedFor...) {
		if !ft.IsValid() {
			v.Add("filing_types", "unknown filing type "+string(ft))
		}
	}
	return v.OrNil()
}

// HasRecordsReceived reports whether ft is in RecordsReceivedFor.
func (c *Client) HasRecordsReceived(ft FilingType) bool {
	return containsType(c.RecordsReceivedFor, ft)
}

// HasCompleted reports whether ft is in CompletedFor.
func (c *Client) HasCompleted(ft FilingType) bool {
	return containsType(c.CompletedFor, ft)
}

// MarkRecordsReceived adds ft to RecordsReceivedFor.  It returns false when the
// marker was already present.
func (c *Client) MarkRecordsReceived(ft FilingType) bool {
	var added bool
	c.RecordsReceivedFor, added = addType(c.RecordsReceivedFor, ft)
	return added
}

// ClearRecordsReceived removes ft from RecordsReceivedFor.
func (c *Client) ClearRecordsReceived(ft FilingType) bool {
	var removed bool
	c.RecordsReceivedFor, removed = removeType(c.RecordsReceivedFor, ft)
	return removed
}

// MarkCompleted adds ft to CompletedFor.
func (c *Client) MarkCompleted(ft FilingType) bool {
	var added bool
	c.CompletedFor, added = addType(c.CompletedFor, ft)
	return added
}

// ClearCompleted removes ft from CompletedFor.
func (c *Client) ClearCompleted(ft FilingType) bool {
	var removed bool
	c.CompletedFor, removed = removeType(c.CompletedFor, ft)
	return removed
}

// Clone returns a deep copy.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	if c.YearEnd != nil {
		ye := *c.YearEnd
		cp.YearEnd = &ye
	}
	if c.VATStaggerGroup != nil {
		g := *c.VATStaggerGroup
		cp.VATStaggerGroup = &g
	}
	cp.RecordsReceivedFor = append([]FilingType(nil), c.RecordsReceivedFor...)
	cp.CompletedFor = append([]FilingType(nil), c.CompletedFor...)
	return &cp
}

func containsType(list []FilingType, ft FilingType) bool {
	for _, x := range list {
		if x == ft {
			return true
		}
	}
	return false
}

func addType(list []FilingType, ft FilingType) ([]FilingType, bool) {
	if containsType(list, ft) {
		return list, false
	}
	return append(list, ft), true
}

func removeType(list []FilingType, ft FilingType) ([]FilingType, bool) {
	out := make([]FilingType, 0, len(list))
	removed := false
	for _, x := range list {
		if x == ft {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out, removed
}

// ─────────────────────────────────────────────────────────────────────────────
// Assignments and overrides
// ─────────────────────────────────────────────────────────────────────────────

// Assignment links a client to a filing type it must meet.
type Assignment struct {
	ClientID   string     `json:"client_id"`
	FilingType FilingType `json:"filing_type"`
	Active     bool       `json:"active"`
}

// DeadlineOverride replaces the calculated deadline of (client, filing type).
type DeadlineOverride struct {
	ClientID   string     `json:"client_id"`
	FilingType FilingType `json:"filing_type"`
	Date       time.Time  `json:"override_date"`
	Reason     string     `json:"reason,omitempty"`
}

// DefaultAssignments derives the assignments a newly onboarded client starts
// with: every filing type applicable to its client type, VAT only when
// VAT-registered.
func DefaultAssignments(c *Client) []Assignment {
	var out []Assignment
	for _, d := range All() {
		if !d.AppliesTo(c.ClientType) {
			continue
		}
		if d.RequiresVAT && !c.VATRegistered {
			continue
		}
		out = append(out, Assignment{ClientID: c.ID, FilingType: d.Type, Active: true})
	}
	return out
}

// ActiveTypes returns the filing types of the active assignments, in input
// order.
func ActiveTypes(assignments []Assignment) []FilingType {
	var out []FilingType
	for _, a := range assignments {
		if a.Active {
			out = append(out, a.FilingType)
		}
	}
	return out
}

// OverrideFor returns the override of ft, if any.
func OverrideFor(overrides []DeadlineOverride, ft FilingType) *DeadlineOverride {
	for i := range overrides {
		if overrides[i].FilingType == ft {
			o := overrides[i]
			o.Date = calendar.Normalize(o.Date)
			return &o
		}
	}
	return nil
}
