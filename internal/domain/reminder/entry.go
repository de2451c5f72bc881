// Package reminder models the persisted queue of dated reminder entries and
// the audit trail written by state-changing engine operations.
package reminder

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusScheduled       Status = "scheduled"
	StatusPending         Status = "pending"
	StatusRescheduled     Status = "rescheduled"
	StatusSent            Status = "sent"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
	StatusRecordsReceived Status = "records_received"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusPending, StatusRescheduled, StatusSent,
		StatusCancelled, StatusFailed, StatusRecordsReceived:
		return true
	}
	return false
}

// IsMutable reports whether the builder may delete and recreate an entry in
// this state.
func (s Status) IsMutable() bool {
	return s == StatusScheduled || s == StatusRescheduled
}

// IsInFlight reports whether the entry has been handed to the sender and is
// awaiting a delivery outcome.  An in-flight entry keeps its key; the builder
// may only cancel it.
func (s Status) IsInFlight() bool {
	return s == StatusPending
}

// IsTerminal reports whether the entry is settled and never touched by a
// rebuild.
func (s Status) IsTerminal() bool {
	return s.IsValid() && !s.IsMutable() && !s.IsInFlight()
}

var transitions = map[Status][]Status{
	StatusScheduled:       {StatusPending, StatusRecordsReceived, StatusCancelled, StatusRescheduled},
	StatusRescheduled:     {StatusPending, StatusRecordsReceived, StatusCancelled},
	StatusPending:         {StatusSent, StatusFailed, StatusCancelled, StatusRecordsReceived},
	StatusFailed:          {StatusPending},
	StatusSent:            nil,
	StatusCancelled:       nil,
	StatusRecordsReceived: nil,
}

// CanTransition reports whether from → to is an allowed move.  Staying in the
// same state is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Key identifies one obligation-cycle step.  At most one live entry exists per
// key.
type Key struct {
	ClientID     string
	FilingType   filing.FilingType
	DeadlineDate string
	StepNumber   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", k.ClientID, k.FilingType, k.DeadlineDate, k.StepNumber)
}

// Entry is a concrete scheduled reminder.
type Entry struct {
	ID           string            `json:"id"`
	ClientID     string            `json:"client_id"`
	FilingType   filing.FilingType `json:"filing_type"`
	TemplateID   string            `json:"template_id,omitempty"`
	StepNumber   int               `json:"step_number"`
	DeadlineDate time.Time         `json:"deadline_date"`
	SendDate     time.Time         `json:"send_date"`
	Subject      string            `json:"resolved_subject"`
	Body         string            `json:"resolved_body"`
	Status       Status            `json:"status"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewEntry builds a scheduled entry with a fresh id.
func NewEntry(clientID string, ft filing.FilingType, templateID string, step int, deadline, send time.Time, subject, body string, now time.Time) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		FilingType:   ft,
		TemplateID:   templateID,
		StepNumber:   step,
		DeadlineDate: calendar.Normalize(deadline),
		SendDate:     calendar.Normalize(send),
		Subject:      subject,
		Body:         body,
		Status:       StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Key returns the idempotency key of e.
func (e *Entry) Key() Key {
	return Key{
		ClientID:     e.ClientID,
		FilingType:   e.FilingType,
		DeadlineDate: calendar.Key(e.DeadlineDate),
		StepNumber:   e.StepNumber,
	}
}

// SameContent reports whether e would be sent identically to other.
func (e *Entry) SameContent(other *Entry) bool {
	return calendar.Key(e.SendDate) == calendar.Key(other.SendDate) &&
		e.Subject == other.Subject &&
		e.Body == other.Body
}

// Transition moves e to status to at now.
func (e *Entry) Transition(to Status, now time.Time) error {
	if !CanTransition(e.Status, to) {
		return errors.Newf(errors.ErrCodeInvalidTransition, "cannot move entry %s from %s to %s", e.ID, e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = now
	if to == StatusSent {
		t := now
		e.SentAt = &t
	}
	return nil
}
