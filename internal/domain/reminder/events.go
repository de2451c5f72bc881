package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

// Event topics.
const (
	TopicReminderDue    = "reminder.due"
	TopicQueueRebuilt   = "reminder.queue_rebuilt"
	TopicRolloverDone   = "rollover.executed"
	TopicDeliveryResult = "reminder.delivery"
)

// Event is implemented by every published payload.
type Event interface {
	Topic() string
	// PartitionKey keeps all events of one client ordered.
	PartitionKey() string
}

// EventMeta is embedded in every event.
type EventMeta struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEventMeta stamps a fresh id and time.
func NewEventMeta(now time.Time) EventMeta {
	return EventMeta{EventID: uuid.NewString(), OccurredAt: now.UTC()}
}

// DueEvent tells the external sender an entry is ready to send.
type DueEvent struct {
	EventMeta
	EntryID      string            `json:"entry_id"`
	ClientID     string            `json:"client_id"`
	FilingType   filing.FilingType `json:"filing_type"`
	StepNumber   int               `json:"step_number"`
	DeadlineDate string            `json:"deadline_date"`
	SendDate     string            `json:"send_date"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
}

func (e *DueEvent) Topic() string        { return TopicReminderDue }
func (e *DueEvent) PartitionKey() string { return e.ClientID }

// QueueRebuiltEvent summarises one client's rebuild.
type QueueRebuiltEvent struct {
	EventMeta
	ClientID string `json:"client_id"`
	Created  int    `json:"created"`
	Retired  int    `json:"retired"`
	Kept     int    `json:"kept"`
}

func (e *QueueRebuiltEvent) Topic() string        { return TopicQueueRebuilt }
func (e *QueueRebuiltEvent) PartitionKey() string { return e.ClientID }

// RolloverEvent records a committed rollover.
type RolloverEvent struct {
	EventMeta
	ClientID     string            `json:"client_id"`
	FilingType   filing.FilingType `json:"filing_type"`
	OldYearEnd   string            `json:"old_year_end,omitempty"`
	NewYearEnd   string            `json:"new_year_end,omitempty"`
	RebuildError string            `json:"rebuild_error,omitempty"`
}

func (e *RolloverEvent) Topic() string        { return TopicRolloverDone }
func (e *RolloverEvent) PartitionKey() string { return e.ClientID }

// DeliveryOutcome is written back by the external sender.
type DeliveryOutcome struct {
	EventMeta
	EntryID string `json:"entry_id" validate:"required"`
	Status  Status `json:"status" validate:"required,oneof=sent failed"`
	Error   string `json:"error,omitempty"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
