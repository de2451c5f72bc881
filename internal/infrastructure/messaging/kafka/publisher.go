package kafka

import (
	"context"
	"fmt"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*ProducerMessage) (*BatchPublishResult, error)
}

// EventPublisher writes domain events as enveloped records.
type EventPublisher struct {
	producer batchPublisher
	logger   logging.Logger
}

func NewEventPublisher(producer *Producer, logger logging.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, logger: logger}
}

// Publish sends events in one batch.  Any failed record fails the call.
func (p *EventPublisher) Publish(ctx context.Context, events ...reminder.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*ProducerMessage, 0, len(events))
	for _, ev := range events {
		env, err := NewEventEnvelope(ev.Topic(), ev)
		if err != nil {
			return err
		}
		msg, err := env.ToMessage(ev.Topic(), ev.PartitionKey())
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	res, err := p.producer.PublishBatch(ctx, msgs)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		first := res.Errors[0]
		p.logger.Error("Failed to publish events",
			logging.Int("failed", res.Failed),
			logging.Int("total", len(msgs)),
			logging.Err(first.Error))
		return errors.Wrap(first.Error, errors.ErrCodeExternalService,
			fmt.Sprintf("%d of %d events not published", res.Failed, len(msgs)))
	}
	return nil
}
