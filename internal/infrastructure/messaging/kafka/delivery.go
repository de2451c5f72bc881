package kafka

import (
	"context"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

// DeliveryRecorder applies a sender's outcome to the queue.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, outcome *reminder.DeliveryOutcome) error
}

// NewDeliveryHandler decodes reminder.delivery records and hands them to rec.
func NewDeliveryHandler(rec DeliveryRecorder, logger logging.Logger) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		env, err := MessageToEventEnvelope(msg)
		if err != nil {
			return err
		}
		var outcome reminder.DeliveryOutcome
		if err := env.DecodePayload(&outcome); err != nil {
			return err
		}
		if err := rec.RecordDelivery(ctx, &outcome); err != nil {
			return err
		}
		logger.Debug("Delivery outcome recorded",
			logging.String("entry_id", outcome.EntryID),
			logging.String("status", string(outcome.Status)))
		return nil
	}
}
