package components

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/payment_processor/service"
)

type FailureRecorderImpl struct {
	eventRepo event.Repository
	logger    *slog.Logger
}

func NewFailureRecorder(eventRepo event.Repository, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// RecordFailure writes a PAYMENT_FAILED event to the audit store. Failures
// never touch the balance ledger, so the event goes straight to the store
// instead of through the outbox.
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, notification *shared.PaymentNotification, failureReason string) error {
	logger := r.logger
	if notification.CorrelationID != "" {
		logger = r.logger.With("correlation_id", notification.CorrelationID)
	}

	logger.Info("Recording failed payment", "payment_id", notification.PaymentID.String(), "reason", failureReason)

	existingEvent, err := r.eventRepo.GetByPaymentID(ctx, notification.PaymentID)
	if err != nil {
		logger.Error("Failed to get existing audit event for failed payment", "payment_id", notification.PaymentID.String(), "error", err)
	}
	if existingEvent != nil {
		logger.Info("Payment already has an audit event, skipping", "payment_id", notification.PaymentID.String(), "event_type", existingEvent.Type)
		return nil
	}

	e := event.New(event.TypePaymentFailed).
		WithPayment(notification.PaymentID).
		WithActor(notification.UserID)
	e.Amount = notification.Amount
	e.Currency = notification.Currency
	e.Detail = failureReason
	e.CorrelationID = notification.CorrelationID

	if insertErr := r.eventRepo.Insert(ctx, e); insertErr != nil {
		var dup event.ErrDuplicateEvent
		if errors.As(insertErr, &dup) {
			logger.Info("Audit event already recorded by a concurrent worker", "payment_id", notification.PaymentID.String())
			return nil
		}
		logger.Error("Failed to create PAYMENT_FAILED audit event", "payment_id", notification.PaymentID.String(), "error", insertErr)
		return insertErr
	}
	logger.Info("Successfully created PAYMENT_FAILED audit event", "payment_id", notification.PaymentID.String())
	return nil
}
