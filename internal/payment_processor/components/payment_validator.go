package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/payment_processor/service"
)

type PaymentValidatorImpl struct {
	eventRepo event.Repository
	logger    *slog.Logger
}

func NewPaymentValidator(eventRepo event.Repository, logger *slog.Logger) service.PaymentValidator {
	return &PaymentValidatorImpl{
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Validate checks payment notification validity
func (v *PaymentValidatorImpl) Validate(ctx context.Context, notification *shared.PaymentNotification) error {
	logger := v.logger
	if notification.CorrelationID != "" {
		logger = v.logger.With("correlation_id", notification.CorrelationID)
	}

	if notification.Direction != shared.PaymentDirectionDeposit && notification.Direction != shared.PaymentDirectionWithdrawal {
		logger.Error("Unknown payment direction", "payment_id", notification.PaymentID.String(), "direction", notification.Direction)
		return shared.ErrInvalidPaymentDirection
	}

	if notification.Result != shared.PaymentResultSucceeded &&
		notification.Result != shared.PaymentResultFailed &&
		notification.Result != shared.PaymentResultPending {
		logger.Error("Unknown payment result", "payment_id", notification.PaymentID.String(), "result", notification.Result)
		return shared.ErrInvalidPaymentResult
	}

	if notification.Amount <= 0 {
		logger.Error("Invalid amount", "payment_id", notification.PaymentID.String(), "amount", notification.Amount)
		return fmt.Errorf("amount must be positive: %d", notification.Amount)
	}

	return nil
}

// CheckIdempotency checks if the payment was already applied
func (v *PaymentValidatorImpl) CheckIdempotency(ctx context.Context, notification *shared.PaymentNotification) (bool, error) {
	logger := v.logger
	if notification.CorrelationID != "" {
		logger = v.logger.With("correlation_id", notification.CorrelationID)
	}

	existingEvent, err := v.eventRepo.GetByPaymentID(ctx, notification.PaymentID)
	if err != nil {
		logger.Error("Failed to check audit store for idempotency", "payment_id", notification.PaymentID.String(), "error", err)
		return false, fmt.Errorf("idempotency check failed for payment %s: %w", notification.PaymentID.String(), err)
	}

	if existingEvent != nil {
		logger.Info("Payment already processed (idempotency)", "payment_id", notification.PaymentID.String(), "event_type", existingEvent.Type)
		return true, nil // Skip processing
	}

	return false, nil // Continue processing
}
