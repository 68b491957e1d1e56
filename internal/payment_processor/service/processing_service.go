package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/platform/persistence"
)

type ProcessingServiceImpl struct {
	pgDB            *persistence.PostgresDB
	validator       PaymentValidator
	fundsManager    FundsManager
	outboxManager   OutboxManager
	failureRecorder FailureRecorder
	logger          *slog.Logger
}

func NewProcessingService(
	pgDB *persistence.PostgresDB,
	validator PaymentValidator,
	fundsManager FundsManager,
	outboxManager OutboxManager,
	failureRecorder FailureRecorder,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		pgDB:            pgDB,
		validator:       validator,
		fundsManager:    fundsManager,
		outboxManager:   outboxManager,
		failureRecorder: failureRecorder,
		logger:          logger,
	}
}

// ProcessPayment handles the core logic for applying a payment notification
// to the balance ledger.
func (s *ProcessingServiceImpl) ProcessPayment(ctx context.Context, notification *shared.PaymentNotification) error {
	logger := s.logger
	if notification.CorrelationID != "" {
		logger = s.logger.With("correlation_id", notification.CorrelationID)
	}

	logger.Info("Processing payment notification", "payment_id", notification.PaymentID.String(), "user_id", notification.UserID.String())

	// 1. Validate the notification
	if err := s.validator.Validate(ctx, notification); err != nil {
		logger.Error("Payment validation failed", "payment_id", notification.PaymentID.String(), "error", err)

		var failureReason string
		if errors.Is(err, shared.ErrInvalidPaymentDirection) || errors.Is(err, shared.ErrInvalidPaymentResult) {
			failureReason = string(shared.FailureReasonUnknownError)
		} else {
			failureReason = string(shared.FailureReasonInvalidAmount)
		}

		if recordErr := s.failureRecorder.RecordFailure(ctx, notification, failureReason); recordErr != nil {
			logger.Error("Failed to record payment failure", "payment_id", notification.PaymentID.String(), "error", recordErr)
		}

		return nil // Return nil to Kafka consumer to acknowledge the message
	}

	// 2. Interim gateway results carry no balance change
	if notification.Result == shared.PaymentResultPending {
		logger.Info("Payment still pending at gateway, skipping", "payment_id", notification.PaymentID.String())
		return nil
	}

	// 3. Gateway-reported failures only get an audit record
	if notification.Result == shared.PaymentResultFailed {
		if recordErr := s.failureRecorder.RecordFailure(ctx, notification, string(shared.FailureReasonGatewayReportedFailure)); recordErr != nil {
			logger.Error("Failed to record gateway failure", "payment_id", notification.PaymentID.String(), "error", recordErr)
			return recordErr // Let Kafka retry so the failure is not lost
		}
		return nil
	}

	// 4. Check idempotency
	skip, err := s.validator.CheckIdempotency(ctx, notification)
	if err != nil {
		return err // Let Kafka retry
	}
	if skip {
		return nil // Already applied, return success
	}

	// 5. Begin database transaction
	var tx pgx.Tx
	tx, err = s.pgDB.Pool().Begin(ctx)
	if err != nil {
		logger.Error("Failed to begin database transaction", "payment_id", notification.PaymentID.String(), "error", err)
		return fmt.Errorf("failed to begin DB transaction for %s: %w", notification.PaymentID.String(), err)
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Panic recovered, rolling back transaction", "panic", p, "payment_id", notification.PaymentID.String())
			_ = tx.Rollback(ctx)
			panic(p) // Re-panic
		} else if err != nil {
			logger.Error("Error occurred, rolling back transaction", "error", err, "payment_id", notification.PaymentID.String())
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.Error("Failed to rollback transaction after error", "rollback_error", rbErr, "original_error", err, "payment_id", notification.PaymentID.String())
			}
		}
	}()

	// 6. Lock and apply to the balance
	updatedAccount, err := s.fundsManager.LockAndApplyPayment(ctx, tx, notification)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			if recordErr := s.failureRecorder.RecordFailure(ctx, notification, string(shared.FailureReasonAccountNotFound)); recordErr != nil {
				logger.Error("Failed to record account not found failure", "payment_id", notification.PaymentID.String(), "error", recordErr)
			}
			return nil // Return nil to Kafka consumer
		} else if errors.Is(err, account.ErrInvalidCurrencyCode) {
			if recordErr := s.failureRecorder.RecordFailure(ctx, notification, string(shared.FailureReasonInvalidCurrencyFormat)); recordErr != nil {
				logger.Error("Failed to record currency failure", "payment_id", notification.PaymentID.String(), "error", recordErr)
			}
			return nil // Return nil to Kafka consumer
		} else if errors.Is(err, account.ErrInvalidAmount) {
			if recordErr := s.failureRecorder.RecordFailure(ctx, notification, string(shared.FailureReasonInvalidAmount)); recordErr != nil {
				logger.Error("Failed to record invalid amount failure", "payment_id", notification.PaymentID.String(), "error", recordErr)
			}
			return nil // Return nil to Kafka consumer
		} else if errors.Is(err, account.ErrInsufficientFunds) {
			if recordErr := s.failureRecorder.RecordFailure(ctx, notification, string(shared.FailureReasonInsufficientFunds)); recordErr != nil {
				logger.Error("Failed to record insufficient funds failure", "payment_id", notification.PaymentID.String(), "error", recordErr)
			}
			return nil // Return nil to Kafka consumer
		}

		// For other errors, let them propagate for retry
		return err
	}

	// 7. Create outbox entry
	if err = s.outboxManager.CreateOutboxEntry(ctx, tx, notification, updatedAccount); err != nil {
		return err // Let the defer handle rollback
	}

	// 8. Commit transaction
	if err = tx.Commit(ctx); err != nil {
		logger.Error("Failed to commit database transaction",
			"payment_id", notification.PaymentID.String(),
			"user_id", notification.UserID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to commit DB transaction for payment %s: %w", notification.PaymentID.String(), err)
	}

	logger.Info("Payment applied to balance ledger", "payment_id", notification.PaymentID.String(), "user_id", notification.UserID.String())
	return nil
}
