package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
)

// ProcessingService defines the interface for processing payment notifications.
type ProcessingService interface {
	ProcessPayment(ctx context.Context, notification *shared.PaymentNotification) error
}

// PaymentValidator validates payment notifications before processing
type PaymentValidator interface {
	Validate(ctx context.Context, notification *shared.PaymentNotification) error
	CheckIdempotency(ctx context.Context, notification *shared.PaymentNotification) (bool, error)
}

// FundsManager applies a resolved payment to the user's balance
type FundsManager interface {
	LockAndApplyPayment(ctx context.Context, tx pgx.Tx, notification *shared.PaymentNotification) (*account.Account, error)
}

// OutboxManager handles the creation of outbox entries for applied payments
type OutboxManager interface {
	CreateOutboxEntry(ctx context.Context, tx pgx.Tx, notification *shared.PaymentNotification, updatedAccount *account.Account) error
}

// FailureRecorder records payments that could not be applied
type FailureRecorder interface {
	RecordFailure(ctx context.Context, notification *shared.PaymentNotification, failureReason string) error
}
