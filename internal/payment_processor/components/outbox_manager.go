package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/outbox"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/payment_processor/service"
)

type OutboxManagerImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewOutboxManager(outboxRepo outbox.Repository, logger *slog.Logger) service.OutboxManager {
	return &OutboxManagerImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// CreateOutboxEntry creates an outbox entry for an applied payment
func (m *OutboxManagerImpl) CreateOutboxEntry(ctx context.Context, tx pgx.Tx, notification *shared.PaymentNotification, updatedAccount *account.Account) error {
	logger := m.logger
	if notification.CorrelationID != "" {
		logger = m.logger.With("correlation_id", notification.CorrelationID)
	}

	outboxRepoTx := m.outboxRepo.WithTx(tx)

	eventType := event.TypeBalanceCredited
	if notification.Direction == shared.PaymentDirectionWithdrawal {
		eventType = event.TypeBalanceDebited
	}

	e := event.New(eventType).
		WithPayment(notification.PaymentID).
		WithActor(notification.UserID)
	e.Amount = notification.Amount
	e.Currency = notification.Currency
	e.Detail = notification.Provider
	e.CorrelationID = notification.CorrelationID

	outboxMessage, err := outbox.NewMessage(e)
	if err != nil {
		logger.Error("Failed to create new outbox message (marshal payload)",
			"payment_id", notification.PaymentID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message payload for payment %s: %w", notification.PaymentID.String(), err)
	}

	if err = outboxRepoTx.Create(ctx, outboxMessage); err != nil {
		logger.Error("Failed to create outbox message",
			"payment_id", notification.PaymentID.String(),
			"user_id", notification.UserID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message for payment %s: %w", notification.PaymentID.String(), err)
	}
	logger.Info("Outbox message created successfully",
		"payment_id", notification.PaymentID.String(),
		"outbox_id", outboxMessage.ID,
	)

	return nil
}
