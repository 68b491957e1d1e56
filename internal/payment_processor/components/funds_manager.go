package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/payment_processor/service"
)

// FundsManagerImpl implements the FundsManager interface
type FundsManagerImpl struct {
	accountRepo account.Repository
	logger      *slog.Logger
}

// NewFundsManager creates a new FundsManagerImpl
func NewFundsManager(accountRepo account.Repository, logger *slog.Logger) service.FundsManager {
	return &FundsManagerImpl{
		accountRepo: accountRepo,
		logger:      logger,
	}
}

// LockAndApplyPayment locks the (user, currency) balance row and applies the
// resolved payment to it. Deposits create the account on first use;
// withdrawals require an existing account with sufficient available funds.
func (m *FundsManagerImpl) LockAndApplyPayment(ctx context.Context, tx pgx.Tx, notification *shared.PaymentNotification) (*account.Account, error) {
	logger := m.logger
	if notification.CorrelationID != "" {
		logger = m.logger.With("correlation_id", notification.CorrelationID)
	}

	// Use the repository with the transaction
	accountRepoTx := m.accountRepo.WithTx(tx)

	if notification.Direction == shared.PaymentDirectionDeposit {
		if err := accountRepoTx.CreateIfAbsent(ctx, notification.UserID, notification.Currency); err != nil {
			logger.Error("Failed to ensure account exists", "payment_id", notification.PaymentID.String(), "user_id", notification.UserID.String(), "error", err)
			return nil, fmt.Errorf("failed to ensure account for user %s: %w", notification.UserID.String(), err)
		}
	}

	// Lock the balance row for update
	lockedAccount, err := accountRepoTx.LockForUpdate(ctx, notification.UserID, notification.Currency)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			logger.Warn("Account not found for lock", "payment_id", notification.PaymentID.String(), "user_id", notification.UserID.String(), "original_error", err)
			return nil, err
		}
		logger.Error("Failed to lock account", "payment_id", notification.PaymentID.String(), "user_id", notification.UserID.String(), "error", err)
		return nil, fmt.Errorf("failed to lock account %s/%s: %w", notification.UserID.String(), notification.Currency, err)
	}
	logger.Info("Account locked", "payment_id", notification.PaymentID.String(), "user_id", lockedAccount.UserID.String(), "available", lockedAccount.Available, "ver", lockedAccount.Version)

	// Apply payment to the balance
	if notification.Direction == shared.PaymentDirectionDeposit {
		if creditErr := lockedAccount.Credit(notification.Amount); creditErr != nil {
			logger.Error("Failed to apply credit to account model", "payment_id", notification.PaymentID.String(), "error", creditErr)
			return nil, creditErr
		}
	} else if notification.Direction == shared.PaymentDirectionWithdrawal {
		if debitErr := lockedAccount.Debit(notification.Amount); debitErr != nil {
			logger.Warn("Failed to apply debit to account model", "payment_id", notification.PaymentID.String(), "error", debitErr, "available", lockedAccount.Available, "amount", notification.Amount)
			return nil, debitErr
		}
	}
	logger.Info("Balance updated in memory", "payment_id", notification.PaymentID.String(), "new_available", lockedAccount.Available, "new_ver", lockedAccount.Version)

	// Persist account changes
	if err = accountRepoTx.Update(ctx, lockedAccount); err != nil {
		if errors.Is(err, account.ErrConcurrentModification{UserID: lockedAccount.UserID}) {
			logger.Warn("Concurrent modification on account update", "payment_id", notification.PaymentID.String(), "user_id", lockedAccount.UserID.String())
		} else {
			logger.Error("Failed to update account in DB", "payment_id", notification.PaymentID.String(), "user_id", lockedAccount.UserID.String(), "error", err)
		}
		return nil, err
	}
	logger.Info("Account updated in DB", "payment_id", notification.PaymentID.String(), "user_id", lockedAccount.UserID.String())

	return lockedAccount, nil
}
