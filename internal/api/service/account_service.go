package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/hold"
	"github.com/ghost-254/escrow-engine/internal/domain/outbox"
)

// accountService implements the AccountService interface
type accountService struct {
	logger      *slog.Logger
	db          TxBeginner
	accountRepo account.Repository
	holdRepo    hold.Repository
	outboxRepo  outbox.Repository
}

// NewAccountService creates a new account service
func NewAccountService(
	logger *slog.Logger,
	db TxBeginner,
	accountRepo account.Repository,
	holdRepo hold.Repository,
	outboxRepo outbox.Repository,
) AccountService {
	return &accountService{
		logger:      logger,
		db:          db,
		accountRepo: accountRepo,
		holdRepo:    holdRepo,
		outboxRepo:  outboxRepo,
	}
}

// RecordDeposit credits a confirmed deposit to the user's balance, creating
// the account row on first use. The credit and its outbox event commit
// atomically.
func (s *accountService) RecordDeposit(ctx context.Context, userID uuid.UUID, amount int64, currency string) (*account.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accounts := s.accountRepo.WithTx(tx)
	if err := accounts.CreateIfAbsent(ctx, userID, currency); err != nil {
		return nil, err
	}

	acc, err := accounts.LockForUpdate(ctx, userID, currency)
	if err != nil {
		return nil, err
	}

	if err := acc.Credit(amount); err != nil {
		return nil, err
	}

	if err := accounts.Update(ctx, acc); err != nil {
		return nil, err
	}

	e := event.New(event.TypeBalanceCredited).WithActor(userID)
	e.Amount = amount
	e.Currency = currency

	msg, err := outbox.NewMessage(e)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}
	if err := s.outboxRepo.WithTx(tx).Create(ctx, msg); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Deposit recorded",
		"user_id", userID.String(),
		"currency", currency,
		"amount", amount)

	return acc, nil
}

// GetBalances retrieves all currency balances held by a user
func (s *accountService) GetBalances(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	return s.accountRepo.ListByUser(ctx, userID)
}

// GetHolds retrieves the per-group frozen amounts against a user's accounts
func (s *accountService) GetHolds(ctx context.Context, userID uuid.UUID) ([]*hold.Hold, error) {
	return s.holdRepo.ListByUser(ctx, userID)
}
