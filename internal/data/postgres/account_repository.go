// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations while maintaining
// transaction safety and proper error handling for the escrow engine.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls.
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// CreateIfAbsent inserts a zero-balance account row for the (user, currency)
// pair. Concurrent inserts race harmlessly: the conflict clause makes the
// loser a no-op.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, userID uuid.UUID, currency string) error {
	acc, err := account.NewAccount(userID, currency)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (user_id, currency, available, frozen, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, currency) DO NOTHING
	`

	_, err = r.querier.Exec(ctx, query,
		acc.UserID,
		acc.Currency,
		acc.Available,
		acc.Frozen,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create account", "user_id", userID.String(), "currency", currency, "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByUser retrieves the account for a (user, currency) pair
func (r *AccountRepository) GetByUser(ctx context.Context, userID uuid.UUID, currency string) (*account.Account, error) {
	query := `
		SELECT user_id, currency, available, frozen, version, created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2
	`

	var acc account.Account
	err := r.querier.QueryRow(ctx, query, userID, currency).Scan(
		&acc.UserID,
		&acc.Currency,
		&acc.Available,
		&acc.Frozen,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{UserID: userID, Currency: currency}
		}
		r.logger.Error("Failed to get account", "user_id", userID.String(), "currency", currency, "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acc, nil
}

// ListByUser retrieves all currency accounts held by a user
func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	query := `
		SELECT user_id, currency, available, frozen, version, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY currency ASC
	`

	rows, err := r.querier.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list accounts", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		var acc account.Account
		err := rows.Scan(
			&acc.UserID,
			&acc.Currency,
			&acc.Available,
			&acc.Frozen,
			&acc.Version,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan account", "error", err)
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over accounts", "error", err)
		return nil, fmt.Errorf("error iterating over accounts: %w", err)
	}

	return accounts, nil
}

// Update persists a mutated account using optimistic locking.
// Returns ErrConcurrentModification if the row moved underneath the caller.
func (r *AccountRepository) Update(ctx context.Context, acc *account.Account) error {
	query := `
		UPDATE accounts
		SET available = $1, frozen = $2, version = $3, updated_at = $4
		WHERE user_id = $5 AND currency = $6 AND version = $7
	`

	result, err := r.querier.Exec(ctx, query,
		acc.Available,
		acc.Frozen,
		acc.Version,
		acc.UpdatedAt,
		acc.UserID,
		acc.Currency,
		acc.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update account", "user_id", acc.UserID.String(), "currency", acc.Currency, "error", err)
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrConcurrentModification{UserID: acc.UserID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the account and returns its
// current state. Must be called within a transaction.
func (r *AccountRepository) LockForUpdate(ctx context.Context, userID uuid.UUID, currency string) (*account.Account, error) {
	query := `
		SELECT user_id, currency, available, frozen, version, created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE
	`

	var acc account.Account
	err := r.querier.QueryRow(ctx, query, userID, currency).Scan(
		&acc.UserID,
		&acc.Currency,
		&acc.Available,
		&acc.Frozen,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{UserID: userID, Currency: currency}
		}
		r.logger.Error("Failed to lock account for update", "user_id", userID.String(), "currency", currency, "error", err)
		return nil, fmt.Errorf("failed to lock account for update: %w", err)
	}

	return &acc, nil
}
