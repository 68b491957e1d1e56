package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ghost-254/escrow-engine/internal/domain/hold"
	"github.com/ghost-254/escrow-engine/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HoldRepository implements the hold.Repository interface for PostgreSQL
type HoldRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewHoldRepository creates a new PostgreSQL hold repository
func NewHoldRepository(logger *slog.Logger, db *persistence.PostgresDB) hold.Repository {
	return &HoldRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *HoldRepository) WithTx(tx pgx.Tx) hold.Repository {
	return &HoldRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new hold
func (r *HoldRepository) Create(ctx context.Context, h *hold.Hold) error {
	query := `
		INSERT INTO holds (id, group_id, user_id, currency, amount, status, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		h.ID,
		h.GroupID,
		h.UserID,
		h.Currency,
		h.Amount,
		h.Status,
		h.CreatedAt,
		h.ClosedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create hold", "group_id", h.GroupID.String(), "error", err)
		return fmt.Errorf("failed to create hold: %w", err)
	}

	return nil
}

// GetActiveByGroupID retrieves the open hold backing a group
func (r *HoldRepository) GetActiveByGroupID(ctx context.Context, groupID uuid.UUID) (*hold.Hold, error) {
	query := `
		SELECT id, group_id, user_id, currency, amount, status, created_at, closed_at
		FROM holds
		WHERE group_id = $1 AND status = $2
	`

	var h hold.Hold
	err := r.querier.QueryRow(ctx, query, groupID, hold.StatusActive).Scan(
		&h.ID,
		&h.GroupID,
		&h.UserID,
		&h.Currency,
		&h.Amount,
		&h.Status,
		&h.CreatedAt,
		&h.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, hold.ErrHoldNotFound{GroupID: groupID}
		}
		r.logger.Error("Failed to get active hold", "group_id", groupID.String(), "error", err)
		return nil, fmt.Errorf("failed to get active hold: %w", err)
	}

	return &h, nil
}

// ListByUser retrieves all holds against a user's accounts, newest first
func (r *HoldRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*hold.Hold, error) {
	query := `
		SELECT id, group_id, user_id, currency, amount, status, created_at, closed_at
		FROM holds
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list holds", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list holds: %w", err)
	}
	defer rows.Close()

	var holds []*hold.Hold
	for rows.Next() {
		var h hold.Hold
		err := rows.Scan(
			&h.ID,
			&h.GroupID,
			&h.UserID,
			&h.Currency,
			&h.Amount,
			&h.Status,
			&h.CreatedAt,
			&h.ClosedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan hold", "error", err)
			return nil, fmt.Errorf("failed to scan hold: %w", err)
		}
		holds = append(holds, &h)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over holds", "error", err)
		return nil, fmt.Errorf("error iterating over holds: %w", err)
	}

	return holds, nil
}

// Update persists a closed hold. The status guard keeps a hold from being
// closed twice even if two settlements race past the domain check.
func (r *HoldRepository) Update(ctx context.Context, h *hold.Hold) error {
	query := `
		UPDATE holds
		SET status = $1, closed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.querier.Exec(ctx, query, h.Status, h.ClosedAt, h.ID, hold.StatusActive)
	if err != nil {
		r.logger.Error("Failed to update hold", "hold_id", h.ID.String(), "error", err)
		return fmt.Errorf("failed to update hold: %w", err)
	}

	if result.RowsAffected() == 0 {
		return hold.ErrHoldNotFound{GroupID: h.GroupID}
	}

	return nil
}
