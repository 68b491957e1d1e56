package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
	"github.com/ghost-254/escrow-engine/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GroupRepository implements the escrow.Repository interface for PostgreSQL
type GroupRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewGroupRepository creates a new PostgreSQL escrow group repository
func NewGroupRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.Repository {
	return &GroupRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *GroupRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return &GroupRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const groupColumns = `
	id, buyer_id, seller_id, price, fee, currency, fee_policy, status,
	completion_buyer_agreed, completion_seller_agreed, completion_initiator,
	completion_rejected_by, completion_rejected_at,
	cancellation_buyer_agreed, cancellation_seller_agreed, cancellation_initiator,
	cancellation_rejected_by, cancellation_rejected_at,
	version, created_at, updated_at, closed_at`

// Create stores a new escrow group
func (r *GroupRepository) Create(ctx context.Context, g *escrow.Group) error {
	query := `
		INSERT INTO escrow_groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22)
	`

	args := append([]interface{}{
		g.ID,
		g.BuyerID,
		g.SellerID,
		g.Price,
		g.Fee,
		g.Currency,
		g.FeePolicy,
		g.Status,
	}, agreementArgs(&g.Completion)...)
	args = append(args, agreementArgs(&g.Cancellation)...)
	args = append(args, g.Version, g.CreatedAt, g.UpdatedAt, g.ClosedAt)

	_, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create escrow group", "group_id", g.ID.String(), "error", err)
		return fmt.Errorf("failed to create escrow group: %w", err)
	}

	return nil
}

// GetByID retrieves an escrow group by its ID
func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM escrow_groups WHERE id = $1`
	return r.queryGroup(ctx, query, id)
}

// LockForUpdate obtains a pessimistic lock on the group row and returns its
// current state. Must be called within a transaction.
func (r *GroupRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM escrow_groups WHERE id = $1 FOR UPDATE`
	return r.queryGroup(ctx, query, id)
}

// Update persists a mutated group using optimistic locking.
// Returns ErrConcurrentModification if the row moved underneath the caller.
func (r *GroupRepository) Update(ctx context.Context, g *escrow.Group) error {
	query := `
		UPDATE escrow_groups
		SET seller_id = $1, status = $2,
			completion_buyer_agreed = $3, completion_seller_agreed = $4,
			completion_initiator = $5, completion_rejected_by = $6, completion_rejected_at = $7,
			cancellation_buyer_agreed = $8, cancellation_seller_agreed = $9,
			cancellation_initiator = $10, cancellation_rejected_by = $11, cancellation_rejected_at = $12,
			version = $13, updated_at = $14, closed_at = $15
		WHERE id = $16 AND version = $17
	`

	args := append([]interface{}{g.SellerID, g.Status}, agreementArgs(&g.Completion)...)
	args = append(args, agreementArgs(&g.Cancellation)...)
	args = append(args,
		g.Version,
		g.UpdatedAt,
		g.ClosedAt,
		g.ID,
		g.Version-1, // Check previous version for optimistic locking
	)

	result, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update escrow group", "group_id", g.ID.String(), "error", err)
		return fmt.Errorf("failed to update escrow group: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escrow.ErrConcurrentModification{GroupID: g.ID}
	}

	return nil
}

func (r *GroupRepository) queryGroup(ctx context.Context, query string, id uuid.UUID) (*escrow.Group, error) {
	var (
		g                     escrow.Group
		completionRejectedBy  *string
		completionRejectedAt  *time.Time
		cancelRejectedBy      *string
		cancelRejectedAt      *time.Time
		completionInitiator   string
		cancellationInitiator string
	)

	err := r.querier.QueryRow(ctx, query, id).Scan(
		&g.ID,
		&g.BuyerID,
		&g.SellerID,
		&g.Price,
		&g.Fee,
		&g.Currency,
		&g.FeePolicy,
		&g.Status,
		&g.Completion.BuyerAgreed,
		&g.Completion.SellerAgreed,
		&completionInitiator,
		&completionRejectedBy,
		&completionRejectedAt,
		&g.Cancellation.BuyerAgreed,
		&g.Cancellation.SellerAgreed,
		&cancellationInitiator,
		&cancelRejectedBy,
		&cancelRejectedAt,
		&g.Version,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrGroupNotFound{GroupID: id}
		}
		r.logger.Error("Failed to get escrow group", "group_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow group: %w", err)
	}

	g.Completion.Initiator = escrow.Party(completionInitiator)
	g.Completion.Rejection = rejectionFrom(completionRejectedBy, completionRejectedAt)
	g.Cancellation.Initiator = escrow.Party(cancellationInitiator)
	g.Cancellation.Rejection = rejectionFrom(cancelRejectedBy, cancelRejectedAt)

	return &g, nil
}

// agreementArgs flattens an agreement into its five column values
func agreementArgs(a *escrow.Agreement) []interface{} {
	var rejectedBy *string
	var rejectedAt *time.Time
	if a.Rejection != nil {
		by := string(a.Rejection.By)
		at := a.Rejection.At
		rejectedBy = &by
		rejectedAt = &at
	}
	return []interface{}{a.BuyerAgreed, a.SellerAgreed, string(a.Initiator), rejectedBy, rejectedAt}
}

func rejectionFrom(by *string, at *time.Time) *escrow.Rejection {
	if by == nil || at == nil {
		return nil
	}
	return &escrow.Rejection{By: escrow.Party(*by), At: *at}
}
