package escrow

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines escrow group persistence operations
type Repository interface {
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	Update(ctx context.Context, g *Group) error

	// LockForUpdate acquires a row lock on the group for the duration of the
	// surrounding transaction. Every agreement or status mutation must hold
	// it so concurrent buyer/seller actions serialize instead of losing
	// updates.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Group, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrGroupNotFound indicates a missing escrow group
type ErrGroupNotFound struct {
	GroupID uuid.UUID
}

func (e ErrGroupNotFound) Error() string {
	return "escrow group not found: " + e.GroupID.String()
}

// Is matches any ErrGroupNotFound when the target carries a nil group ID
func (e ErrGroupNotFound) Is(target error) bool {
	t, ok := target.(ErrGroupNotFound)
	if !ok {
		return false
	}
	if t.GroupID == uuid.Nil {
		return true
	}
	return e.GroupID == t.GroupID
}

// ErrConcurrentModification indicates optimistic lock failure on a group
type ErrConcurrentModification struct {
	GroupID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for group: " + e.GroupID.String()
}
