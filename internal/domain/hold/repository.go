package hold

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines hold persistence operations
type Repository interface {
	Create(ctx context.Context, h *Hold) error

	// GetActiveByGroupID returns the open hold backing a group. Hold rows
	// are only mutated while the owning group row is locked, so no separate
	// lock is taken here.
	GetActiveByGroupID(ctx context.Context, groupID uuid.UUID) (*Hold, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Hold, error)
	Update(ctx context.Context, h *Hold) error
	WithTx(tx pgx.Tx) Repository
}

// ErrHoldNotFound indicates a missing or already closed hold
type ErrHoldNotFound struct {
	GroupID uuid.UUID
}

func (e ErrHoldNotFound) Error() string {
	return "active hold not found for group: " + e.GroupID.String()
}

// Is matches any ErrHoldNotFound when the target carries a nil group ID
func (e ErrHoldNotFound) Is(target error) bool {
	t, ok := target.(ErrHoldNotFound)
	if !ok {
		return false
	}
	if t.GroupID == uuid.Nil {
		return true
	}
	return e.GroupID == t.GroupID
}
