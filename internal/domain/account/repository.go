package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines account persistence operations
type Repository interface {
	// CreateIfAbsent inserts a zero-balance account row unless one already
	// exists for the (user, currency) pair. Safe under concurrent callers.
	CreateIfAbsent(ctx context.Context, userID uuid.UUID, currency string) error
	GetByUser(ctx context.Context, userID uuid.UUID, currency string) (*Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error)
	Update(ctx context.Context, acc *Account) error

	// LockForUpdate acquires a row lock on the account for the duration of
	// the surrounding transaction. All balance mutations must go through it.
	LockForUpdate(ctx context.Context, userID uuid.UUID, currency string) (*Account, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	UserID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for account: " + e.UserID.String()
}

// ErrAccountNotFound indicates a missing (user, currency) account row
type ErrAccountNotFound struct {
	UserID   uuid.UUID
	Currency string
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.UserID.String() + "/" + e.Currency
}

// Is matches any ErrAccountNotFound when the target carries a nil user ID
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	if t.UserID == uuid.Nil {
		return true
	}
	return e.UserID == t.UserID && e.Currency == t.Currency
}
