package event

import (
	"context"

	"github.com/google/uuid"
)

// Repository manages the append-only audit store. Events are only ever
// inserted; there is no update or delete.
type Repository interface {
	Insert(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)

	// GetByPaymentID supports idempotency checks in the payment processor:
	// a payment notification that already produced an event is a replay.
	// Returns nil when no event exists for the payment.
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Event, error)
	GetByGroupID(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*Event, error)
	CountByGroupID(ctx context.Context, groupID uuid.UUID) (int64, error)
}

// ErrEventNotFound indicates a missing audit event
type ErrEventNotFound struct {
	EventID uuid.UUID
}

func (e ErrEventNotFound) Error() string {
	return "audit event not found: " + e.EventID.String()
}

// Is matches any ErrEventNotFound when the target carries a nil event ID
func (e ErrEventNotFound) Is(target error) bool {
	t, ok := target.(ErrEventNotFound)
	if !ok {
		return false
	}
	if t.EventID == uuid.Nil {
		return true
	}
	return e.EventID == t.EventID
}

// ErrDuplicateEvent indicates event ID uniqueness violation
type ErrDuplicateEvent struct {
	EventID uuid.UUID
}

func (e ErrDuplicateEvent) Error() string {
	return "duplicate audit event: " + e.EventID.String()
}
