// Package hold tracks the frozen amount attributable to a single escrow
// group. A buyer may have several open groups in the same currency; the
// account row only knows the per-currency frozen sum, so settlement reads
// the exact amount from the group's hold instead.
package hold

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyClosed = errors.New("hold is already settled or released")

// Status of a hold. Terminal once settled or released.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusSettled  Status = "SETTLED"  // moved to the seller at settlement
	StatusReleased Status = "RELEASED" // returned to the buyer on cancellation
)

// Hold is the frozen slice of one buyer account committed to one group.
type Hold struct {
	ID        uuid.UUID  `json:"id"`
	GroupID   uuid.UUID  `json:"group_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Currency  string     `json:"currency"`
	Amount    int64      `json:"amount"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// New creates an active hold for the buyer's deposit on a group.
func New(groupID, userID uuid.UUID, currency string, amount int64) *Hold {
	return &Hold{
		ID:        uuid.New(),
		GroupID:   groupID,
		UserID:    userID,
		Currency:  currency,
		Amount:    amount,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
}

// MarkSettled closes the hold after its amount moved to the seller.
func (h *Hold) MarkSettled() error {
	return h.close(StatusSettled)
}

// MarkReleased closes the hold after its amount returned to the buyer.
func (h *Hold) MarkReleased() error {
	return h.close(StatusReleased)
}

func (h *Hold) close(s Status) error {
	if h.Status != StatusActive {
		return ErrAlreadyClosed
	}
	h.Status = s
	now := time.Now()
	h.ClosedAt = &now
	return nil
}
