// Package escrow models the mediated deal between a buyer and a seller: the
// escrow group record, its lifecycle status, and the two-party agreement
// protocol that governs completion and cancellation.
package escrow

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrSellerAlreadyJoined = errors.New("group already has a seller")
	ErrBuyerCannotBeSeller = errors.New("buyer cannot join as seller")
	ErrNoSeller            = errors.New("group has no seller yet")
	ErrNotParticipant      = errors.New("user is not a participant of this group")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidFee          = errors.New("fee cannot be negative or exceed price")
)

// Responsibility determines who bears the escrow fee.
type Responsibility string

const (
	FeeOnBuyer  Responsibility = "BUYER"
	FeeOnSeller Responsibility = "SELLER"
	FeeSplit    Responsibility = "SPLIT"
)

// Valid reports whether r is a known fee responsibility policy.
func (r Responsibility) Valid() bool {
	switch r {
	case FeeOnBuyer, FeeOnSeller, FeeSplit:
		return true
	}
	return false
}

// Status is the group lifecycle state. Terminal once non-active.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusComplete  Status = "COMPLETE"
	StatusCancelled Status = "CANCELLED"
)

// Workflow selects which agreement instance an operation targets.
type Workflow string

const (
	WorkflowCompletion   Workflow = "COMPLETION"
	WorkflowCancellation Workflow = "CANCELLATION"
)

// Group is the escrow transaction record. The buyer creates it and deposits
// funds; the seller joins afterwards. Price and fee are snapshotted at
// creation in minor units of Currency and never recomputed.
type Group struct {
	ID           uuid.UUID      `json:"id"`
	BuyerID      uuid.UUID      `json:"buyer_id"`
	SellerID     *uuid.UUID     `json:"seller_id,omitempty"`
	Price        int64          `json:"price"`
	Fee          int64          `json:"fee"`
	Currency     string         `json:"currency"`
	FeePolicy    Responsibility `json:"fee_responsibility"`
	Status       Status         `json:"status"`
	Completion   Agreement      `json:"completion"`
	Cancellation Agreement      `json:"cancellation"`
	Version      int            `json:"version"` // For optimistic locking
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}

// NewGroup creates an active escrow group for the buyer. The fee must have
// been computed from the price by the fee schedule beforehand.
func NewGroup(buyerID uuid.UUID, price, fee int64, currency string, policy Responsibility) (*Group, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if fee < 0 || fee > price {
		return nil, ErrInvalidFee
	}
	if !policy.Valid() {
		return nil, errors.New("unknown fee responsibility: " + string(policy))
	}

	now := time.Now()
	return &Group{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		Price:     price,
		Fee:       fee,
		Currency:  currency,
		FeePolicy: policy,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DepositFor returns the buyer's required deposit for a price, fee, and fee
// responsibility. With FeeSplit the buyer fronts half the fee (floored); the
// seller bears the remainder out of the settlement payout.
func DepositFor(price, fee int64, policy Responsibility) int64 {
	switch policy {
	case FeeOnBuyer:
		return price + fee
	case FeeSplit:
		return price + fee/2
	default:
		return price
	}
}

// Deposit returns the buyer deposit snapshotted into this group.
func (g *Group) Deposit() int64 {
	return DepositFor(g.Price, g.Fee, g.FeePolicy)
}

// Join sets the seller on a group that does not have one yet.
func (g *Group) Join(sellerID uuid.UUID) error {
	if g.Status != StatusActive {
		return ErrInvalidTransition
	}
	if g.SellerID != nil {
		return ErrSellerAlreadyJoined
	}
	if sellerID == g.BuyerID {
		return ErrBuyerCannotBeSeller
	}

	g.SellerID = &sellerID
	g.touch()
	return nil
}

// PartyOf resolves a user ID to its role in this group.
func (g *Group) PartyOf(userID uuid.UUID) (Party, error) {
	if userID == g.BuyerID {
		return PartyBuyer, nil
	}
	if g.SellerID != nil && userID == *g.SellerID {
		return PartySeller, nil
	}
	return "", ErrNotParticipant
}

// AgreementFor returns the agreement instance governing the workflow.
func (g *Group) AgreementFor(wf Workflow) *Agreement {
	if wf == WorkflowCancellation {
		return &g.Cancellation
	}
	return &g.Completion
}

// Propose records party's agreement in the given workflow. Requires an
// active group with both parties present: there is no counterparty to agree
// with before the seller joins.
func (g *Group) Propose(wf Workflow, p Party) (AgreementState, error) {
	if g.Status != StatusActive {
		return "", ErrInvalidTransition
	}
	if g.SellerID == nil {
		return "", ErrNoSeller
	}

	state := g.AgreementFor(wf).Propose(p)
	g.touch()
	return state, nil
}

// Reject refuses the counterparty's open proposal in the given workflow.
func (g *Group) Reject(wf Workflow, p Party) error {
	if g.Status != StatusActive {
		return ErrInvalidTransition
	}

	if err := g.AgreementFor(wf).Reject(p); err != nil {
		return err
	}
	g.touch()
	return nil
}

// Acknowledge clears a pending rejection in the given workflow.
func (g *Group) Acknowledge(wf Workflow, p Party) error {
	if g.Status != StatusActive {
		return ErrInvalidTransition
	}

	if err := g.AgreementFor(wf).Acknowledge(p); err != nil {
		return err
	}
	g.touch()
	return nil
}

// MarkComplete closes the group after a successful settlement. Both
// agreement sub-states are cleared; the cancellation workflow becomes moot.
func (g *Group) MarkComplete() error {
	if g.Status != StatusActive {
		return ErrInvalidTransition
	}

	g.Status = StatusComplete
	g.Completion.Reset()
	g.Cancellation.Reset()
	now := time.Now()
	g.ClosedAt = &now
	g.touch()
	return nil
}

// MarkCancelled closes the group without settlement.
func (g *Group) MarkCancelled() error {
	if g.Status != StatusActive {
		return ErrInvalidTransition
	}

	g.Status = StatusCancelled
	g.Completion.Reset()
	g.Cancellation.Reset()
	now := time.Now()
	g.ClosedAt = &now
	g.touch()
	return nil
}

func (g *Group) touch() {
	g.UpdatedAt = time.Now()
	g.Version++
}
