package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/hold"
)

// TxBeginner starts database transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountService defines the interface for balance operations
type AccountService interface {
	// RecordDeposit credits a confirmed deposit to the user's balance,
	// creating the account on first use. Development hook; production
	// deposits flow through the payment processor.
	RecordDeposit(ctx context.Context, userID uuid.UUID, amount int64, currency string) (*account.Account, error)

	// GetBalances retrieves all currency balances held by a user
	GetBalances(ctx context.Context, userID uuid.UUID) ([]*account.Account, error)

	// GetHolds retrieves the per-group frozen amounts against a user's accounts
	GetHolds(ctx context.Context, userID uuid.UUID) ([]*hold.Hold, error)
}

// EscrowService defines the interface for escrow group operations. All
// mutations run in a single database transaction holding row locks on the
// group and any touched accounts, so concurrent requests against the same
// group or balance serialize.
type EscrowService interface {
	// QuoteFee computes the escrow fee and required buyer deposit for a price
	QuoteFee(price int64, policy escrow.Responsibility) (fee int64, deposit int64, err error)

	// CreateGroup opens an escrow group for the buyer, freezing the required
	// deposit. Returns ErrInsufficientFunds if the buyer cannot cover it.
	CreateGroup(ctx context.Context, buyerID uuid.UUID, price int64, currency string, policy escrow.Responsibility) (*escrow.Group, error)

	// JoinGroup sets the seller on an open group
	JoinGroup(ctx context.Context, groupID, sellerID uuid.UUID) (*escrow.Group, error)

	// GetGroup retrieves a group by ID
	GetGroup(ctx context.Context, groupID uuid.UUID) (*escrow.Group, error)

	// Propose records the user's agreement in the given workflow. When the
	// counterparty has already agreed the workflow resolves in the same
	// transaction: completion settles the held funds to the seller minus the
	// fee, cancellation releases them back to the buyer.
	Propose(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error)

	// Reject refuses the counterparty's open proposal in the given workflow
	Reject(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error)

	// AcknowledgeRejection clears a pending rejection in the given workflow
	AcknowledgeRejection(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error)

	// GroupEvents retrieves the paginated audit trail for a group.
	// Returns events, total count, and any error.
	GroupEvents(ctx context.Context, groupID uuid.UUID, page, perPage int) ([]*event.Event, int64, error)
}
