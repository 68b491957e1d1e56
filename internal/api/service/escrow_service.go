package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/fees"
	"github.com/ghost-254/escrow-engine/internal/domain/hold"
	"github.com/ghost-254/escrow-engine/internal/domain/outbox"
)

// escrowService implements the EscrowService interface
type escrowService struct {
	logger      *slog.Logger
	db          TxBeginner
	accountRepo account.Repository
	groupRepo   escrow.Repository
	holdRepo    hold.Repository
	outboxRepo  outbox.Repository
	eventRepo   event.Repository
}

// NewEscrowService creates a new escrow service
func NewEscrowService(
	logger *slog.Logger,
	db TxBeginner,
	accountRepo account.Repository,
	groupRepo escrow.Repository,
	holdRepo hold.Repository,
	outboxRepo outbox.Repository,
	eventRepo event.Repository,
) EscrowService {
	return &escrowService{
		logger:      logger,
		db:          db,
		accountRepo: accountRepo,
		groupRepo:   groupRepo,
		holdRepo:    holdRepo,
		outboxRepo:  outboxRepo,
		eventRepo:   eventRepo,
	}
}

// QuoteFee computes the escrow fee and required buyer deposit for a price
func (s *escrowService) QuoteFee(price int64, policy escrow.Responsibility) (int64, int64, error) {
	fee, err := fees.ComputeFee(price)
	if err != nil {
		return 0, 0, err
	}
	return fee, escrow.DepositFor(price, fee, policy), nil
}

// CreateGroup opens an escrow group for the buyer. The group row, the hold,
// the buyer's balance freeze, and the outbox event commit atomically; if the
// buyer cannot cover the deposit nothing is written.
func (s *escrowService) CreateGroup(ctx context.Context, buyerID uuid.UUID, price int64, currency string, policy escrow.Responsibility) (*escrow.Group, error) {
	fee, err := fees.ComputeFee(price)
	if err != nil {
		return nil, err
	}

	g, err := escrow.NewGroup(buyerID, price, fee, currency, policy)
	if err != nil {
		return nil, err
	}
	deposit := g.Deposit()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accounts := s.accountRepo.WithTx(tx)
	acc, err := accounts.LockForUpdate(ctx, buyerID, currency)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			// No account row means a zero balance
			return nil, account.ErrInsufficientFunds
		}
		return nil, err
	}

	if err := acc.Freeze(deposit); err != nil {
		return nil, err
	}
	if err := accounts.Update(ctx, acc); err != nil {
		return nil, err
	}

	if err := s.groupRepo.WithTx(tx).Create(ctx, g); err != nil {
		return nil, err
	}

	h := hold.New(g.ID, buyerID, currency, deposit)
	if err := s.holdRepo.WithTx(tx).Create(ctx, h); err != nil {
		return nil, err
	}

	e := event.New(event.TypeTransactionCreated).WithGroup(g.ID).WithActor(buyerID)
	e.Amount = deposit
	e.Fee = fee
	e.Currency = currency
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Escrow group created",
		"group_id", g.ID.String(),
		"buyer_id", buyerID.String(),
		"price", price,
		"fee", fee,
		"deposit", deposit,
		"currency", currency)

	return g, nil
}

// JoinGroup sets the seller on an open group
func (s *escrowService) JoinGroup(ctx context.Context, groupID, sellerID uuid.UUID) (*escrow.Group, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	groups := s.groupRepo.WithTx(tx)
	g, err := groups.LockForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := g.Join(sellerID); err != nil {
		return nil, err
	}
	if err := groups.Update(ctx, g); err != nil {
		return nil, err
	}

	e := event.New(event.TypeSellerJoined).WithGroup(g.ID).WithActor(sellerID)
	e.Currency = g.Currency
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Seller joined escrow group",
		"group_id", g.ID.String(),
		"seller_id", sellerID.String())

	return g, nil
}

// GetGroup retrieves a group by ID
func (s *escrowService) GetGroup(ctx context.Context, groupID uuid.UUID) (*escrow.Group, error) {
	return s.groupRepo.GetByID(ctx, groupID)
}

// Propose records the user's agreement in the given workflow. If this flips
// the agreement to both-agreed, the workflow resolves inside the same
// transaction: completion settles, cancellation refunds.
func (s *escrowService) Propose(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	groups := s.groupRepo.WithTx(tx)
	g, err := groups.LockForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}

	party, err := g.PartyOf(userID)
	if err != nil {
		return nil, err
	}

	state, err := g.Propose(wf, party)
	if err != nil {
		return nil, err
	}

	if state == escrow.AgreementBothAgreed {
		if wf == escrow.WorkflowCompletion {
			return s.settle(ctx, tx, g, userID)
		}
		return s.refund(ctx, tx, g, userID)
	}

	if err := groups.Update(ctx, g); err != nil {
		return nil, err
	}

	e := event.New(event.TypeProposalSubmitted).WithGroup(g.ID).WithActor(userID)
	e.Workflow = string(wf)
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Proposal submitted",
		"group_id", g.ID.String(),
		"user_id", userID.String(),
		"workflow", string(wf),
		"state", string(state))

	return g, nil
}

// settle moves the held deposit off the buyer and credits the seller minus
// the fee, then closes the group. Called with the group row already locked
// and both agreement flags set.
//
// A fee larger than the held amount is recoverable: the completion agreement
// drops back to idle and that reset is committed before the error surfaces,
// so the parties can retry after the discrepancy is resolved.
func (s *escrowService) settle(ctx context.Context, tx pgx.Tx, g *escrow.Group, actorID uuid.UUID) (*escrow.Group, error) {
	holds := s.holdRepo.WithTx(tx)
	h, err := holds.GetActiveByGroupID(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	if g.Fee > h.Amount {
		g.Completion.Reset()
		if err := s.groupRepo.WithTx(tx).Update(ctx, g); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.logger.Warn("Settlement aborted, fee exceeds held amount",
			"group_id", g.ID.String(),
			"fee", g.Fee,
			"held", h.Amount)

		return nil, account.ErrFeeExceedsFrozen
	}

	accounts := s.accountRepo.WithTx(tx)
	buyerAcc, sellerAcc, err := s.lockParties(ctx, accounts, g)
	if err != nil {
		return nil, err
	}

	if err := buyerAcc.SettleDebit(h.Amount); err != nil {
		return nil, err
	}
	if err := sellerAcc.SettleCredit(h.Amount, g.Fee); err != nil {
		return nil, err
	}
	if err := accounts.Update(ctx, buyerAcc); err != nil {
		return nil, err
	}
	if err := accounts.Update(ctx, sellerAcc); err != nil {
		return nil, err
	}

	if err := h.MarkSettled(); err != nil {
		return nil, err
	}
	if err := holds.Update(ctx, h); err != nil {
		return nil, err
	}

	if err := g.MarkComplete(); err != nil {
		return nil, err
	}
	if err := s.groupRepo.WithTx(tx).Update(ctx, g); err != nil {
		return nil, err
	}

	e := event.New(event.TypeSettlementCompleted).WithGroup(g.ID).WithActor(actorID)
	e.Amount = h.Amount
	e.Fee = g.Fee
	e.Currency = g.Currency
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Escrow group settled",
		"group_id", g.ID.String(),
		"amount", h.Amount,
		"fee", g.Fee,
		"currency", g.Currency)

	return g, nil
}

// refund releases the held deposit back to the buyer and closes the group
// as cancelled. Called with the group row already locked and both
// cancellation flags set.
func (s *escrowService) refund(ctx context.Context, tx pgx.Tx, g *escrow.Group, actorID uuid.UUID) (*escrow.Group, error) {
	holds := s.holdRepo.WithTx(tx)
	h, err := holds.GetActiveByGroupID(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	accounts := s.accountRepo.WithTx(tx)
	acc, err := accounts.LockForUpdate(ctx, h.UserID, h.Currency)
	if err != nil {
		return nil, err
	}

	released, err := acc.Release(h.Amount)
	if err != nil {
		return nil, err
	}
	if err := accounts.Update(ctx, acc); err != nil {
		return nil, err
	}

	if err := h.MarkReleased(); err != nil {
		return nil, err
	}
	if err := holds.Update(ctx, h); err != nil {
		return nil, err
	}

	if err := g.MarkCancelled(); err != nil {
		return nil, err
	}
	if err := s.groupRepo.WithTx(tx).Update(ctx, g); err != nil {
		return nil, err
	}

	e := event.New(event.TypeTransactionCancelled).WithGroup(g.ID).WithActor(actorID)
	e.Amount = released
	e.Currency = g.Currency
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Escrow group cancelled",
		"group_id", g.ID.String(),
		"released", released,
		"currency", g.Currency)

	return g, nil
}

// lockParties locks the buyer and seller accounts in ascending user ID order
// so two settlements touching the same pair cannot deadlock. The seller
// account is created on the fly; sellers have no reason to hold a balance in
// the group currency before their first payout.
func (s *escrowService) lockParties(ctx context.Context, accounts account.Repository, g *escrow.Group) (*account.Account, *account.Account, error) {
	sellerID := *g.SellerID
	if err := accounts.CreateIfAbsent(ctx, sellerID, g.Currency); err != nil {
		return nil, nil, err
	}

	first, second := g.BuyerID, sellerID
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}

	a1, err := accounts.LockForUpdate(ctx, first, g.Currency)
	if err != nil {
		return nil, nil, err
	}
	a2, err := accounts.LockForUpdate(ctx, second, g.Currency)
	if err != nil {
		return nil, nil, err
	}

	if first == g.BuyerID {
		return a1, a2, nil
	}
	return a2, a1, nil
}

// Reject refuses the counterparty's open proposal in the given workflow
func (s *escrowService) Reject(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	groups := s.groupRepo.WithTx(tx)
	g, err := groups.LockForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}

	party, err := g.PartyOf(userID)
	if err != nil {
		return nil, err
	}

	if err := g.Reject(wf, party); err != nil {
		return nil, err
	}
	if err := groups.Update(ctx, g); err != nil {
		return nil, err
	}

	e := event.New(event.TypeProposalRejected).WithGroup(g.ID).WithActor(userID)
	e.Workflow = string(wf)
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Proposal rejected",
		"group_id", g.ID.String(),
		"user_id", userID.String(),
		"workflow", string(wf))

	return g, nil
}

// AcknowledgeRejection clears a pending rejection in the given workflow
func (s *escrowService) AcknowledgeRejection(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	groups := s.groupRepo.WithTx(tx)
	g, err := groups.LockForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}

	party, err := g.PartyOf(userID)
	if err != nil {
		return nil, err
	}

	if err := g.Acknowledge(wf, party); err != nil {
		return nil, err
	}
	if err := groups.Update(ctx, g); err != nil {
		return nil, err
	}

	e := event.New(event.TypeRejectionAcknowledged).WithGroup(g.ID).WithActor(userID)
	e.Workflow = string(wf)
	if err := s.enqueueEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Rejection acknowledged",
		"group_id", g.ID.String(),
		"user_id", userID.String(),
		"workflow", string(wf))

	return g, nil
}

// GroupEvents retrieves the paginated audit trail for a group
func (s *escrowService) GroupEvents(ctx context.Context, groupID uuid.UUID, page, perPage int) ([]*event.Event, int64, error) {
	// Verify the group exists so unknown IDs surface as not-found instead
	// of an empty page
	if _, err := s.groupRepo.GetByID(ctx, groupID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	events, err := s.eventRepo.GetByGroupID(ctx, groupID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.eventRepo.CountByGroupID(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// enqueueEvent wraps a domain event into an outbox message inside the
// caller's transaction
func (s *escrowService) enqueueEvent(ctx context.Context, tx pgx.Tx, e *event.Event) error {
	msg, err := outbox.NewMessage(e)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return s.outboxRepo.WithTx(tx).Create(ctx, msg)
}
