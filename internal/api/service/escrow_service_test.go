package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/hold"
	"github.com/ghost-254/escrow-engine/internal/domain/outbox"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
)

// Mock implementations of the repository dependencies

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) CreateIfAbsent(ctx context.Context, userID uuid.UUID, currency string) error {
	args := m.Called(ctx, userID, currency)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByUser(ctx context.Context, userID uuid.UUID, currency string) (*account.Account, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*account.Account), args.Error(1)
}

func (m *MockAccountRepository) Update(ctx context.Context, acc *account.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockAccountRepository) LockForUpdate(ctx context.Context, userID uuid.UUID, currency string) (*account.Account, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepository) WithTx(tx pgx.Tx) account.Repository {
	m.Called(tx)
	return m
}

type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) Create(ctx context.Context, g *escrow.Group) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Group), args.Error(1)
}

func (m *MockGroupRepository) Update(ctx context.Context, g *escrow.Group) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockGroupRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Group), args.Error(1)
}

func (m *MockGroupRepository) WithTx(tx pgx.Tx) escrow.Repository {
	m.Called(tx)
	return m
}

type MockHoldRepository struct {
	mock.Mock
}

func (m *MockHoldRepository) Create(ctx context.Context, h *hold.Hold) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHoldRepository) GetActiveByGroupID(ctx context.Context, groupID uuid.UUID) (*hold.Hold, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*hold.Hold), args.Error(1)
}

func (m *MockHoldRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*hold.Hold, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*hold.Hold), args.Error(1)
}

func (m *MockHoldRepository) Update(ctx context.Context, h *hold.Hold) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHoldRepository) WithTx(tx pgx.Tx) hold.Repository {
	m.Called(tx)
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*outbox.Message, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	m.Called(tx)
	return m
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Insert(ctx context.Context, e *event.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*event.Event, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepository) GetByGroupID(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*event.Event, error) {
	args := m.Called(ctx, groupID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventRepository) CountByGroupID(ctx context.Context, groupID uuid.UUID) (int64, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(int64), args.Error(1)
}

// MockTx implements the pgx.Tx interface for testing
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, nil
}

func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *MockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *MockTx) Conn() *pgx.Conn {
	return nil
}

// txBeginnerFunc adapts a function to the TxBeginner interface
type txBeginnerFunc func(ctx context.Context) (pgx.Tx, error)

func (f txBeginnerFunc) Begin(ctx context.Context) (pgx.Tx, error) {
	return f(ctx)
}

type escrowFixture struct {
	accounts *MockAccountRepository
	groups   *MockGroupRepository
	holds    *MockHoldRepository
	outbox   *MockOutboxRepository
	events   *MockEventRepository
	tx       *MockTx
	svc      EscrowService
}

func newEscrowFixture() *escrowFixture {
	f := &escrowFixture{
		accounts: &MockAccountRepository{},
		groups:   &MockGroupRepository{},
		holds:    &MockHoldRepository{},
		outbox:   &MockOutboxRepository{},
		events:   &MockEventRepository{},
		tx:       &MockTx{},
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	db := txBeginnerFunc(func(ctx context.Context) (pgx.Tx, error) {
		return f.tx, nil
	})
	f.svc = NewEscrowService(logger, db, f.accounts, f.groups, f.holds, f.outbox, f.events)
	return f
}

func (f *escrowFixture) assertExpectations(t *testing.T) {
	f.accounts.AssertExpectations(t)
	f.groups.AssertExpectations(t)
	f.holds.AssertExpectations(t)
	f.outbox.AssertExpectations(t)
	f.events.AssertExpectations(t)
	f.tx.AssertExpectations(t)
}

func fundedAccount(userID uuid.UUID, available, frozen int64) *account.Account {
	now := time.Now()
	return &account.Account{
		UserID:    userID,
		Currency:  "USD",
		Available: available,
		Frozen:    frozen,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func activeGroup(t *testing.T, buyerID uuid.UUID, price, fee int64, policy escrow.Responsibility) *escrow.Group {
	t.Helper()
	g, err := escrow.NewGroup(buyerID, price, fee, "USD", policy)
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}
	return g
}

func TestEscrowService_QuoteFee(t *testing.T) {
	f := newEscrowFixture()

	t.Run("BuyerBearsFee", func(t *testing.T) {
		fee, deposit, err := f.svc.QuoteFee(15000, escrow.FeeOnBuyer)
		assert.NoError(t, err)
		assert.Equal(t, int64(1000), fee)
		assert.Equal(t, int64(16000), deposit)
	})

	t.Run("SellerBearsFee", func(t *testing.T) {
		fee, deposit, err := f.svc.QuoteFee(15000, escrow.FeeOnSeller)
		assert.NoError(t, err)
		assert.Equal(t, int64(1000), fee)
		assert.Equal(t, int64(15000), deposit)
	})

	t.Run("SplitFeeFloorsBuyerHalf", func(t *testing.T) {
		fee, deposit, err := f.svc.QuoteFee(900, escrow.FeeSplit)
		assert.NoError(t, err)
		assert.Equal(t, int64(100), fee)
		assert.Equal(t, int64(950), deposit)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		_, _, err := f.svc.QuoteFee(0, escrow.FeeOnBuyer)
		assert.Error(t, err)
	})
}

func TestEscrowService_CreateGroup(t *testing.T) {
	ctx := context.Background()
	buyerID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		f := newEscrowFixture()
		buyerAcc := fundedAccount(buyerID, 20000, 0)

		f.accounts.On("WithTx", f.tx).Return(f.accounts)
		f.accounts.On("LockForUpdate", mock.Anything, buyerID, "USD").Return(buyerAcc, nil).Once()
		f.accounts.On("Update", mock.Anything, buyerAcc).Return(nil).Once()
		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("Create", mock.Anything, mock.AnythingOfType("*escrow.Group")).Return(nil).Once()
		f.holds.On("WithTx", f.tx).Return(f.holds)
		f.holds.On("Create", mock.Anything, mock.AnythingOfType("*hold.Hold")).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		g, err := f.svc.CreateGroup(ctx, buyerID, 15000, "USD", escrow.FeeOnBuyer)

		assert.NoError(t, err)
		assert.NotNil(t, g)
		assert.Equal(t, int64(1000), g.Fee)
		assert.Equal(t, int64(16000), g.Deposit())
		assert.Equal(t, escrow.StatusActive, g.Status)
		// Deposit moved from available to frozen
		assert.Equal(t, int64(4000), buyerAcc.Available)
		assert.Equal(t, int64(16000), buyerAcc.Frozen)
		f.assertExpectations(t)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		f := newEscrowFixture()
		buyerAcc := fundedAccount(buyerID, 500, 0)

		f.accounts.On("WithTx", f.tx).Return(f.accounts)
		f.accounts.On("LockForUpdate", mock.Anything, buyerID, "USD").Return(buyerAcc, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		g, err := f.svc.CreateGroup(ctx, buyerID, 15000, "USD", escrow.FeeOnBuyer)

		assert.ErrorIs(t, err, account.ErrInsufficientFunds)
		assert.Nil(t, g)
		assert.Equal(t, int64(500), buyerAcc.Available)
		f.tx.AssertNotCalled(t, "Commit", mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("MissingAccountReportsInsufficientFunds", func(t *testing.T) {
		f := newEscrowFixture()

		f.accounts.On("WithTx", f.tx).Return(f.accounts)
		f.accounts.On("LockForUpdate", mock.Anything, buyerID, "USD").
			Return(nil, account.ErrAccountNotFound{UserID: buyerID, Currency: "USD"}).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		g, err := f.svc.CreateGroup(ctx, buyerID, 15000, "USD", escrow.FeeOnBuyer)

		assert.ErrorIs(t, err, account.ErrInsufficientFunds)
		assert.Nil(t, g)
		f.assertExpectations(t)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		f := newEscrowFixture()

		g, err := f.svc.CreateGroup(ctx, buyerID, 0, "USD", escrow.FeeOnBuyer)

		assert.Error(t, err)
		assert.Nil(t, g)
	})
}

func TestEscrowService_JoinGroup(t *testing.T) {
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.JoinGroup(ctx, g.ID, sellerID)

		assert.NoError(t, err)
		assert.Equal(t, sellerID, *got.SellerID)
		f.assertExpectations(t)
	})

	t.Run("BuyerCannotJoinOwnGroup", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.JoinGroup(ctx, g.ID, buyerID)

		assert.ErrorIs(t, err, escrow.ErrBuyerCannotBeSeller)
		assert.Nil(t, got)
		f.tx.AssertNotCalled(t, "Commit", mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("SellerSeatTaken", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		assert.NoError(t, g.Join(sellerID))

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.JoinGroup(ctx, g.ID, uuid.New())

		assert.ErrorIs(t, err, escrow.ErrSellerAlreadyJoined)
		assert.Nil(t, got)
		f.assertExpectations(t)
	})

	t.Run("GroupNotFound", func(t *testing.T) {
		f := newEscrowFixture()
		groupID := uuid.New()

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, groupID).
			Return(nil, escrow.ErrGroupNotFound{GroupID: groupID}).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.JoinGroup(ctx, groupID, sellerID)

		assert.ErrorIs(t, err, escrow.ErrGroupNotFound{})
		assert.Nil(t, got)
		f.assertExpectations(t)
	})
}

func TestEscrowService_Propose(t *testing.T) {
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	joinedGroup := func(t *testing.T, price, fee int64, policy escrow.Responsibility) *escrow.Group {
		g := activeGroup(t, buyerID, price, fee, policy)
		assert.NoError(t, g.Join(sellerID))
		return g
	}

	t.Run("FirstProposalRecordsInitiator", func(t *testing.T) {
		f := newEscrowFixture()
		g := joinedGroup(t, 15000, 1000, escrow.FeeOnBuyer)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, buyerID, escrow.WorkflowCompletion)

		assert.NoError(t, err)
		assert.Equal(t, escrow.AgreementOneAgreed, got.Completion.State())
		assert.Equal(t, escrow.PartyBuyer, got.Completion.Initiator)
		assert.Equal(t, escrow.StatusActive, got.Status)
		f.assertExpectations(t)
	})

	t.Run("CompletionSettlesWhenBothAgree", func(t *testing.T) {
		f := newEscrowFixture()
		g := joinedGroup(t, 15000, 1000, escrow.FeeOnBuyer)
		_, err := g.Propose(escrow.WorkflowCompletion, escrow.PartyBuyer)
		assert.NoError(t, err)

		buyerAcc := fundedAccount(buyerID, 4000, 16000)
		sellerAcc := fundedAccount(sellerID, 0, 0)
		h := hold.New(g.ID, buyerID, "USD", 16000)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.holds.On("WithTx", f.tx).Return(f.holds)
		f.holds.On("GetActiveByGroupID", mock.Anything, g.ID).Return(h, nil).Once()
		f.accounts.On("WithTx", f.tx).Return(f.accounts)
		f.accounts.On("CreateIfAbsent", mock.Anything, sellerID, "USD").Return(nil).Once()
		f.accounts.On("LockForUpdate", mock.Anything, buyerID, "USD").Return(buyerAcc, nil).Once()
		f.accounts.On("LockForUpdate", mock.Anything, sellerID, "USD").Return(sellerAcc, nil).Once()
		f.accounts.On("Update", mock.Anything, buyerAcc).Return(nil).Once()
		f.accounts.On("Update", mock.Anything, sellerAcc).Return(nil).Once()
		f.holds.On("Update", mock.Anything, h).Return(nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, sellerID, escrow.WorkflowCompletion)

		assert.NoError(t, err)
		assert.Equal(t, escrow.StatusComplete, got.Status)
		assert.NotNil(t, got.ClosedAt)
		// Buyer loses the frozen deposit, seller gains deposit minus fee
		assert.Equal(t, int64(0), buyerAcc.Frozen)
		assert.Equal(t, int64(4000), buyerAcc.Available)
		assert.Equal(t, int64(15000), sellerAcc.Available)
		assert.Equal(t, hold.StatusSettled, h.Status)
		f.assertExpectations(t)
	})

	t.Run("CancellationRefundsWhenBothAgree", func(t *testing.T) {
		f := newEscrowFixture()
		g := joinedGroup(t, 15000, 1000, escrow.FeeOnBuyer)
		_, err := g.Propose(escrow.WorkflowCancellation, escrow.PartySeller)
		assert.NoError(t, err)

		buyerAcc := fundedAccount(buyerID, 4000, 16000)
		h := hold.New(g.ID, buyerID, "USD", 16000)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.holds.On("WithTx", f.tx).Return(f.holds)
		f.holds.On("GetActiveByGroupID", mock.Anything, g.ID).Return(h, nil).Once()
		f.accounts.On("WithTx", f.tx).Return(f.accounts)
		f.accounts.On("LockForUpdate", mock.Anything, buyerID, "USD").Return(buyerAcc, nil).Once()
		f.accounts.On("Update", mock.Anything, buyerAcc).Return(nil).Once()
		f.holds.On("Update", mock.Anything, h).Return(nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, buyerID, escrow.WorkflowCancellation)

		assert.NoError(t, err)
		assert.Equal(t, escrow.StatusCancelled, got.Status)
		assert.Equal(t, int64(20000), buyerAcc.Available)
		assert.Equal(t, int64(0), buyerAcc.Frozen)
		assert.Equal(t, hold.StatusReleased, h.Status)
		f.assertExpectations(t)
	})

	t.Run("FeeExceedsHeldAmountResetsAgreement", func(t *testing.T) {
		f := newEscrowFixture()
		g := joinedGroup(t, 15000, 1000, escrow.FeeOnBuyer)
		_, err := g.Propose(escrow.WorkflowCompletion, escrow.PartyBuyer)
		assert.NoError(t, err)

		// Hold smaller than the fee, e.g. after a fee schedule migration
		h := hold.New(g.ID, buyerID, "USD", 500)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.holds.On("WithTx", f.tx).Return(f.holds)
		f.holds.On("GetActiveByGroupID", mock.Anything, g.ID).Return(h, nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, sellerID, escrow.WorkflowCompletion)

		assert.ErrorIs(t, err, account.ErrFeeExceedsFrozen)
		assert.Nil(t, got)
		// The agreement reset is committed so the parties can retry
		assert.Equal(t, escrow.AgreementIdle, g.Completion.State())
		assert.Equal(t, escrow.StatusActive, g.Status)
		f.accounts.AssertNotCalled(t, "LockForUpdate", mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		f := newEscrowFixture()
		g := joinedGroup(t, 15000, 1000, escrow.FeeOnBuyer)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, uuid.New(), escrow.WorkflowCompletion)

		assert.ErrorIs(t, err, escrow.ErrNotParticipant)
		assert.Nil(t, got)
		f.assertExpectations(t)
	})

	t.Run("NoSellerYet", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, buyerID, escrow.WorkflowCompletion)

		assert.ErrorIs(t, err, escrow.ErrNoSeller)
		assert.Nil(t, got)
		f.assertExpectations(t)
	})

	t.Run("ClosedGroup", func(t *testing.T) {
		f := newEscrowFixture()
		g := joinedGroup(t, 15000, 1000, escrow.FeeOnBuyer)
		assert.NoError(t, g.MarkComplete())

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Propose(ctx, g.ID, buyerID, escrow.WorkflowCompletion)

		assert.ErrorIs(t, err, escrow.ErrInvalidTransition)
		assert.Nil(t, got)
		f.assertExpectations(t)
	})
}

func TestEscrowService_Reject(t *testing.T) {
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	t.Run("CounterpartyRejectsOpenProposal", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		assert.NoError(t, g.Join(sellerID))
		_, err := g.Propose(escrow.WorkflowCompletion, escrow.PartyBuyer)
		assert.NoError(t, err)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Reject(ctx, g.ID, sellerID, escrow.WorkflowCompletion)

		assert.NoError(t, err)
		assert.Equal(t, escrow.AgreementRejected, got.Completion.State())
		assert.Equal(t, escrow.PartySeller, got.Completion.Rejection.By)
		f.assertExpectations(t)
	})

	t.Run("InitiatorCannotRejectOwnProposal", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		assert.NoError(t, g.Join(sellerID))
		_, err := g.Propose(escrow.WorkflowCompletion, escrow.PartyBuyer)
		assert.NoError(t, err)

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.Reject(ctx, g.ID, buyerID, escrow.WorkflowCompletion)

		assert.ErrorIs(t, err, escrow.ErrInvalidTransition)
		assert.Nil(t, got)
		f.assertExpectations(t)
	})
}

func TestEscrowService_AcknowledgeRejection(t *testing.T) {
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	t.Run("InitiatorClearsRejection", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		assert.NoError(t, g.Join(sellerID))
		_, err := g.Propose(escrow.WorkflowCompletion, escrow.PartyBuyer)
		assert.NoError(t, err)
		assert.NoError(t, g.Reject(escrow.WorkflowCompletion, escrow.PartySeller))

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.groups.On("Update", mock.Anything, g).Return(nil).Once()
		f.outbox.On("WithTx", f.tx).Return(f.outbox)
		f.outbox.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
		f.tx.On("Commit", mock.Anything).Return(nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.AcknowledgeRejection(ctx, g.ID, buyerID, escrow.WorkflowCompletion)

		assert.NoError(t, err)
		assert.Equal(t, escrow.AgreementIdle, got.Completion.State())
		f.assertExpectations(t)
	})

	t.Run("RejectorCannotAcknowledge", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		assert.NoError(t, g.Join(sellerID))
		_, err := g.Propose(escrow.WorkflowCompletion, escrow.PartyBuyer)
		assert.NoError(t, err)
		assert.NoError(t, g.Reject(escrow.WorkflowCompletion, escrow.PartySeller))

		f.groups.On("WithTx", f.tx).Return(f.groups)
		f.groups.On("LockForUpdate", mock.Anything, g.ID).Return(g, nil).Once()
		f.tx.On("Rollback", mock.Anything).Return(nil).Once()

		got, err := f.svc.AcknowledgeRejection(ctx, g.ID, sellerID, escrow.WorkflowCompletion)

		assert.ErrorIs(t, err, escrow.ErrInvalidTransition)
		assert.Nil(t, got)
		f.assertExpectations(t)
	})
}

func TestEscrowService_GroupEvents(t *testing.T) {
	ctx := context.Background()
	buyerID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		events := []*event.Event{
			event.New(event.TypeSellerJoined).WithGroup(g.ID),
			event.New(event.TypeTransactionCreated).WithGroup(g.ID),
		}

		f.groups.On("GetByID", ctx, g.ID).Return(g, nil).Once()
		f.events.On("GetByGroupID", ctx, g.ID, 10, 0).Return(events, nil).Once()
		f.events.On("CountByGroupID", ctx, g.ID).Return(int64(2), nil).Once()

		got, total, err := f.svc.GroupEvents(ctx, g.ID, 1, 10)

		assert.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, int64(2), total)
		f.assertExpectations(t)
	})

	t.Run("GroupNotFound", func(t *testing.T) {
		f := newEscrowFixture()
		groupID := uuid.New()

		f.groups.On("GetByID", ctx, groupID).
			Return(nil, escrow.ErrGroupNotFound{GroupID: groupID}).Once()

		got, total, err := f.svc.GroupEvents(ctx, groupID, 1, 10)

		assert.ErrorIs(t, err, escrow.ErrGroupNotFound{})
		assert.Nil(t, got)
		assert.Zero(t, total)
		f.events.AssertNotCalled(t, "GetByGroupID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		f := newEscrowFixture()
		g := activeGroup(t, buyerID, 15000, 1000, escrow.FeeOnBuyer)
		dbErr := errors.New("mongo unavailable")

		f.groups.On("GetByID", ctx, g.ID).Return(g, nil).Once()
		f.events.On("GetByGroupID", ctx, g.ID, 10, 0).Return(nil, dbErr).Once()

		got, total, err := f.svc.GroupEvents(ctx, g.ID, 1, 10)

		assert.Error(t, err)
		assert.Nil(t, got)
		assert.Zero(t, total)
		f.assertExpectations(t)
	})
}

var _ account.Repository = (*MockAccountRepository)(nil)
var _ escrow.Repository = (*MockGroupRepository)(nil)
var _ hold.Repository = (*MockHoldRepository)(nil)
var _ outbox.Repository = (*MockOutboxRepository)(nil)
var _ event.Repository = (*MockEventRepository)(nil)
