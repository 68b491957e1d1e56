package components

import (
	"context"
	"errors"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
)

// MockEventRepo for testing
type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) Insert(ctx context.Context, e *event.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*event.Event, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepo) GetByGroupID(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*event.Event, error) {
	args := m.Called(ctx, groupID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventRepo) CountByGroupID(ctx context.Context, groupID uuid.UUID) (int64, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(int64), args.Error(1)
}

func TestPaymentValidator_Validate(t *testing.T) {
	mockRepo := &MockEventRepo{}
	logger := slog.Default()
	validator := NewPaymentValidator(mockRepo, logger)

	tests := []struct {
		name         string
		notification *shared.PaymentNotification
		wantErr      bool
	}{
		{
			name: "valid successful deposit",
			notification: &shared.PaymentNotification{
				PaymentID: uuid.New(),
				UserID:    uuid.New(),
				Direction: shared.PaymentDirectionDeposit,
				Amount:    100,
				Result:    shared.PaymentResultSucceeded,
			},
			wantErr: false,
		},
		{
			name: "valid pending withdrawal",
			notification: &shared.PaymentNotification{
				PaymentID: uuid.New(),
				UserID:    uuid.New(),
				Direction: shared.PaymentDirectionWithdrawal,
				Amount:    100,
				Result:    shared.PaymentResultPending,
			},
			wantErr: false,
		},
		{
			name: "invalid amount",
			notification: &shared.PaymentNotification{
				PaymentID: uuid.New(),
				UserID:    uuid.New(),
				Direction: shared.PaymentDirectionDeposit,
				Amount:    0,
				Result:    shared.PaymentResultSucceeded,
			},
			wantErr: true,
		},
		{
			name: "invalid direction",
			notification: &shared.PaymentNotification{
				PaymentID: uuid.New(),
				UserID:    uuid.New(),
				Direction: "TRANSFER",
				Amount:    100,
				Result:    shared.PaymentResultSucceeded,
			},
			wantErr: true,
		},
		{
			name: "invalid result",
			notification: &shared.PaymentNotification{
				PaymentID: uuid.New(),
				UserID:    uuid.New(),
				Direction: shared.PaymentDirectionDeposit,
				Amount:    100,
				Result:    "MAYBE",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(context.Background(), tt.notification)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPaymentValidator_CheckIdempotency(t *testing.T) {
	mockRepo := &MockEventRepo{}
	logger := slog.Default()
	validator := NewPaymentValidator(mockRepo, logger)
	ctx := context.Background()

	recordedEvent := &event.Event{
		ID:   uuid.New(),
		Type: event.TypeBalanceCredited,
	}

	tests := []struct {
		name          string
		paymentID     uuid.UUID
		setupMock     func()
		wantProcessed bool
		wantErr       bool
	}{
		{
			name:      "payment not yet applied",
			paymentID: uuid.New(),
			setupMock: func() {
				mockRepo.On("GetByPaymentID", ctx, mock.Anything).Return(nil, nil).Once()
			},
			wantProcessed: false,
			wantErr:       false,
		},
		{
			name:      "payment already applied",
			paymentID: uuid.New(),
			setupMock: func() {
				mockRepo.On("GetByPaymentID", ctx, mock.Anything).Return(recordedEvent, nil).Once()
			},
			wantProcessed: true,
			wantErr:       false,
		},
		{
			name:      "audit store error",
			paymentID: uuid.New(),
			setupMock: func() {
				mockRepo.On("GetByPaymentID", ctx, mock.Anything).Return(nil, errors.New("mongo down")).Once()
			},
			wantProcessed: false,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()
			notification := &shared.PaymentNotification{
				PaymentID: tt.paymentID,
			}
			processed, err := validator.CheckIdempotency(ctx, notification)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantProcessed, processed)
			mockRepo.AssertExpectations(t)
		})
	}
}
