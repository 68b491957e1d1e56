package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPaymentDirection = errors.New("invalid payment direction")
	ErrInvalidPaymentResult    = errors.New("invalid payment result")
)

// PaymentDirection defines which way funds move at the gateway boundary
type PaymentDirection string

const (
	PaymentDirectionDeposit    PaymentDirection = "DEPOSIT"
	PaymentDirectionWithdrawal PaymentDirection = "WITHDRAWAL"
)

// PaymentResult is the gateway's final (or interim) word on a payment
type PaymentResult string

const (
	PaymentResultSucceeded PaymentResult = "SUCCEEDED"
	PaymentResultFailed    PaymentResult = "FAILED"
	PaymentResultPending   PaymentResult = "PENDING"
)

// PaymentNotification is the Kafka message published by the gateway glue
// once a mobile-money or crypto payment resolves. The processor applies
// SUCCEEDED notifications to the balance ledger; PENDING ones are
// acknowledged and ignored until the gateway reports a final result.
type PaymentNotification struct {
	PaymentID     uuid.UUID        `json:"payment_id"`
	UserID        uuid.UUID        `json:"user_id"`
	Direction     PaymentDirection `json:"direction"`
	Amount        int64            `json:"amount"` // Minor units
	Currency      string           `json:"currency"`
	Result        PaymentResult    `json:"result"`
	Provider      string           `json:"provider,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}
