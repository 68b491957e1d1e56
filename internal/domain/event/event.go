// Package event defines the domain events emitted by escrow and payment
// mutations. Events flow through the transactional outbox to the Kafka
// events topic for notification fan-out and are retained permanently in the
// MongoDB audit collection.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the domain events.
type Type string

const (
	TypeTransactionCreated    Type = "TRANSACTION_CREATED"
	TypeSellerJoined          Type = "SELLER_JOINED"
	TypeProposalSubmitted     Type = "PROPOSAL_SUBMITTED"
	TypeProposalRejected      Type = "PROPOSAL_REJECTED"
	TypeRejectionAcknowledged Type = "REJECTION_ACKNOWLEDGED"
	TypeSettlementCompleted   Type = "SETTLEMENT_COMPLETED"
	TypeTransactionCancelled  Type = "TRANSACTION_CANCELLED"
	TypeBalanceCredited       Type = "BALANCE_CREDITED"
	TypeBalanceDebited        Type = "BALANCE_DEBITED"
	TypePaymentFailed         Type = "PAYMENT_FAILED"
)

// Event is one audit record. GroupID is set for escrow events, PaymentID
// for payment gateway events; ActorID is the user whose action caused the
// event when one exists.
type Event struct {
	ID            uuid.UUID  `json:"event_id" bson:"event_id"`
	Type          Type       `json:"type" bson:"type"`
	GroupID       *uuid.UUID `json:"group_id,omitempty" bson:"group_id,omitempty"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	Workflow      string     `json:"workflow,omitempty" bson:"workflow,omitempty"`
	Amount        int64      `json:"amount,omitempty" bson:"amount,omitempty"`
	Fee           int64      `json:"fee,omitempty" bson:"fee,omitempty"`
	Currency      string     `json:"currency,omitempty" bson:"currency,omitempty"`
	Detail        string     `json:"detail,omitempty" bson:"detail,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at" bson:"occurred_at"`
	RecordedAt    *time.Time `json:"recorded_at,omitempty" bson:"recorded_at,omitempty"`
}

// New creates an event with a fresh ID stamped at the current time.
func New(t Type) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: time.Now(),
	}
}

// WithGroup attaches the escrow group reference.
func (e *Event) WithGroup(groupID uuid.UUID) *Event {
	e.GroupID = &groupID
	return e
}

// WithPayment attaches the payment gateway reference.
func (e *Event) WithPayment(paymentID uuid.UUID) *Event {
	e.PaymentID = &paymentID
	return e
}

// WithActor attaches the acting user.
func (e *Event) WithActor(userID uuid.UUID) *Event {
	e.ActorID = &userID
	return e
}
