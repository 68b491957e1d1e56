package escrow

import (
	"errors"
	"time"
)

// ErrInvalidTransition indicates a proposal, rejection, or acknowledgement
// that is not permitted from the current agreement or group state.
var ErrInvalidTransition = errors.New("invalid transition")

// Party identifies one side of an escrow group.
type Party string

const (
	PartyBuyer  Party = "BUYER"
	PartySeller Party = "SELLER"
)

// Other returns the counterparty.
func (p Party) Other() Party {
	if p == PartyBuyer {
		return PartySeller
	}
	return PartyBuyer
}

// AgreementState is the observable state of a two-party agreement.
type AgreementState string

const (
	AgreementIdle       AgreementState = "IDLE"
	AgreementOneAgreed  AgreementState = "ONE_AGREED"
	AgreementRejected   AgreementState = "REJECTED"
	AgreementBothAgreed AgreementState = "BOTH_AGREED"
)

// Rejection records a counterparty's refusal of an open proposal.
type Rejection struct {
	By Party     `json:"by"`
	At time.Time `json:"at"`
}

// Agreement is the reusable two-party confirm/reject protocol. The escrow
// group holds two independent instances: one governing completion and one
// governing cancellation.
//
// Invariants:
//   - Initiator is set only while exactly one flag is true and no rejection
//     is pending.
//   - Both flags true always resolves as BOTH_AGREED, clearing initiator and
//     rejection; the state never sticks between.
type Agreement struct {
	BuyerAgreed  bool       `json:"buyer_agreed"`
	SellerAgreed bool       `json:"seller_agreed"`
	Initiator    Party      `json:"initiator,omitempty"`
	Rejection    *Rejection `json:"rejection,omitempty"`
}

// State derives the current agreement state from the stored fields.
func (a *Agreement) State() AgreementState {
	switch {
	case a.BuyerAgreed && a.SellerAgreed:
		return AgreementBothAgreed
	case a.Rejection != nil:
		return AgreementRejected
	case a.BuyerAgreed || a.SellerAgreed:
		return AgreementOneAgreed
	default:
		return AgreementIdle
	}
}

func (a *Agreement) agreed(p Party) bool {
	if p == PartyBuyer {
		return a.BuyerAgreed
	}
	return a.SellerAgreed
}

func (a *Agreement) setAgreed(p Party) {
	if p == PartyBuyer {
		a.BuyerAgreed = true
	} else {
		a.SellerAgreed = true
	}
}

// Propose records that party agrees. The first flip from idle marks party as
// the initiator and clears any earlier rejection; the counterparty's flip
// resolves the agreement as BOTH_AGREED. Re-proposing while already agreed is
// a no-op.
func (a *Agreement) Propose(p Party) AgreementState {
	if a.agreed(p) {
		return a.State()
	}

	a.setAgreed(p)
	a.Rejection = nil

	if a.agreed(p.Other()) {
		a.Initiator = ""
		return AgreementBothAgreed
	}

	a.Initiator = p
	return AgreementOneAgreed
}

// Reject refuses the counterparty's open proposal, resetting both flags and
// recording who rejected. Only the non-initiating party may reject.
func (a *Agreement) Reject(p Party) error {
	if a.State() != AgreementOneAgreed || a.Initiator == p {
		return ErrInvalidTransition
	}

	a.BuyerAgreed = false
	a.SellerAgreed = false
	a.Initiator = ""
	a.Rejection = &Rejection{By: p, At: time.Now()}
	return nil
}

// Acknowledge clears a pending rejection after the original initiator has
// been shown it, returning the agreement to idle. The rejecting party cannot
// acknowledge its own rejection.
func (a *Agreement) Acknowledge(p Party) error {
	if a.Rejection == nil || a.Rejection.By == p {
		return ErrInvalidTransition
	}

	a.Rejection = nil
	return nil
}

// Reset returns the agreement to idle, discarding flags, initiator, and any
// rejection. Used when settlement fails recoverably and when a workflow
// resolves terminally.
func (a *Agreement) Reset() {
	*a = Agreement{}
}
