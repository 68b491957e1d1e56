// Package account models the per-user, per-currency balance ledger. Each
// account tracks an available balance (spendable) and a frozen balance
// (committed to open escrow groups). Neither balance may ever go negative.
package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInsufficientFunds   = errors.New("insufficient available funds")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrFeeExceedsFrozen    = errors.New("fee exceeds frozen amount")
	ErrInvalidCurrencyCode = errors.New("currency must be a 3-letter code")
)

// Account is one (user, currency) balance pair. Amounts are in minor units.
type Account struct {
	UserID    uuid.UUID `json:"user_id"`
	Currency  string    `json:"currency"`
	Available int64     `json:"available"`
	Frozen    int64     `json:"frozen"`
	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates an empty account for the given user and currency.
// Accounts come into existence implicitly on the first balance mutation.
func NewAccount(userID uuid.UUID, currency string) (*Account, error) {
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyCode
	}

	now := time.Now()
	return &Account{
		UserID:    userID,
		Currency:  currency,
		Available: 0,
		Frozen:    0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Credit adds amount to the available balance (confirmed deposit).
func (a *Account) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	a.Available += amount
	a.touch()
	return nil
}

// Debit removes amount from the available balance (confirmed withdrawal).
func (a *Account) Debit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Available < amount {
		return ErrInsufficientFunds
	}

	a.Available -= amount
	a.touch()
	return nil
}

// Freeze moves amount from available to frozen, committing it to an open
// escrow group. Fails with ErrInsufficientFunds if available < amount.
func (a *Account) Freeze(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Available < amount {
		return ErrInsufficientFunds
	}

	a.Available -= amount
	a.Frozen += amount
	a.touch()
	return nil
}

// Release moves amount from frozen back to available. If amount exceeds the
// frozen balance the release is clamped so the frozen balance floors at zero
// instead of going negative. Returns the amount actually released.
func (a *Account) Release(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	released := amount
	if released > a.Frozen {
		released = a.Frozen
	}

	a.Frozen -= released
	a.Available += released
	a.touch()
	return released, nil
}

// SettleDebit removes the full frozen total of a settled escrow group from
// this (buyer) account. The caller must have verified the amount against the
// group's hold; settling more than is frozen is an invariant violation.
func (a *Account) SettleDebit(totalFrozen int64) error {
	if totalFrozen <= 0 {
		return ErrInvalidAmount
	}
	if a.Frozen < totalFrozen {
		return ErrInsufficientFunds
	}

	a.Frozen -= totalFrozen
	a.touch()
	return nil
}

// SettleCredit adds the settled total minus the escrow fee to this (seller)
// account. Fails with ErrFeeExceedsFrozen if the fee is larger than the
// frozen total; nothing is mutated in that case.
func (a *Account) SettleCredit(totalFrozen, fee int64) error {
	if totalFrozen <= 0 || fee < 0 {
		return ErrInvalidAmount
	}
	if fee > totalFrozen {
		return ErrFeeExceedsFrozen
	}

	a.Available += totalFrozen - fee
	a.touch()
	return nil
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now()
	a.Version++
}
