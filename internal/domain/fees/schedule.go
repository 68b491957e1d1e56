// Package fees implements the escrow fee schedule. The fee is a pure
// function of the transaction price: fixed tiers up to a ceiling, then a
// percentage of the price. All amounts are in minor units (cents) of the
// transaction currency.
package fees

import "errors"

// ErrNonPositivePrice indicates a price of zero or less
var ErrNonPositivePrice = errors.New("price must be positive")

// PercentAboveTopTier is the fee rate applied above the highest fixed tier
const PercentAboveTopTier = 5

// tier maps an inclusive price ceiling to a flat fee, both in minor units
type tier struct {
	Ceiling int64
	Fee     int64
}

// Tiers, lowest ceiling first. Prices above the last ceiling pay
// PercentAboveTopTier percent of the price instead of a flat fee.
var tiers = []tier{
	{Ceiling: 500, Fee: 0},
	{Ceiling: 1000, Fee: 100},
	{Ceiling: 5000, Fee: 300},
	{Ceiling: 8000, Fee: 500},
	{Ceiling: 20000, Fee: 1000},
	{Ceiling: 50000, Fee: 2000},
	{Ceiling: 100000, Fee: 5000},
	{Ceiling: 200000, Fee: 10000},
}

// ComputeFee returns the escrow fee for the given price in minor units.
// The fee is snapshotted onto the escrow group at creation time; callers
// must not recompute it for an existing group.
func ComputeFee(price int64) (int64, error) {
	if price <= 0 {
		return 0, ErrNonPositivePrice
	}

	for _, t := range tiers {
		if price <= t.Ceiling {
			return t.Fee, nil
		}
	}

	return price * PercentAboveTopTier / 100, nil
}

// TierCeilings returns the inclusive upper bounds of the fixed tiers in
// ascending order. Exposed for boundary testing and fee quote displays.
func TierCeilings() []int64 {
	ceilings := make([]int64, len(tiers))
	for i, t := range tiers {
		ceilings[i] = t.Ceiling
	}
	return ceilings
}
