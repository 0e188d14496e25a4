package settlement

import (
	"errors"
	"math"
)

// ErrInvalidFeePercentage is returned when a FeeCalculator is constructed
// with a percentage outside the range [0, 100].
var ErrInvalidFeePercentage = errors.New("fee percentage must be between 0 and 100")

// FeeSplit is the division of a gross sale amount into the platform's fee
// and the seller's proceeds. PlatformFeeCents + SellerAmountCents always
// equals the gross amount exactly.
type FeeSplit struct {
	PlatformFeeCents  int64
	SellerAmountCents int64
}

// FeeCalculator computes the platform/seller fee split for a gross amount.
// The percentage is injected at construction so tests can vary it without
// touching shared state; it is never taken from per-call input.
type FeeCalculator struct {
	feePercentage float64
}

// NewFeeCalculator creates a FeeCalculator with the given platform fee percentage.
func NewFeeCalculator(feePercentage float64) (FeeCalculator, error) {
	if feePercentage < 0 || feePercentage > 100 {
		return FeeCalculator{}, ErrInvalidFeePercentage
	}

	return FeeCalculator{feePercentage: feePercentage}, nil
}

// Calculate splits amountCents into platform fee and seller proceeds.
// The platform fee is rounded half-up from the fractional computation and
// the seller amount is the remainder, so the sum invariant holds exactly
// without independent rounding of both halves.
func (c FeeCalculator) Calculate(amountCents int64) FeeSplit {
	platformFeeCents := int64(math.Round(float64(amountCents) * c.feePercentage / 100.0))

	return FeeSplit{
		PlatformFeeCents:  platformFeeCents,
		SellerAmountCents: amountCents - platformFeeCents,
	}
}

// FeePercentage returns the configured platform fee percentage.
func (c FeeCalculator) FeePercentage() float64 {
	return c.feePercentage
}
