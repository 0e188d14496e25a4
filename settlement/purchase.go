package settlement

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Purchase.
type Status string

const (
	// StatusPending is the initial state: the buyer has started checkout
	// and the outcome of the payment is not yet known.
	StatusPending Status = "pending"

	// StatusCompleted is the terminal state for a confirmed payment.
	StatusCompleted Status = "completed"

	// StatusCancelled is the terminal state for an expired or failed payment.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Purchase is the durable record of a settlement: who bought which book
// from whom, for how much, how the amount splits between platform and
// seller, and where the purchase stands in its lifecycle.
//
// The fee split is computed once at creation and frozen into the record so
// it stays audit-stable even if the configured fee percentage changes later.
type Purchase struct {
	ID                uuid.UUID
	BookID            uuid.UUID
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	AmountCents       int64
	PlatformFeeCents  int64
	SellerAmountCents int64
	Status            Status
	CheckoutSessionID string
	PaymentIntentID   string
	Shipping          ShippingAddress
	CancelledAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPendingPurchase builds a pending Purchase for the given book and buyer,
// freezing the fee split computed from the book's price. It enforces the
// invariants that are decidable from its inputs; the duplicate-purchase
// guard needs the book's existing purchases and lives in CheckEligibility
// and, authoritatively, in the store's unique constraint.
func NewPendingPurchase(book Book, buyerID uuid.UUID, calc FeeCalculator, now time.Time) (Purchase, error) {
	if buyerID == book.SellerID {
		return Purchase{}, NewValidationError("buyer", "cannot be the seller")
	}

	if book.Sold {
		return Purchase{}, NewValidationError("book", "has already been sold")
	}

	amountCents := book.PriceCents()
	if amountCents < 0 {
		return Purchase{}, NewValidationError("amount", "must not be negative")
	}

	split := calc.Calculate(amountCents)

	purchase := Purchase{
		ID:                uuid.New(),
		BookID:            book.ID,
		BuyerID:           buyerID,
		SellerID:          book.SellerID,
		AmountCents:       amountCents,
		PlatformFeeCents:  split.PlatformFeeCents,
		SellerAmountCents: split.SellerAmountCents,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	return purchase, nil
}

// Validate checks the data-model invariants of the purchase record itself.
func (p Purchase) Validate() error {
	if !p.Status.IsValid() {
		return NewValidationError("status", "must be pending, completed or cancelled")
	}

	if p.AmountCents < 0 || p.PlatformFeeCents < 0 || p.SellerAmountCents < 0 {
		return NewValidationError("amount", "must not be negative")
	}

	if p.PlatformFeeCents+p.SellerAmountCents != p.AmountCents {
		return NewValidationError("amount", "must equal platform fee plus seller amount")
	}

	if p.BuyerID == p.SellerID {
		return NewValidationError("buyer", "cannot be the seller")
	}

	if p.Status == StatusCompleted && !p.Shipping.Complete() {
		return NewValidationError("shipping", "is required for a completed purchase")
	}

	return nil
}

// FindBlockingPurchase returns the purchase that prevents buyerID from
// purchasing again from the given rows: any pending or completed purchase
// by the same buyer. A cancelled purchase never blocks a new attempt.
func FindBlockingPurchase(purchases []Purchase, buyerID uuid.UUID) (Purchase, bool) {
	for _, purchase := range purchases {
		if purchase.BuyerID != buyerID {
			continue
		}

		if purchase.Status == StatusPending || purchase.Status == StatusCompleted {
			return purchase, true
		}
	}

	return Purchase{}, false
}
