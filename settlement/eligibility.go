package settlement

import (
	"github.com/google/uuid"
)

// CheckEligibility validates a proposed purchase of book by buyerID against
// the business preconditions, given the book's current purchase rows.
// It returns nil when the purchase may proceed, an *EligibilityError with a
// distinct reason otherwise.
//
// This is the fast-path check: it must run immediately before purchase
// creation, inside the same transactional window, and the store's unique
// constraint remains the authoritative guard against the race between the
// availability read and the insert.
func CheckEligibility(book Book, purchases []Purchase, buyerID uuid.UUID) error {
	if !IsAvailable(book, purchases) {
		return NewEligibilityError(ReasonBookNotAvailable)
	}

	if buyerID == book.SellerID {
		return NewEligibilityError(ReasonSelfPurchase)
	}

	return nil
}
