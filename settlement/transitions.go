package settlement

import (
	"time"
)

const (
	appliedOutcome    = "applied"
	idempotentOutcome = "idempotent"
	rejectedOutcome   = "rejected"
)

// TransitionDecision is the outcome of deciding a purchase state transition.
// It carries the updated purchase plus the book-flag side effect the store
// must commit in the same atomic unit as the purchase-row update.
//
// TransitionDecision should only be constructed via AppliedTransition,
// IdempotentTransition, or RejectedTransition.
type TransitionDecision struct {
	Outcome  string
	Purchase Purchase

	// MarkBookSold instructs the store to set the book's sold flag.
	MarkBookSold bool

	// RestoreBookAvailability instructs the store to clear the book's sold
	// flag. It is withheld when another completed purchase owns the book.
	RestoreBookAvailability bool

	Err error
}

// AppliedTransition creates a decision that commits the updated purchase
// together with the given book side effects.
func AppliedTransition(purchase Purchase, markBookSold bool, restoreBookAvailability bool) TransitionDecision {
	return TransitionDecision{
		Outcome:                 appliedOutcome,
		Purchase:                purchase,
		MarkBookSold:            markBookSold,
		RestoreBookAvailability: restoreBookAvailability,
	}
}

// IdempotentTransition creates a decision indicating the purchase is already
// in the target state: nothing is written and the operation succeeds.
func IdempotentTransition(purchase Purchase) TransitionDecision {
	return TransitionDecision{
		Outcome:  idempotentOutcome,
		Purchase: purchase,
	}
}

// RejectedTransition creates a decision indicating the transition violates
// an invariant; nothing is written and err is surfaced to the caller.
func RejectedTransition(err error) TransitionDecision {
	return TransitionDecision{
		Outcome: rejectedOutcome,
		Err:     err,
	}
}

// IsApplied reports whether the decision carries state to commit.
func (d TransitionDecision) IsApplied() bool {
	return d.Outcome == appliedOutcome
}

// IsIdempotent reports whether the decision is a no-op success.
func (d TransitionDecision) IsIdempotent() bool {
	return d.Outcome == idempotentOutcome
}

// HasError returns the rejection error, or nil for applied and idempotent decisions.
func (d TransitionDecision) HasError() error {
	if d.Outcome == rejectedOutcome {
		return d.Err
	}

	return nil
}

// DecideComplete decides the pending -> completed transition for a confirmed
// payment. Rules:
//
//	GIVEN: a purchase and the payment intent + shipping address from the event
//	WHEN: the purchase is pending and the shipping address is complete
//	THEN: the purchase becomes completed and the book must be marked sold
//	ERROR: shipping incomplete -> the purchase stays pending (visibly stuck,
//	       for operator follow-up, rather than completed without an address)
//	ERROR: purchase already cancelled -> terminal states never re-transition
//	IDEMPOTENCY: already completed -> no-op success, the book is not re-marked
func DecideComplete(purchase Purchase, paymentIntentID string, shipping ShippingAddress, now time.Time) TransitionDecision {
	if purchase.Status == StatusCompleted {
		return IdempotentTransition(purchase)
	}

	if purchase.Status == StatusCancelled {
		return RejectedTransition(NewValidationError("status", "cancelled purchase cannot be completed"))
	}

	if !shipping.Complete() {
		return RejectedTransition(NewValidationError("shipping", "is required for a completed purchase"))
	}

	updated := purchase
	updated.Status = StatusCompleted
	updated.PaymentIntentID = paymentIntentID
	updated.Shipping = shipping
	updated.UpdatedAt = now

	return AppliedTransition(updated, true, false)
}

// DecideCancel decides the pending -> cancelled transition for an expired or
// failed payment. Rules:
//
//	GIVEN: a purchase and whether another completed purchase owns its book
//	WHEN: the purchase is pending
//	THEN: the purchase becomes cancelled with CancelledAt set, and the book's
//	      availability is restored unless the book was sold through a
//	      different completed purchase (a stale expiry event for an old
//	      session must not clobber a legitimate sale)
//	ERROR: purchase already completed -> terminal states never re-transition
//	IDEMPOTENCY: already cancelled -> no-op success
func DecideCancel(purchase Purchase, bookSoldElsewhere bool, now time.Time) TransitionDecision {
	if purchase.Status == StatusCancelled {
		return IdempotentTransition(purchase)
	}

	if purchase.Status == StatusCompleted {
		return RejectedTransition(NewValidationError("status", "completed purchase cannot be cancelled"))
	}

	updated := purchase
	updated.Status = StatusCancelled
	updated.CancelledAt = now
	updated.UpdatedAt = now

	return AppliedTransition(updated, false, !bookSoldElsewhere)
}
