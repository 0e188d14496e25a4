package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrPurchaseNotFound is returned by store lookups when no purchase matches the given key.
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrBookNotFound is returned by store lookups when no book matches the given identifier.
	ErrBookNotFound = errors.New("book not found")

	// ErrDuplicatePurchase is returned when a buyer already has a pending or completed
	// purchase for the same book. The store maps unique-constraint violations to this error.
	ErrDuplicatePurchase = errors.New("buyer has already purchased this book")

	// ErrConcurrencyConflict is returned when a guarded write affected no rows because
	// a concurrent operation changed the state first.
	ErrConcurrencyConflict = errors.New("concurrency conflict, no rows were affected")

	// ErrNilDatabaseConnection is returned when a store is constructed from a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty table name is supplied via options.
	ErrEmptyTableName = errors.New("empty table name supplied")
)

// Eligibility rejection reasons. Each reason must be surfaced to the buyer
// as a distinct message, never folded into a generic failure.
const (
	ReasonBookNotAvailable = "book_not_available"
	ReasonSelfPurchase     = "self_purchase"
)

// EligibilityError signals that a proposed purchase failed a business
// precondition the buyer can understand: the book is gone, or they are
// trying to buy their own listing. No state is mutated when it is returned.
type EligibilityError struct {
	Reason string
}

// NewEligibilityError creates an EligibilityError with the given reason.
func NewEligibilityError(reason string) *EligibilityError {
	return &EligibilityError{Reason: reason}
}

func (e *EligibilityError) Error() string {
	return "purchase not eligible: " + e.Reason
}

// Message returns the buyer-facing text for this rejection.
func (e *EligibilityError) Message() string {
	switch e.Reason {
	case ReasonBookNotAvailable:
		return "This book is no longer available for purchase."
	case ReasonSelfPurchase:
		return "You cannot purchase your own book."
	default:
		return "This purchase cannot be processed."
	}
}

// ValidationError signals a data-model invariant violation: a duplicate
// purchase, a sold book, a broken fee split, or missing shipping data on
// completion. Synchronous callers surface it; the reconciler logs it.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for the given field and reason.
func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// ProviderError wraps a failure from the external payment-session provider.
// It is retryable from the caller's point of view; the pending purchase
// created before the provider call must be rolled back when it occurs.
type ProviderError struct {
	Err error
}

// NewProviderError wraps err as a ProviderError.
func NewProviderError(err error) *ProviderError {
	return &ProviderError{Err: err}
}

func (e *ProviderError) Error() string {
	return "payment session provider failed: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
