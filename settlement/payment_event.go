package settlement

// Event type identifiers for the closed set of payment events.
const (
	CheckoutCompletedEventType = "CheckoutCompleted"
	CheckoutExpiredEventType   = "CheckoutExpired"
	PaymentFailedEventType     = "PaymentFailed"
)

// PaymentEvent is a notification from the payment-session provider, parsed
// at the boundary into one of a closed set of variants so the reconciler's
// dispatch is an exhaustive type switch rather than string matching.
type PaymentEvent interface {
	// EventType returns the identifier for this event variant.
	EventType() string
}

// CheckoutCompleted reports that the buyer finished the hosted checkout and
// the payment was confirmed. It carries the provider's payment-intent id
// and the shipping address collected during checkout.
type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	Shipping        ShippingAddress
}

// EventType returns the event type identifier.
func (e CheckoutCompleted) EventType() string {
	return CheckoutCompletedEventType
}

// CheckoutExpired reports that the hosted checkout session expired before
// the buyer paid.
type CheckoutExpired struct {
	SessionID string
}

// EventType returns the event type identifier.
func (e CheckoutExpired) EventType() string {
	return CheckoutExpiredEventType
}

// PaymentFailed reports that a payment attempt failed after the checkout
// session produced a payment intent.
type PaymentFailed struct {
	PaymentIntentID string
}

// EventType returns the event type identifier.
func (e PaymentFailed) EventType() string {
	return PaymentFailedEventType
}
