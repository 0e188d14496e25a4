// Package settlement contains the domain core of the purchase settlement
// engine for the used-book marketplace: fee computation, purchase
// eligibility, the purchase lifecycle (pending -> completed | cancelled),
// and the payment events that drive it.
//
// Everything in this package is pure: no I/O, no clocks, no randomness
// beyond identifier generation at construction time. Persistence and the
// atomic coupling between a Purchase transition and the Book's sold flag
// live in the postgresengine subpackage; inbound payment-provider payloads
// are parsed into the PaymentEvent variants by the stripegateway package.
package settlement
