package checkout

import (
	"context"
)

// SessionRequest carries everything the payment provider needs to create a
// hosted checkout session for a pending purchase.
type SessionRequest struct {
	AmountCents int64
	BookTitle   string
	BookAuthor  string
	SuccessURL  string
	CancelURL   string
	PurchaseID  string
}

// Session is the provider's handle for a created checkout session.
// The buyer is redirected to RedirectURL to complete payment.
type Session struct {
	ID          string
	RedirectURL string
}

// SessionGateway abstracts the payment provider's session API so the handler
// can be tested without network access.
type SessionGateway interface {
	CreateSession(ctx context.Context, request SessionRequest) (Session, error)
}
