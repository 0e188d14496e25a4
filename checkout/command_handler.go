package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/shell"
)

const defaultSessionTimeout = 10 * time.Second

// PurchaseStore defines the interface needed by the CommandHandler for settlement operations.
type PurchaseStore interface {
	GetBook(ctx context.Context, bookID uuid.UUID) (settlement.Book, error)
	CreatePending(ctx context.Context, bookID uuid.UUID, buyerID uuid.UUID) (settlement.Purchase, error)
	DeletePending(ctx context.Context, purchaseID uuid.UUID) error
	SetCheckoutSession(ctx context.Context, purchaseID uuid.UUID, sessionID string) error
}

// Result is the outcome of a successful checkout start: the pending purchase
// and where to send the buyer next.
type Result struct {
	Purchase    settlement.Purchase
	SessionID   string
	RedirectURL string
	Execution   shell.HandlerResult
}

// CommandHandler orchestrates the checkout workflow: reserve the book with a
// pending purchase, create a payment session, and bind the session to the
// purchase. If the provider call fails the pending purchase is rolled back so
// the book stays available.
type CommandHandler struct {
	store          PurchaseStore
	gateway        SessionGateway
	successURL     string
	cancelURL      string
	sessionTimeout time.Duration
	retryOptions   []shell.RetryOption
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithRetryOptions sets a custom retry configuration for the handler.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(h *CommandHandler) {
		h.retryOptions = opts
	}
}

// WithSessionTimeout bounds the payment provider call.
func WithSessionTimeout(timeout time.Duration) Option {
	return func(h *CommandHandler) {
		if timeout > 0 {
			h.sessionTimeout = timeout
		}
	}
}

// NewCommandHandler creates a new CommandHandler with optional configuration.
func NewCommandHandler(
	store PurchaseStore,
	gateway SessionGateway,
	successURL string,
	cancelURL string,
	opts ...Option,
) CommandHandler {
	handler := CommandHandler{
		store:          store,
		gateway:        gateway,
		successURL:     successURL,
		cancelURL:      cancelURL,
		sessionTimeout: defaultSessionTimeout,
	}

	for _, opt := range opts {
		opt(&handler)
	}

	return handler
}

// Handle executes the complete checkout workflow with retry logic.
// Concurrency conflicts on the purchase row are retried with exponential
// backoff; eligibility rejections, duplicates and provider failures are
// permanent and surface as their typed errors.
func (h CommandHandler) Handle(ctx context.Context, command Command) (Result, error) {
	var result Result

	retryMetrics, err := shell.RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		execResult, execErr := h.executeCommand(retryCtx, command)
		result = execResult

		return execErr
	}, h.retryOptions...)

	if err != nil {
		result.Execution = shell.NewErrorResult(retryMetrics)
		return result, err
	}

	result.Execution = shell.NewSuccessResult(retryMetrics)

	return result, nil
}

// executeCommand contains the core checkout logic that can be retried.
func (h CommandHandler) executeCommand(ctx context.Context, command Command) (Result, error) {
	book, err := h.store.GetBook(ctx, command.BookID)
	if err != nil {
		return Result{}, err
	}

	purchase, err := h.store.CreatePending(ctx, command.BookID, command.BuyerID)
	if err != nil {
		return Result{}, err
	}

	session, err := h.createSession(ctx, book, purchase)
	if err != nil {
		// Roll back the reservation so the book does not stay blocked by a
		// pending purchase that has no payment session. Best effort: the
		// purchase is still pending if this fails and can be cancelled later.
		_ = h.store.DeletePending(ctx, purchase.ID)

		return Result{}, settlement.NewProviderError(err)
	}

	if err := h.store.SetCheckoutSession(ctx, purchase.ID, session.ID); err != nil {
		return Result{}, err
	}

	purchase.CheckoutSessionID = session.ID

	return Result{
		Purchase:    purchase,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (h CommandHandler) createSession(
	ctx context.Context,
	book settlement.Book,
	purchase settlement.Purchase,
) (Session, error) {
	sessionCtx, cancel := context.WithTimeout(ctx, h.sessionTimeout)
	defer cancel()

	return h.gateway.CreateSession(sessionCtx, SessionRequest{
		AmountCents: purchase.AmountCents,
		BookTitle:   book.Title,
		BookAuthor:  book.Author,
		SuccessURL:  h.successURL,
		CancelURL:   h.cancelURL,
		PurchaseID:  purchase.ID.String(),
	})
}
