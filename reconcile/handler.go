package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/shell"
)

// Outcome classifies what the reconciler did with a payment event.
// Events that reference no known purchase are misses, not failures: the
// provider also notifies about sessions this system never created.
type Outcome string

const (
	// OutcomeApplied means a purchase transition was committed.
	OutcomeApplied Outcome = "applied"

	// OutcomeIdempotent means the purchase was already in the target state.
	OutcomeIdempotent Outcome = "idempotent"

	// OutcomeMissed means no purchase matched the event's reference.
	OutcomeMissed Outcome = "missed"

	// OutcomeFailed means the transition was rejected or the store failed.
	// The event is still acknowledged; the purchase stays visible in its
	// current state for operator follow-up.
	OutcomeFailed Outcome = "failed"
)

// Log messages and attribute keys used by the reconciler.
const (
	logMsgEventApplied     = "payment event applied"
	logMsgEventIdempotent  = "payment event already settled"
	logMsgEventMissed      = "payment event matched no purchase"
	logMsgEventRejected    = "payment event rejected by purchase state"
	logMsgEventStoreFailed = "payment event transition failed"

	logAttrEventType       = "event_type"
	logAttrSessionID       = "checkout_session_id"
	logAttrPaymentIntentID = "payment_intent_id"
	logAttrPurchaseID      = "purchase_id"
	logAttrError           = "error"
)

// ReconcilerEventsMetric counts reconciled events by event type and outcome.
const ReconcilerEventsMetric = "settlement_reconciler_events_total"

// PurchaseStore defines the interface needed by the Handler for settlement operations.
type PurchaseStore interface {
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (settlement.Purchase, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (settlement.Purchase, error)
	Complete(ctx context.Context, purchaseID uuid.UUID, paymentIntentID string, shipping settlement.ShippingAddress) (settlement.TransitionDecision, error)
	Cancel(ctx context.Context, purchaseID uuid.UUID) (settlement.TransitionDecision, error)
}

// Handler reconciles asynchronous payment events against purchase state.
// Handle never returns an error to the intake path: once an event reaches the
// reconciler it is always acknowledged, and problems are logged instead so
// the provider does not redeliver events this system cannot act on.
type Handler struct {
	store            PurchaseStore
	logger           settlement.Logger
	contextualLogger settlement.ContextualLogger
	metrics          settlement.MetricsCollector
	retryOptions     []shell.RetryOption
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for reconciliation outcomes.
func WithLogger(logger settlement.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithContextualLogger sets a context-aware logger, preferred over Logger when both are set.
func WithContextualLogger(logger settlement.ContextualLogger) Option {
	return func(h *Handler) {
		h.contextualLogger = logger
	}
}

// WithMetrics sets the metrics collector for outcome counters.
func WithMetrics(metrics settlement.MetricsCollector) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// WithRetryOptions sets a custom retry configuration for transition conflicts.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(h *Handler) {
		h.retryOptions = opts
	}
}

// NewHandler creates a new Handler with optional configuration.
func NewHandler(store PurchaseStore, opts ...Option) *Handler {
	handler := &Handler{store: store}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

// Handle reconciles one payment event and reports what happened.
// The event set is closed; each kind resolves its purchase through the
// reference the provider echoes back (checkout session id or payment intent
// id) and applies the matching transition.
func (h *Handler) Handle(ctx context.Context, event settlement.PaymentEvent) Outcome {
	var outcome Outcome

	switch e := event.(type) {
	case settlement.CheckoutCompleted:
		outcome = h.reconcile(ctx, event,
			func(ctx context.Context) (settlement.Purchase, error) {
				return h.store.FindByCheckoutSessionID(ctx, e.SessionID)
			},
			func(ctx context.Context, purchaseID uuid.UUID) (settlement.TransitionDecision, error) {
				return h.store.Complete(ctx, purchaseID, e.PaymentIntentID, e.Shipping)
			},
		)

	case settlement.CheckoutExpired:
		outcome = h.reconcile(ctx, event,
			func(ctx context.Context) (settlement.Purchase, error) {
				return h.store.FindByCheckoutSessionID(ctx, e.SessionID)
			},
			h.store.Cancel,
		)

	case settlement.PaymentFailed:
		outcome = h.reconcile(ctx, event,
			func(ctx context.Context) (settlement.Purchase, error) {
				return h.store.FindByPaymentIntentID(ctx, e.PaymentIntentID)
			},
			h.store.Cancel,
		)

	default:
		h.logWarn(ctx, logMsgEventMissed, logAttrEventType, event.EventType())
		outcome = OutcomeMissed
	}

	h.recordOutcome(event, outcome)

	return outcome
}

type lookupFunc func(ctx context.Context) (settlement.Purchase, error)

type transitionFunc func(ctx context.Context, purchaseID uuid.UUID) (settlement.TransitionDecision, error)

func (h *Handler) reconcile(
	ctx context.Context,
	event settlement.PaymentEvent,
	lookup lookupFunc,
	transition transitionFunc,
) Outcome {
	purchase, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, settlement.ErrPurchaseNotFound) {
			h.logInfo(ctx, logMsgEventMissed, eventAttrs(event)...)
			return OutcomeMissed
		}

		h.logError(ctx, logMsgEventStoreFailed, append(eventAttrs(event), logAttrError, err.Error())...)

		return OutcomeFailed
	}

	var decision settlement.TransitionDecision

	_, err = shell.RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		var transitionErr error
		decision, transitionErr = transition(retryCtx, purchase.ID)

		return transitionErr
	}, h.retryOptions...)

	attrs := append(eventAttrs(event), logAttrPurchaseID, purchase.ID.String())

	switch {
	case err != nil && decision.HasError() != nil:
		h.logWarn(ctx, logMsgEventRejected, append(attrs, logAttrError, err.Error())...)
		return OutcomeFailed

	case err != nil:
		h.logError(ctx, logMsgEventStoreFailed, append(attrs, logAttrError, err.Error())...)
		return OutcomeFailed

	case decision.IsIdempotent():
		h.logInfo(ctx, logMsgEventIdempotent, attrs...)
		return OutcomeIdempotent

	default:
		h.logInfo(ctx, logMsgEventApplied, attrs...)
		return OutcomeApplied
	}
}

func eventAttrs(event settlement.PaymentEvent) []any {
	attrs := []any{logAttrEventType, event.EventType()}

	switch e := event.(type) {
	case settlement.CheckoutCompleted:
		attrs = append(attrs, logAttrSessionID, e.SessionID, logAttrPaymentIntentID, e.PaymentIntentID)
	case settlement.CheckoutExpired:
		attrs = append(attrs, logAttrSessionID, e.SessionID)
	case settlement.PaymentFailed:
		attrs = append(attrs, logAttrPaymentIntentID, e.PaymentIntentID)
	}

	return attrs
}

func (h *Handler) recordOutcome(event settlement.PaymentEvent, outcome Outcome) {
	if h.metrics == nil {
		return
	}

	h.metrics.IncrementCounter(ReconcilerEventsMetric, map[string]string{
		"event_type": event.EventType(),
		"outcome":    string(outcome),
	})
}

func (h *Handler) logInfo(ctx context.Context, msg string, args ...any) {
	if h.contextualLogger != nil {
		h.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *Handler) logWarn(ctx context.Context, msg string, args ...any) {
	if h.contextualLogger != nil {
		h.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}

func (h *Handler) logError(ctx context.Context, msg string, args ...any) {
	if h.contextualLogger != nil {
		h.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}
	if h.logger != nil {
		h.logger.Error(msg, args...)
	}
}
