package stripegateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shelfmarket/purchase-settlement-go/reconcile"
	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

const maxPayloadBytes = 1 << 16

// Log messages used by the webhook handler.
const (
	logMsgSignatureRejected = "webhook signature rejected"
	logMsgPayloadRejected   = "webhook payload rejected"
	logMsgEventIgnored      = "webhook event type ignored"
	logMsgEventDeduplicated = "webhook event already processed"
	logMsgDedupUnavailable  = "webhook dedup store unavailable"
)

// DedupStore is the processed-event-id fast path consulted before the
// reconciler runs.
type DedupStore interface {
	Seen(eventID string) (bool, error)
	MarkProcessed(eventID string) error
}

// Reconciler applies a parsed payment event to purchase state.
type Reconciler interface {
	Handle(ctx context.Context, event settlement.PaymentEvent) reconcile.Outcome
}

// WebhookHandler is the HTTP boundary for provider webhooks.
//
// Response contract: a bad signature or malformed payload gets 400 so the
// provider flags the endpoint; everything else gets 200, including event
// types this system ignores and events whose reconciliation failed. The
// provider retries non-2xx responses, and retrying an event the reconciler
// already rejected cannot succeed later.
type WebhookHandler struct {
	secret           string
	tolerance        time.Duration
	reconciler       Reconciler
	dedup            DedupStore
	logger           settlement.Logger
	contextualLogger settlement.ContextualLogger
	now              func() time.Time
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithDedupStore sets the processed-event fast path.
func WithDedupStore(store DedupStore) WebhookOption {
	return func(h *WebhookHandler) {
		h.dedup = store
	}
}

// WithTolerance sets the accepted signature timestamp drift.
func WithTolerance(tolerance time.Duration) WebhookOption {
	return func(h *WebhookHandler) {
		h.tolerance = tolerance
	}
}

// WithWebhookLogger sets the logger for boundary rejections.
func WithWebhookLogger(logger settlement.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		h.logger = logger
	}
}

// WithWebhookContextualLogger sets a context-aware logger, preferred when both are set.
func WithWebhookContextualLogger(logger settlement.ContextualLogger) WebhookOption {
	return func(h *WebhookHandler) {
		h.contextualLogger = logger
	}
}

// NewWebhookHandler creates a webhook handler verifying against the given
// endpoint secret and forwarding valid events to the reconciler.
func NewWebhookHandler(secret string, reconciler Reconciler, opts ...WebhookOption) *WebhookHandler {
	handler := &WebhookHandler{
		secret:     secret,
		tolerance:  DefaultTolerance,
		reconciler: reconciler,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	if err := VerifySignature(payload, r.Header.Get(SignatureHeader), h.secret, h.tolerance, h.now()); err != nil {
		h.logWarn(r, logMsgSignatureRejected, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
		return
	}

	event, err := ParseEvent(payload)
	if err != nil {
		if errors.Is(err, ErrUnhandledEventType) {
			h.logInfo(r, logMsgEventIgnored, "event_id", event.ID)
			writeJSON(w, http.StatusOK, map[string]string{"message": "success"})
			return
		}

		h.logWarn(r, logMsgPayloadRejected, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	if h.alreadyProcessed(r, event.ID) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "success"})
		return
	}

	h.reconciler.Handle(r.Context(), event.Payment)

	h.markProcessed(r, event.ID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "success"})
}

// alreadyProcessed consults the dedup fast path. A broken dedup store never
// blocks reconciliation; the state machine absorbs redelivery on its own.
func (h *WebhookHandler) alreadyProcessed(r *http.Request, eventID string) bool {
	if h.dedup == nil || eventID == "" {
		return false
	}

	seen, err := h.dedup.Seen(eventID)
	if err != nil {
		h.logWarn(r, logMsgDedupUnavailable, "error", err.Error())
		return false
	}

	if seen {
		h.logInfo(r, logMsgEventDeduplicated, "event_id", eventID)
	}

	return seen
}

func (h *WebhookHandler) markProcessed(r *http.Request, eventID string) {
	if h.dedup == nil || eventID == "" {
		return
	}

	if err := h.dedup.MarkProcessed(eventID); err != nil {
		h.logWarn(r, logMsgDedupUnavailable, "error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoded, err := jsonAPI.Marshal(body)
	if err != nil {
		return
	}
	_, _ = w.Write(encoded)
}

func (h *WebhookHandler) logInfo(r *http.Request, msg string, args ...any) {
	if h.contextualLogger != nil {
		h.contextualLogger.InfoContext(r.Context(), msg, args...)
		return
	}
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *WebhookHandler) logWarn(r *http.Request, msg string, args ...any) {
	if h.contextualLogger != nil {
		h.contextualLogger.WarnContext(r.Context(), msg, args...)
		return
	}
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
