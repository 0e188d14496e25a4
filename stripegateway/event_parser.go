package stripegateway

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Webhook event types this system acts on. Everything else is acknowledged
// and dropped.
const (
	eventTypeCheckoutCompleted = "checkout.session.completed"
	eventTypeCheckoutExpired   = "checkout.session.expired"
	eventTypePaymentFailed     = "payment_intent.payment_failed"
)

// ErrUnhandledEventType is returned by ParseEvent for well-formed events this
// system does not act on. Callers acknowledge them without processing.
var ErrUnhandledEventType = errors.New("unhandled event type")

// Event is a parsed webhook delivery: the provider's event id for
// deduplication plus the domain event for the reconciler.
type Event struct {
	ID      string
	Payment settlement.PaymentEvent
}

// wire shapes for the provider's webhook envelope.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object webhookObject `json:"object"`
	} `json:"data"`
}

type webhookObject struct {
	ID                   string `json:"id"`
	PaymentIntent        string `json:"payment_intent"`
	CollectedInformation *struct {
		ShippingDetails *struct {
			Name    string `json:"name"`
			Address struct {
				Line1      string `json:"line1"`
				Line2      string `json:"line2"`
				City       string `json:"city"`
				State      string `json:"state"`
				PostalCode string `json:"postal_code"`
				Country    string `json:"country"`
			} `json:"address"`
		} `json:"shipping_details"`
	} `json:"collected_information"`
}

// ParseEvent decodes a webhook payload into its domain event.
//
// Shipping details come nested under collected_information, not at the top
// level of the session object. A completed session without shipping details
// still parses; the state machine rejects the completion later so the gap is
// visible in purchase state instead of silently dropped here.
func ParseEvent(payload []byte) (Event, error) {
	var envelope webhookEnvelope
	if err := jsonAPI.Unmarshal(payload, &envelope); err != nil {
		return Event{}, fmt.Errorf("malformed webhook payload: %w", err)
	}

	if envelope.Type == "" {
		return Event{}, fmt.Errorf("malformed webhook payload: missing event type")
	}

	switch envelope.Type {
	case eventTypeCheckoutCompleted:
		return Event{
			ID: envelope.ID,
			Payment: settlement.CheckoutCompleted{
				SessionID:       envelope.Data.Object.ID,
				PaymentIntentID: envelope.Data.Object.PaymentIntent,
				Shipping:        shippingFrom(envelope.Data.Object),
			},
		}, nil

	case eventTypeCheckoutExpired:
		return Event{
			ID:      envelope.ID,
			Payment: settlement.CheckoutExpired{SessionID: envelope.Data.Object.ID},
		}, nil

	case eventTypePaymentFailed:
		return Event{
			ID:      envelope.ID,
			Payment: settlement.PaymentFailed{PaymentIntentID: envelope.Data.Object.ID},
		}, nil

	default:
		return Event{ID: envelope.ID}, ErrUnhandledEventType
	}
}

func shippingFrom(object webhookObject) settlement.ShippingAddress {
	if object.CollectedInformation == nil || object.CollectedInformation.ShippingDetails == nil {
		return settlement.ShippingAddress{}
	}

	details := object.CollectedInformation.ShippingDetails

	return settlement.ShippingAddress{
		Name:       details.Name,
		Line1:      details.Address.Line1,
		Line2:      details.Address.Line2,
		City:       details.Address.City,
		State:      details.Address.State,
		PostalCode: details.Address.PostalCode,
		Country:    details.Address.Country,
	}
}
