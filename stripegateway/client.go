package stripegateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shelfmarket/purchase-settlement-go/checkout"
)

const (
	defaultAPIBaseURL    = "https://api.stripe.com"
	defaultClientTimeout = 15 * time.Second

	sessionsPath = "/v1/checkout/sessions"

	// MetadataPurchaseIDKey is the metadata key carrying the purchase id on
	// the session, so provider dashboards and events link back to the row.
	MetadataPurchaseIDKey = "purchase_id"
)

// CheckoutClient creates hosted checkout sessions over the provider's HTTP
// API. It implements checkout.SessionGateway.
type CheckoutClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a CheckoutClient.
type ClientOption func(*CheckoutClient)

// WithBaseURL overrides the API base URL, used for tests and stripe-mock.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *CheckoutClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *CheckoutClient) {
		c.httpClient = httpClient
	}
}

// NewCheckoutClient creates a client authenticating with the given secret API key.
func NewCheckoutClient(apiKey string, opts ...ClientOption) *CheckoutClient {
	client := &CheckoutClient{
		apiKey:     apiKey,
		baseURL:    defaultAPIBaseURL,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// sessionResponse is the subset of the provider's session object this system reads.
type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateSession creates a payment-mode checkout session for a single book
// with shipping address collection enabled. The purchase id travels in the
// session metadata so webhook events can be tied back to the purchase even
// when lookups by session id miss.
func (c *CheckoutClient) CreateSession(ctx context.Context, request checkout.SessionRequest) (checkout.Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", request.SuccessURL)
	form.Set("cancel_url", request.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(request.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", request.BookTitle)
	if request.BookAuthor != "" {
		form.Set("line_items[0][price_data][product_data][description]", "by "+request.BookAuthor)
	}
	form.Set("shipping_address_collection[allowed_countries][0]", "US")
	form.Set("metadata["+MetadataPurchaseIDKey+"]", request.PurchaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionsPath, strings.NewReader(form.Encode()))
	if err != nil {
		return checkout.Session{}, fmt.Errorf("build session request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return checkout.Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return checkout.Session{}, fmt.Errorf("read session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorResponse
		if unmarshalErr := jsonAPI.Unmarshal(body, &apiErr); unmarshalErr == nil && apiErr.Error.Message != "" {
			return checkout.Session{}, fmt.Errorf("create checkout session: %s (%s)", apiErr.Error.Message, apiErr.Error.Type)
		}

		return checkout.Session{}, fmt.Errorf("create checkout session: unexpected status %d", resp.StatusCode)
	}

	var session sessionResponse
	if err := jsonAPI.Unmarshal(body, &session); err != nil {
		return checkout.Session{}, fmt.Errorf("decode session response: %w", err)
	}

	return checkout.Session{ID: session.ID, RedirectURL: session.URL}, nil
}

var _ checkout.SessionGateway = (*CheckoutClient)(nil)
