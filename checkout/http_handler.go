package checkout

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const maxRequestBytes = 1 << 12

// purchaseRequest is the JSON body for starting a checkout.
type purchaseRequest struct {
	BookID  string `json:"book_id"`
	BuyerID string `json:"buyer_id"`
}

// purchaseResponse is returned when a checkout session was created.
type purchaseResponse struct {
	PurchaseID  string `json:"purchase_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPHandler exposes the checkout command over HTTP.
//
// Error mapping: eligibility rejections and duplicates are client errors with
// the buyer-facing message; a provider failure is a bad gateway since the
// purchase was rolled back and the buyer can retry.
type HTTPHandler struct {
	handler CommandHandler
}

// NewHTTPHandler wraps a CommandHandler for HTTP use.
func NewHTTPHandler(handler CommandHandler) *HTTPHandler {
	return &HTTPHandler{handler: handler}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var request purchaseRequest
	if err := jsonAPI.Unmarshal(body, &request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	bookID, err := uuid.Parse(request.BookID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid book_id"})
		return
	}

	buyerID, err := uuid.Parse(request.BuyerID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid buyer_id"})
		return
	}

	result, err := h.handler.Handle(r.Context(), BuildCommand(bookID, buyerID))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, purchaseResponse{
		PurchaseID:  result.Purchase.ID.String(),
		SessionID:   result.SessionID,
		RedirectURL: result.RedirectURL,
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var eligibilityErr *settlement.EligibilityError
	if errors.As(err, &eligibilityErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: eligibilityErr.Message()})
		return
	}

	switch {
	case errors.Is(err, settlement.ErrBookNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "book not found"})

	case errors.Is(err, settlement.ErrDuplicatePurchase):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "you already have a purchase for this book"})

	default:
		var providerErr *settlement.ProviderError
		if errors.As(err, &providerErr) {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment provider unavailable, please try again"})
			return
		}

		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoded, err := jsonAPI.Marshal(body)
	if err != nil {
		return
	}
	_, _ = w.Write(encoded)
}
