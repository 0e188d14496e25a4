package checkout_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfmarket/purchase-settlement-go/checkout"
	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

func givenHTTPHandler(store *fakeStore, gateway *fakeGateway) *checkout.HTTPHandler {
	handler := checkout.NewCommandHandler(store, gateway, "https://shop.example/success", "https://shop.example/cancel")
	return checkout.NewHTTPHandler(handler)
}

func postPurchase(handler *checkout.HTTPHandler, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(body))
	handler.ServeHTTP(recorder, req)

	return recorder
}

func Test_HTTPHandler_CreatesPurchase(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	gateway := &fakeGateway{session: checkout.Session{ID: "cs_test_123", RedirectURL: "https://pay.example/cs_test_123"}}
	handler := givenHTTPHandler(store, gateway)

	// act
	recorder := postPurchase(handler, `{"book_id": "`+book.ID.String()+`", "buyer_id": "`+purchase.BuyerID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.JSONEq(t,
		`{"purchase_id": "`+purchase.ID.String()+`", "session_id": "cs_test_123", "redirect_url": "https://pay.example/cs_test_123"}`,
		recorder.Body.String())
}

func Test_HTTPHandler_SelfPurchase_Returns422WithMessage(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	store.createErrs = []error{settlement.NewEligibilityError(settlement.ReasonSelfPurchase)}
	handler := givenHTTPHandler(store, &fakeGateway{})

	// act
	recorder := postPurchase(handler, `{"book_id": "`+book.ID.String()+`", "buyer_id": "`+purchase.BuyerID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.JSONEq(t, `{"error": "You cannot purchase your own book."}`, recorder.Body.String())
}

func Test_HTTPHandler_UnavailableBook_Returns422WithMessage(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	store.createErrs = []error{settlement.NewEligibilityError(settlement.ReasonBookNotAvailable)}
	handler := givenHTTPHandler(store, &fakeGateway{})

	// act
	recorder := postPurchase(handler, `{"book_id": "`+book.ID.String()+`", "buyer_id": "`+purchase.BuyerID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.JSONEq(t, `{"error": "This book is no longer available for purchase."}`, recorder.Body.String())
}

func Test_HTTPHandler_DuplicatePurchase_Returns409(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	store.createErrs = []error{settlement.ErrDuplicatePurchase}
	handler := givenHTTPHandler(store, &fakeGateway{})

	// act
	recorder := postPurchase(handler, `{"book_id": "`+book.ID.String()+`", "buyer_id": "`+purchase.BuyerID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func Test_HTTPHandler_ProviderFailure_Returns502(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	gateway := &fakeGateway{err: errors.New("provider unreachable")}
	handler := givenHTTPHandler(store, gateway)

	// act
	recorder := postPurchase(handler, `{"book_id": "`+book.ID.String()+`", "buyer_id": "`+purchase.BuyerID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusBadGateway, recorder.Code)
}

func Test_HTTPHandler_BadRequests(t *testing.T) {
	store, _, _ := givenStoreAndBook(t)
	handler := givenHTTPHandler(store, &fakeGateway{})

	testCases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "invalid book id", body: `{"book_id": "nope", "buyer_id": "` + "00000000-0000-0000-0000-000000000001" + `"}`},
		{name: "invalid buyer id", body: `{"book_id": "00000000-0000-0000-0000-000000000001", "buyer_id": "nope"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := postPurchase(handler, tc.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func Test_HTTPHandler_NonPostMethod_Returns405(t *testing.T) {
	// arrange
	store, _, _ := givenStoreAndBook(t)
	handler := givenHTTPHandler(store, &fakeGateway{})
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/purchases", nil)

	// act
	handler.ServeHTTP(recorder, req)

	// assert
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
