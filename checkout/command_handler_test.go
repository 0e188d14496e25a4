package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmarket/purchase-settlement-go/checkout"
	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/shell"
)

type fakeStore struct {
	book     settlement.Book
	bookErr  error
	purchase settlement.Purchase

	createErrs []error
	createCall int

	setSessionErr error

	deletedPending []uuid.UUID
	sessionSet     map[uuid.UUID]string
}

func (f *fakeStore) GetBook(_ context.Context, _ uuid.UUID) (settlement.Book, error) {
	if f.bookErr != nil {
		return settlement.Book{}, f.bookErr
	}
	return f.book, nil
}

func (f *fakeStore) CreatePending(_ context.Context, _ uuid.UUID, _ uuid.UUID) (settlement.Purchase, error) {
	call := f.createCall
	f.createCall++

	if call < len(f.createErrs) && f.createErrs[call] != nil {
		return settlement.Purchase{}, f.createErrs[call]
	}

	return f.purchase, nil
}

func (f *fakeStore) DeletePending(_ context.Context, purchaseID uuid.UUID) error {
	f.deletedPending = append(f.deletedPending, purchaseID)
	return nil
}

func (f *fakeStore) SetCheckoutSession(_ context.Context, purchaseID uuid.UUID, sessionID string) error {
	if f.setSessionErr != nil {
		return f.setSessionErr
	}
	if f.sessionSet == nil {
		f.sessionSet = make(map[uuid.UUID]string)
	}
	f.sessionSet[purchaseID] = sessionID

	return nil
}

type fakeGateway struct {
	session  checkout.Session
	err      error
	requests []checkout.SessionRequest
}

func (f *fakeGateway) CreateSession(_ context.Context, request checkout.SessionRequest) (checkout.Session, error) {
	f.requests = append(f.requests, request)
	if f.err != nil {
		return checkout.Session{}, f.err
	}
	return f.session, nil
}

func givenStoreAndBook(t *testing.T) (*fakeStore, settlement.Book, settlement.Purchase) {
	t.Helper()

	sellerID := uuid.New()
	buyerID := uuid.New()

	book := settlement.Book{
		ID:       uuid.New(),
		SellerID: sellerID,
		Title:    "The Go Programming Language",
		Author:   "Donovan & Kernighan",
		Price:    decimal.NewFromFloat(12.99),
	}

	purchase := settlement.Purchase{
		ID:                uuid.New(),
		BookID:            book.ID,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		AmountCents:       1299,
		PlatformFeeCents:  130,
		SellerAmountCents: 1169,
		Status:            settlement.StatusPending,
	}

	return &fakeStore{book: book, purchase: purchase}, book, purchase
}

func Test_CommandHandler_Handle_CreatesSessionAndBindsIt(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	gateway := &fakeGateway{session: checkout.Session{ID: "cs_test_123", RedirectURL: "https://pay.example/cs_test_123"}}
	handler := checkout.NewCommandHandler(store, gateway, "https://shop.example/success", "https://shop.example/cancel")
	command := checkout.BuildCommand(book.ID, purchase.BuyerID)

	// act
	result, err := handler.Handle(context.Background(), command)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", result.SessionID)
	assert.Equal(t, "https://pay.example/cs_test_123", result.RedirectURL)
	assert.Equal(t, "cs_test_123", result.Purchase.CheckoutSessionID)
	assert.Equal(t, "cs_test_123", store.sessionSet[purchase.ID])
	assert.Empty(t, store.deletedPending)

	require.Len(t, gateway.requests, 1)
	request := gateway.requests[0]
	assert.Equal(t, int64(1299), request.AmountCents)
	assert.Equal(t, book.Title, request.BookTitle)
	assert.Equal(t, book.Author, request.BookAuthor)
	assert.Equal(t, "https://shop.example/success", request.SuccessURL)
	assert.Equal(t, "https://shop.example/cancel", request.CancelURL)
	assert.Equal(t, purchase.ID.String(), request.PurchaseID)
}

func Test_CommandHandler_Handle_EligibilityRejectionSkipsGateway(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	store.createErrs = []error{settlement.NewEligibilityError(settlement.ReasonSelfPurchase)}
	gateway := &fakeGateway{}
	handler := checkout.NewCommandHandler(store, gateway, "https://shop.example/success", "https://shop.example/cancel")

	// act
	_, err := handler.Handle(context.Background(), checkout.BuildCommand(book.ID, purchase.BuyerID))

	// assert
	var eligibilityErr *settlement.EligibilityError
	require.ErrorAs(t, err, &eligibilityErr)
	assert.Equal(t, settlement.ReasonSelfPurchase, eligibilityErr.Reason)
	assert.Empty(t, gateway.requests)
	assert.Empty(t, store.deletedPending)
}

func Test_CommandHandler_Handle_DuplicatePurchaseSurfaces(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	store.createErrs = []error{settlement.ErrDuplicatePurchase}
	gateway := &fakeGateway{}
	handler := checkout.NewCommandHandler(store, gateway, "https://shop.example/success", "https://shop.example/cancel")

	// act
	_, err := handler.Handle(context.Background(), checkout.BuildCommand(book.ID, purchase.BuyerID))

	// assert
	assert.ErrorIs(t, err, settlement.ErrDuplicatePurchase)
	assert.Empty(t, gateway.requests)
}

func Test_CommandHandler_Handle_ProviderFailureRollsBackPendingPurchase(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	gateway := &fakeGateway{err: errors.New("provider unreachable")}
	handler := checkout.NewCommandHandler(store, gateway, "https://shop.example/success", "https://shop.example/cancel")

	// act
	_, err := handler.Handle(context.Background(), checkout.BuildCommand(book.ID, purchase.BuyerID))

	// assert
	var providerErr *settlement.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, []uuid.UUID{purchase.ID}, store.deletedPending)
	assert.Empty(t, store.sessionSet)
}

func Test_CommandHandler_Handle_RetriesConcurrencyConflict(t *testing.T) {
	// arrange
	store, book, purchase := givenStoreAndBook(t)
	store.createErrs = []error{settlement.ErrConcurrencyConflict, nil}
	gateway := &fakeGateway{session: checkout.Session{ID: "cs_retry", RedirectURL: "https://pay.example/cs_retry"}}
	handler := checkout.NewCommandHandler(
		store,
		gateway,
		"https://shop.example/success",
		"https://shop.example/cancel",
		checkout.WithRetryOptions(shell.WithMaxAttempts(3), shell.WithBaseDelay(1*time.Millisecond)),
	)

	// act
	result, err := handler.Handle(context.Background(), checkout.BuildCommand(book.ID, purchase.BuyerID))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, store.createCall)
	assert.Equal(t, 2, result.Execution.RetryAttempts)
	assert.Equal(t, "cs_retry", result.SessionID)
}

func Test_CommandHandler_Handle_UnknownBookFailsBeforeReserving(t *testing.T) {
	// arrange
	store, _, purchase := givenStoreAndBook(t)
	store.bookErr = settlement.ErrBookNotFound
	gateway := &fakeGateway{}
	handler := checkout.NewCommandHandler(store, gateway, "https://shop.example/success", "https://shop.example/cancel")

	// act
	_, err := handler.Handle(context.Background(), checkout.BuildCommand(uuid.New(), purchase.BuyerID))

	// assert
	assert.ErrorIs(t, err, settlement.ErrBookNotFound)
	assert.Zero(t, store.createCall)
	assert.Empty(t, gateway.requests)
}
