package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shelfmarket/purchase-settlement-go/reconcile"
	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/shell"
)

type fakeStore struct {
	purchasesBySession map[string]settlement.Purchase
	purchasesByIntent  map[string]settlement.Purchase
	lookupErr          error

	completeDecisions []settlement.TransitionDecision
	completeErrs      []error
	completeCalls     int
	completedShipping settlement.ShippingAddress

	cancelDecision settlement.TransitionDecision
	cancelErr      error
	cancelCalls    int
}

func (f *fakeStore) FindByCheckoutSessionID(_ context.Context, sessionID string) (settlement.Purchase, error) {
	if f.lookupErr != nil {
		return settlement.Purchase{}, f.lookupErr
	}
	purchase, ok := f.purchasesBySession[sessionID]
	if !ok {
		return settlement.Purchase{}, settlement.ErrPurchaseNotFound
	}
	return purchase, nil
}

func (f *fakeStore) FindByPaymentIntentID(_ context.Context, paymentIntentID string) (settlement.Purchase, error) {
	if f.lookupErr != nil {
		return settlement.Purchase{}, f.lookupErr
	}
	purchase, ok := f.purchasesByIntent[paymentIntentID]
	if !ok {
		return settlement.Purchase{}, settlement.ErrPurchaseNotFound
	}
	return purchase, nil
}

func (f *fakeStore) Complete(
	_ context.Context,
	_ uuid.UUID,
	_ string,
	shipping settlement.ShippingAddress,
) (settlement.TransitionDecision, error) {
	call := f.completeCalls
	f.completeCalls++
	f.completedShipping = shipping

	var decision settlement.TransitionDecision
	if call < len(f.completeDecisions) {
		decision = f.completeDecisions[call]
	}

	var err error
	if call < len(f.completeErrs) {
		err = f.completeErrs[call]
	}

	if decision.Outcome == "" && err == nil {
		return decision, errors.New("unscripted complete call")
	}

	return decision, err
}

func (f *fakeStore) Cancel(_ context.Context, _ uuid.UUID) (settlement.TransitionDecision, error) {
	f.cancelCalls++
	return f.cancelDecision, f.cancelErr
}

func givenPendingPurchase(t *testing.T) settlement.Purchase {
	t.Helper()

	return settlement.Purchase{
		ID:                uuid.New(),
		BookID:            uuid.New(),
		BuyerID:           uuid.New(),
		SellerID:          uuid.New(),
		AmountCents:       1299,
		PlatformFeeCents:  130,
		SellerAmountCents: 1169,
		Status:            settlement.StatusPending,
		CheckoutSessionID: "cs_test_123",
	}
}

func givenShipping() settlement.ShippingAddress {
	return settlement.ShippingAddress{
		Name:       "Alex Reader",
		Line1:      "1 Book Lane",
		City:       "Booktown",
		PostalCode: "12345",
		Country:    "US",
	}
}

func Test_Handler_Handle_CheckoutCompleted_Applies(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	completed := purchase
	completed.Status = settlement.StatusCompleted
	store := &fakeStore{
		purchasesBySession: map[string]settlement.Purchase{"cs_test_123": purchase},
		completeDecisions:  []settlement.TransitionDecision{settlement.AppliedTransition(completed, true, false)},
	}
	handler := reconcile.NewHandler(store)
	event := settlement.CheckoutCompleted{
		SessionID:       "cs_test_123",
		PaymentIntentID: "pi_test_456",
		Shipping:        givenShipping(),
	}

	// act
	outcome := handler.Handle(context.Background(), event)

	// assert
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	assert.Equal(t, 1, store.completeCalls)
	assert.Equal(t, givenShipping(), store.completedShipping)
	assert.Zero(t, store.cancelCalls)
}

func Test_Handler_Handle_CheckoutCompleted_Idempotent(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	purchase.Status = settlement.StatusCompleted
	store := &fakeStore{
		purchasesBySession: map[string]settlement.Purchase{"cs_test_123": purchase},
		completeDecisions:  []settlement.TransitionDecision{settlement.IdempotentTransition(purchase)},
	}
	handler := reconcile.NewHandler(store)

	// act
	outcome := handler.Handle(context.Background(), settlement.CheckoutCompleted{
		SessionID:       "cs_test_123",
		PaymentIntentID: "pi_test_456",
		Shipping:        givenShipping(),
	})

	// assert
	assert.Equal(t, reconcile.OutcomeIdempotent, outcome)
}

func Test_Handler_Handle_CheckoutExpired_Cancels(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	cancelled := purchase
	cancelled.Status = settlement.StatusCancelled
	store := &fakeStore{
		purchasesBySession: map[string]settlement.Purchase{"cs_test_123": purchase},
		cancelDecision:     settlement.AppliedTransition(cancelled, false, true),
	}
	handler := reconcile.NewHandler(store)

	// act
	outcome := handler.Handle(context.Background(), settlement.CheckoutExpired{SessionID: "cs_test_123"})

	// assert
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	assert.Equal(t, 1, store.cancelCalls)
	assert.Zero(t, store.completeCalls)
}

func Test_Handler_Handle_PaymentFailed_CancelsByPaymentIntent(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	purchase.PaymentIntentID = "pi_test_456"
	cancelled := purchase
	cancelled.Status = settlement.StatusCancelled
	store := &fakeStore{
		purchasesByIntent: map[string]settlement.Purchase{"pi_test_456": purchase},
		cancelDecision:    settlement.AppliedTransition(cancelled, false, true),
	}
	handler := reconcile.NewHandler(store)

	// act
	outcome := handler.Handle(context.Background(), settlement.PaymentFailed{PaymentIntentID: "pi_test_456"})

	// assert
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	assert.Equal(t, 1, store.cancelCalls)
}

func Test_Handler_Handle_UnknownSession_IsMissedNotFailed(t *testing.T) {
	// arrange
	store := &fakeStore{purchasesBySession: map[string]settlement.Purchase{}}
	handler := reconcile.NewHandler(store)

	// act
	outcome := handler.Handle(context.Background(), settlement.CheckoutExpired{SessionID: "cs_unknown"})

	// assert
	assert.Equal(t, reconcile.OutcomeMissed, outcome)
	assert.Zero(t, store.cancelCalls)
}

func Test_Handler_Handle_RejectedTransition_IsFailed(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	purchase.Status = settlement.StatusCancelled
	rejection := settlement.NewValidationError("status", "cancelled purchase cannot be completed")
	store := &fakeStore{
		purchasesBySession: map[string]settlement.Purchase{"cs_test_123": purchase},
		completeDecisions:  []settlement.TransitionDecision{settlement.RejectedTransition(rejection)},
		completeErrs:       []error{rejection},
	}
	handler := reconcile.NewHandler(store)

	// act
	outcome := handler.Handle(context.Background(), settlement.CheckoutCompleted{
		SessionID:       "cs_test_123",
		PaymentIntentID: "pi_test_456",
		Shipping:        givenShipping(),
	})

	// assert
	assert.Equal(t, reconcile.OutcomeFailed, outcome)
}

func Test_Handler_Handle_StoreFailure_IsFailed(t *testing.T) {
	// arrange
	store := &fakeStore{lookupErr: errors.New("connection refused")}
	handler := reconcile.NewHandler(store)

	// act
	outcome := handler.Handle(context.Background(), settlement.CheckoutExpired{SessionID: "cs_test_123"})

	// assert
	assert.Equal(t, reconcile.OutcomeFailed, outcome)
}

func Test_Handler_Handle_RetriesConcurrencyConflict(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	completed := purchase
	completed.Status = settlement.StatusCompleted
	store := &fakeStore{
		purchasesBySession: map[string]settlement.Purchase{"cs_test_123": purchase},
		completeErrs:       []error{settlement.ErrConcurrencyConflict, nil},
		completeDecisions: []settlement.TransitionDecision{
			{},
			settlement.AppliedTransition(completed, true, false),
		},
	}
	handler := reconcile.NewHandler(store,
		reconcile.WithRetryOptions(shell.WithMaxAttempts(3), shell.WithBaseDelay(1*time.Millisecond)),
	)

	// act
	outcome := handler.Handle(context.Background(), settlement.CheckoutCompleted{
		SessionID:       "cs_test_123",
		PaymentIntentID: "pi_test_456",
		Shipping:        givenShipping(),
	})

	// assert
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	assert.Equal(t, 2, store.completeCalls)
}
