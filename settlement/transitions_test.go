package settlement_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

func givenShippingAddress() settlement.ShippingAddress {
	return settlement.ShippingAddress{
		Name:       "Jordan Baker",
		Line1:      "123 West Egg Lane",
		City:       "New York",
		State:      "NY",
		PostalCode: "10001",
		Country:    "US",
	}
}

func givenPendingPurchase(t *testing.T) settlement.Purchase {
	t.Helper()

	book := givenBook(t, uuid.New(), "12.99", false)
	calc, err := settlement.NewFeeCalculator(10)
	require.NoError(t, err)

	purchase, err := settlement.NewPendingPurchase(book, uuid.New(), calc, time.Now())
	require.NoError(t, err)

	return purchase
}

func Test_DecideComplete_AppliesFromPending(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	shipping := givenShippingAddress()
	now := time.Now()

	// act
	decision := settlement.DecideComplete(purchase, "pi_123", shipping, now)

	// assert
	assert.True(t, decision.IsApplied())
	assert.NoError(t, decision.HasError())
	assert.Equal(t, settlement.StatusCompleted, decision.Purchase.Status)
	assert.Equal(t, "pi_123", decision.Purchase.PaymentIntentID)
	assert.Equal(t, shipping, decision.Purchase.Shipping)
	assert.True(t, decision.MarkBookSold, "book must be marked sold in the same atomic unit")
	assert.False(t, decision.RestoreBookAvailability)
}

func Test_DecideComplete_IdempotentWhenAlreadyCompleted(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	first := settlement.DecideComplete(purchase, "pi_123", givenShippingAddress(), time.Now())
	require.True(t, first.IsApplied())

	// act - duplicate notification delivery
	second := settlement.DecideComplete(first.Purchase, "pi_123", givenShippingAddress(), time.Now())

	// assert
	assert.True(t, second.IsIdempotent())
	assert.NoError(t, second.HasError())
	assert.False(t, second.MarkBookSold, "book must not be re-marked sold")
}

func Test_DecideComplete_RejectsIncompleteShipping(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	shipping := givenShippingAddress()
	shipping.PostalCode = ""

	// act
	decision := settlement.DecideComplete(purchase, "pi_123", shipping, time.Now())

	// assert - the purchase stays pending, visibly stuck for follow-up
	var validationErr *settlement.ValidationError
	require.ErrorAs(t, decision.HasError(), &validationErr)
	assert.Equal(t, "shipping", validationErr.Field)
	assert.False(t, decision.IsApplied())
}

func Test_DecideComplete_RejectsCancelledPurchase(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	purchase.Status = settlement.StatusCancelled

	// act
	decision := settlement.DecideComplete(purchase, "pi_123", givenShippingAddress(), time.Now())

	// assert
	var validationErr *settlement.ValidationError
	require.ErrorAs(t, decision.HasError(), &validationErr)
	assert.Equal(t, "status", validationErr.Field)
}

func Test_DecideCancel_AppliesFromPending(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	now := time.Now()

	// act
	decision := settlement.DecideCancel(purchase, false, now)

	// assert
	assert.True(t, decision.IsApplied())
	assert.Equal(t, settlement.StatusCancelled, decision.Purchase.Status)
	assert.Equal(t, now, decision.Purchase.CancelledAt)
	assert.True(t, decision.RestoreBookAvailability)
	assert.False(t, decision.MarkBookSold)
}

func Test_DecideCancel_IdempotentWhenAlreadyCancelled(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	first := settlement.DecideCancel(purchase, false, time.Now())
	require.True(t, first.IsApplied())

	// act - duplicate notification delivery
	second := settlement.DecideCancel(first.Purchase, false, time.Now())

	// assert
	assert.True(t, second.IsIdempotent())
	assert.NoError(t, second.HasError())
	assert.False(t, second.RestoreBookAvailability)
}

func Test_DecideCancel_RejectsCompletedPurchase(t *testing.T) {
	// arrange
	purchase := givenPendingPurchase(t)
	purchase.Status = settlement.StatusCompleted
	purchase.Shipping = givenShippingAddress()

	// act
	decision := settlement.DecideCancel(purchase, false, time.Now())

	// assert
	var validationErr *settlement.ValidationError
	require.ErrorAs(t, decision.HasError(), &validationErr)
	assert.Equal(t, "status", validationErr.Field)
}

func Test_DecideCancel_WithholdsAvailabilityRestoreWhenBookSoldElsewhere(t *testing.T) {
	// arrange - a stale expiry for an abandoned session while another
	// purchase legitimately completed the sale
	purchase := givenPendingPurchase(t)

	// act
	decision := settlement.DecideCancel(purchase, true, time.Now())

	// assert
	assert.True(t, decision.IsApplied())
	assert.Equal(t, settlement.StatusCancelled, decision.Purchase.Status)
	assert.False(t, decision.RestoreBookAvailability, "a completed sale must not be clobbered")
}
