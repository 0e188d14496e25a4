package settlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

func Test_FeeCalculator_Calculate_TenPercentOf1299(t *testing.T) {
	// arrange
	calc, err := settlement.NewFeeCalculator(10)
	require.NoError(t, err)

	// act
	split := calc.Calculate(1299)

	// assert
	assert.Equal(t, int64(130), split.PlatformFeeCents, "fee should round half-up from 129.9")
	assert.Equal(t, int64(1169), split.SellerAmountCents, "seller should receive the remainder")
}

func Test_FeeCalculator_Calculate_EvenSplit(t *testing.T) {
	// arrange
	calc, err := settlement.NewFeeCalculator(10)
	require.NoError(t, err)

	// act
	split := calc.Calculate(1000)

	// assert
	assert.Equal(t, int64(100), split.PlatformFeeCents)
	assert.Equal(t, int64(900), split.SellerAmountCents)
}

func Test_FeeCalculator_Calculate_ZeroAmountYieldsZeroFees(t *testing.T) {
	// arrange
	calc, err := settlement.NewFeeCalculator(10)
	require.NoError(t, err)

	// act
	split := calc.Calculate(0)

	// assert
	assert.Equal(t, int64(0), split.PlatformFeeCents)
	assert.Equal(t, int64(0), split.SellerAmountCents)
}

func Test_FeeCalculator_Calculate_SumInvariantHoldsForAllAmounts(t *testing.T) {
	// arrange
	percentages := []float64{0, 2.5, 7, 10, 12.5, 33.3, 50, 100}

	for _, percentage := range percentages {
		calc, err := settlement.NewFeeCalculator(percentage)
		require.NoError(t, err)

		for amountCents := int64(0); amountCents <= 10_000; amountCents += 7 {
			// act
			split := calc.Calculate(amountCents)

			// assert
			assert.Equal(t, amountCents, split.PlatformFeeCents+split.SellerAmountCents,
				"fee split must sum to the gross amount exactly (pct=%v amount=%d)", percentage, amountCents)
			assert.GreaterOrEqual(t, split.PlatformFeeCents, int64(0))
		}
	}
}

func Test_NewFeeCalculator_RejectsPercentageOutOfRange(t *testing.T) {
	testCases := []struct {
		name       string
		percentage float64
	}{
		{name: "negative percentage", percentage: -1},
		{name: "percentage above 100", percentage: 100.5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := settlement.NewFeeCalculator(tc.percentage)

			// assert
			assert.ErrorIs(t, err, settlement.ErrInvalidFeePercentage)
		})
	}
}
