package services

import (
	"testing"

	"github.com/princinho/agrorfq/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFee_Instant(t *testing.T) {
	fee, err := CalculateFee(models.RequestTypeInstant, 100000)
	require.NoError(t, err)

	assert.True(t, fee.PlatformFee.Equal(decimal.NewFromInt(3000)))
	assert.True(t, fee.AgentFee.Equal(decimal.NewFromInt(4000)))
	assert.True(t, fee.Total.Equal(decimal.NewFromInt(7000)))
	assert.Equal(t, int64(700000), fee.TotalMinorUnits())
}

func TestCalculateFee_Standard(t *testing.T) {
	for _, budget := range []float64{0, 1, 250000, 1e9} {
		fee, err := CalculateFee(models.RequestTypeStandard, budget)
		require.NoError(t, err)
		assert.True(t, fee.Total.Equal(decimal.NewFromInt(5000)), "budget %v", budget)
		assert.Equal(t, int64(500000), fee.TotalMinorUnits())
	}
}

func TestCalculateFee_InstantMonotonic(t *testing.T) {
	budgets := []float64{0, 0.5, 1, 10, 999.99, 1000, 50000, 1e7}
	var prev decimal.Decimal
	for i, b := range budgets {
		fee, err := CalculateFee(models.RequestTypeInstant, b)
		require.NoError(t, err)
		if i > 0 {
			assert.True(t, fee.Total.GreaterThan(prev), "fee for %v should exceed previous", b)
		}
		prev = fee.Total
	}
}

func TestCalculateFee_Invalid(t *testing.T) {
	_, err := CalculateFee(models.RequestTypeInstant, -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = CalculateFee("bulk", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAgentFeeHeld(t *testing.T) {
	assert.Equal(t, 4000.0, AgentFeeHeld(100000))
	assert.Equal(t, 0.0, AgentFeeHeld(0))
	assert.Equal(t, 49.38, AgentFeeHeld(1234.5))
}

func TestSufficientPayment(t *testing.T) {
	fee, err := CalculateFee(models.RequestTypeStandard, 0)
	require.NoError(t, err)

	assert.True(t, SufficientPayment(500000, fee))
	assert.True(t, SufficientPayment(499900, fee), "one naira under is tolerated")
	assert.False(t, SufficientPayment(499899, fee))
	assert.True(t, SufficientPayment(600000, fee))
}
