package services

import (
	"github.com/princinho/agrorfq/models"
	"github.com/shopspring/decimal"
)

// Fee schedule, in Naira.
var (
	InstantBaseFee   = decimal.NewFromInt(3000)
	InstantAgentRate = decimal.RequireFromString("0.04")
	StandardFlatFee  = decimal.NewFromInt(5000)

	// PaymentTolerance absorbs gateway rounding when comparing paid and expected amounts.
	PaymentTolerance = decimal.NewFromInt(1)

	minorUnitsPerNaira = decimal.NewFromInt(100)
)

// FeeBreakdown is the amount a buyer must pay to publish a request.
type FeeBreakdown struct {
	PlatformFee decimal.Decimal
	AgentFee    decimal.Decimal
	Total       decimal.Decimal
}

// TotalMinorUnits is Total in kobo, the unit the gateway charges in.
func (f FeeBreakdown) TotalMinorUnits() int64 {
	return f.Total.Mul(minorUnitsPerNaira).Round(0).IntPart()
}

// CalculateFee maps a request type and estimated budget to the required payment.
func CalculateFee(t models.RequestType, estimatedBudget float64) (FeeBreakdown, error) {
	if estimatedBudget < 0 {
		return FeeBreakdown{}, validationError("estimated budget cannot be negative")
	}
	switch t {
	case models.RequestTypeInstant:
		agent := decimal.NewFromFloat(estimatedBudget).Mul(InstantAgentRate)
		return FeeBreakdown{
			PlatformFee: InstantBaseFee,
			AgentFee:    agent,
			Total:       InstantBaseFee.Add(agent),
		}, nil
	case models.RequestTypeStandard:
		return FeeBreakdown{
			PlatformFee: StandardFlatFee,
			AgentFee:    decimal.Zero,
			Total:       StandardFlatFee,
		}, nil
	default:
		return FeeBreakdown{}, validationError("unknown request type %q", t)
	}
}

// AgentFeeHeld is the share of an instant request's budget held for the agent.
func AgentFeeHeld(budget float64) float64 {
	return decimal.NewFromFloat(budget).Mul(InstantAgentRate).Round(2).InexactFloat64()
}

// SufficientPayment reports whether paidMinor covers expected, within tolerance.
func SufficientPayment(paidMinor int64, expected FeeBreakdown) bool {
	paid := decimal.NewFromInt(paidMinor).Div(minorUnitsPerNaira)
	return paid.GreaterThanOrEqual(expected.Total.Sub(PaymentTolerance))
}

func budgetOrZero(b *float64) float64 {
	if b == nil {
		return 0
	}
	return *b
}
