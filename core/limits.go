package core

import (
	"github.com/shopspring/decimal"
)

const scorePrecision int32 = 6 // risk scores are compared at 0.000001 precision

// MaxEnclaveLatencyUS is the signing latency ceiling for proofs produced inside an enclave.
const MaxEnclaveLatencyUS uint32 = 10_000

// MaxRiskScore is the highest AI risk score a legacy proof may carry and still be accepted.
var MaxRiskScore = decimal.RequireFromString("0.5")

// ScoreWithinLimit returns true if score is less than or equal to limit.
// Uses decimal arithmetic with scorePrecision so float32 noise cannot flip the comparison.
func ScoreWithinLimit(score float64, limit decimal.Decimal) bool {
	scoreDecimal := decimal.NewFromFloat(score).Round(scorePrecision)
	return scoreDecimal.LessThanOrEqual(limit.Round(scorePrecision))
}

// AmountWithinLimit returns true if amount does not exceed limit.
// Both values are exact decimals, e.g. an order size checked against MaxOrderSize(2500.50).
func AmountWithinLimit(amount, limit decimal.Decimal) bool {
	return amount.LessThanOrEqual(limit)
}
