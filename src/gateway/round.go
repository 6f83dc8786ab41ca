package gateway

import "github.com/shopspring/decimal"

// RoundToStep floors value to the nearest multiple of step, as required
// by LOT_SIZE and PRICE_FILTER rules. Decimal arithmetic avoids the
// float drift that makes exchanges reject quantities like
// 0.30000000000000004.
func RoundToStep(value, step float64) float64 {
	if step <= 0 || value <= 0 {
		return value
	}

	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)

	steps := v.Div(s).Floor()
	result, _ := steps.Mul(s).Float64()

	return result
}

// RoundToPrecision truncates value to the given number of decimal
// places.
func RoundToPrecision(value float64, precision int) float64 {
	if precision < 0 {
		return value
	}

	result, _ := decimal.NewFromFloat(value).Truncate(int32(precision)).Float64()

	return result
}
