package analytic

import (
	"math"
	"sort"
)

// Risk and performance metrics operate on plain NAV/profit series so
// they can be recomputed from scratch on every daily rollover. All of
// them degrade to 0 on inputs too short or too flat to be meaningful
// rather than returning NaN or Inf.

const defaultConfidence = 0.95

// CAGR is the compound annual growth rate between the initial and final
// NAV over the elapsed days. A wiped-out account floors at -1.0.
func CAGR(initial, final float64, days int) float64 {
	if days <= 0 || initial <= 0 {
		return 0
	}

	if final <= 0 {
		return -1.0
	}

	return math.Pow(final/initial, 365.0/float64(days)) - 1
}

// CalmarRatio relates CAGR to the worst drawdown suffered along the
// way. maxDrawdown is expected as a negative fraction.
func CalmarRatio(cagr, maxDrawdown float64) float64 {
	if maxDrawdown >= 0 {
		return 0
	}

	return cagr / math.Abs(maxDrawdown)
}

// ProfitFactor is gross wins over gross losses. Zero when the history
// lacks either side, since the ratio is undefined.
func ProfitFactor(profits []float64) float64 {
	var wins, losses float64

	for _, profit := range profits {
		if profit > 0 {
			wins += profit
		}
		if profit < 0 {
			losses += -profit
		}
	}

	if wins == 0 || losses == 0 {
		return 0
	}

	return wins / losses
}

// RecoveryFactor is the total profit recovered per unit of maximum
// drawdown.
func RecoveryFactor(totalProfit, maxDrawdown float64) float64 {
	if maxDrawdown >= 0 {
		return 0
	}

	return totalProfit / math.Abs(maxDrawdown)
}

// SharpeRatio is mean excess return over return volatility, computed on
// per-period NAV returns. Zero for fewer than two points or flat series.
func SharpeRatio(navs []float64, riskFreeRate float64) float64 {
	returns := periodReturns(navs)

	if len(returns) < 2 {
		return 0
	}

	mean := meanOf(returns)
	stddev := sampleStddev(returns, mean)

	if stddev == 0 {
		return 0
	}

	return (mean - riskFreeRate) / stddev
}

// SortinoRatio penalizes only downside volatility. Zero when the series
// never had a losing period.
func SortinoRatio(navs []float64, riskFreeRate float64) float64 {
	returns := periodReturns(navs)

	if len(returns) == 0 {
		return 0
	}

	var downsideSquares float64
	downsideCount := 0

	for _, r := range returns {
		if r < 0 {
			downsideSquares += r * r
			downsideCount++
		}
	}

	if downsideCount == 0 {
		return 0
	}

	downsideDeviation := math.Sqrt(downsideSquares / float64(downsideCount))
	if downsideDeviation == 0 {
		return 0
	}

	return (meanOf(returns) - riskFreeRate) / downsideDeviation
}

// RSquared measures how close the NAV curve is to a straight line, the
// r-squared of NAV regressed on its index. Zero without variance.
func RSquared(navs []float64) float64 {
	n := len(navs)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX, sumYY float64

	for i, nav := range navs {
		x := float64(i)
		sumX += x
		sumY += nav
		sumXY += x * nav
		sumXX += x * x
		sumYY += nav * nav
	}

	fn := float64(n)
	numerator := fn*sumXY - sumX*sumY
	denominator := (fn*sumXX - sumX*sumX) * (fn*sumYY - sumY*sumY)

	if denominator <= 0 {
		return 0
	}

	r := numerator / math.Sqrt(denominator)

	return r * r
}

// UlcerIndex is the root mean square of percentage drawdowns from the
// running NAV peak. Zero when the curve never dipped.
func UlcerIndex(navs []float64) float64 {
	if len(navs) == 0 {
		return 0
	}

	peak := navs[0]
	var sumSquares float64
	sawDrawdown := false

	for _, nav := range navs {
		if nav > peak {
			peak = nav
		}

		if peak <= 0 {
			continue
		}

		drawdown := (nav - peak) / peak * 100
		if drawdown < 0 {
			sawDrawdown = true
		}

		sumSquares += drawdown * drawdown
	}

	if !sawDrawdown {
		return 0
	}

	return math.Sqrt(sumSquares / float64(len(navs)))
}

// ExpectedShortfall is the mean of the worst (1 - confidence) tail of
// the return distribution, reported as a non-positive number.
func ExpectedShortfall(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	if confidence <= 0 || confidence >= 1 {
		confidence = defaultConfidence
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tail := int(math.Ceil(float64(len(sorted)) * (1 - confidence)))
	if tail < 1 {
		tail = 1
	}

	var sum float64
	for _, r := range sorted[:tail] {
		sum += r
	}

	shortfall := sum / float64(tail)
	if shortfall > 0 {
		return 0
	}

	return shortfall
}

// periodReturns converts a NAV series into simple per-period returns,
// skipping periods whose base is zero.
func periodReturns(navs []float64) []float64 {
	if len(navs) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(navs)-1)

	for i := 1; i < len(navs); i++ {
		previous := navs[i-1]
		if previous == 0 {
			continue
		}

		returns = append(returns, (navs[i]-previous)/previous)
	}

	return returns
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func sampleStddev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}

	return math.Sqrt(sumSquares / float64(len(values)-1))
}
