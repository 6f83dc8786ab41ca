package risk

import (
	"algoengine/src/candle"
	"algoengine/src/model"
)

const defaultTrailLookback = 20

// NextTrailingStop ratchets a stop level along completed candles.
//
// BUY positions: the stop only moves up, gated on the last candle
// being bullish. The candidate is the average low over the lookback
// window, clamped to the last candle's low.
//
// SELL positions mirror this: bearish gate, average high ceiling,
// clamped to the last candle's high, moving down only.
func NextTrailingStop(side model.OrderSide, currentStop float64, candles []candle.Candle, lookback int) (float64, bool) {
	if len(candles) == 0 {
		return currentStop, false
	}
	if lookback <= 0 {
		lookback = defaultTrailLookback
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}

	last := candles[len(candles)-1]
	window := candles[len(candles)-lookback:]

	switch side {
	case model.OrderSideBuy:
		if last.Close <= last.Open {
			return currentStop, false
		}

		candidate := averageLow(window)
		if candidate > last.Low {
			candidate = last.Low
		}

		if candidate > currentStop {
			return candidate, true
		}

	case model.OrderSideSell:
		if last.Close >= last.Open {
			return currentStop, false
		}

		candidate := averageHigh(window)
		if candidate < last.High {
			candidate = last.High
		}

		if candidate < currentStop {
			return candidate, true
		}
	}

	return currentStop, false
}

func averageLow(candles []candle.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Low
	}
	return sum / float64(len(candles))
}

func averageHigh(candles []candle.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.High
	}
	return sum / float64(len(candles))
}
