package candle

import (
	"testing"
	"time"

	"algoengine/src/model"
)

func tickAt(price float64, date time.Time) model.Tick {
	return model.Tick{Price: price, Date: date}
}

func TestCandleAggregation(t *testing.T) {
	service := NewService(model.TimeframeOneHour)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	service.OnTick(tickAt(100, base))
	service.OnTick(tickAt(105, base.Add(10*time.Minute)))
	service.OnTick(tickAt(95, base.Add(30*time.Minute)))
	service.OnTick(tickAt(102, base.Add(50*time.Minute)))

	if len(service.Candles()) != 0 {
		t.Fatal("bar in progress must not appear in history")
	}

	// First tick of the next hour completes the bar.
	service.OnTick(tickAt(103, base.Add(time.Hour)))

	candles := service.Candles()
	if len(candles) != 1 {
		t.Fatalf("expected one completed candle, got %d", len(candles))
	}

	candle := candles[0]
	if candle.Open != 100 || candle.High != 105 || candle.Low != 95 || candle.Close != 102 {
		t.Fatalf("unexpected OHLC: %+v", candle)
	}
	if !candle.OpenTime.Equal(base) {
		t.Fatalf("expected open time %v, got %v", base, candle.OpenTime)
	}
}

func TestSMAIndicator(t *testing.T) {
	service := NewService(model.TimeframeOneMinute, NewMA("sma3", 3, false))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	prices := []float64{10, 20, 30, 40, 50}
	for i, price := range prices {
		service.OnTick(tickAt(price, base.Add(time.Duration(i)*time.Minute)))
	}

	candles := service.Candles()
	if len(candles) != 4 {
		t.Fatalf("expected 4 completed candles, got %d", len(candles))
	}

	if _, ok := candles[0].Indicators["sma3"]; ok {
		t.Fatal("sma must not produce values before the period fills")
	}

	if got := candles[2].Indicators["sma3"]; got != 20 {
		t.Fatalf("expected sma 20, got %v", got)
	}
	if got := candles[3].Indicators["sma3"]; got != 30 {
		t.Fatalf("expected sma 30, got %v", got)
	}
}

func TestEMAIndicator(t *testing.T) {
	ma := NewMA("ema3", 3, true)

	inputs := []float64{10, 20, 30, 40}
	var values []float64

	for _, close := range inputs {
		if value, ok := ma.OnCandle(Candle{Close: close}); ok {
			values = append(values, value)
		}
	}

	if len(values) != 2 {
		t.Fatalf("expected 2 ema values, got %d", len(values))
	}

	// Seed SMA of 10,20,30 is 20; next EMA = 40*0.5 + 20*0.5 = 30.
	if values[0] != 20 {
		t.Fatalf("expected seed 20, got %v", values[0])
	}
	if values[1] != 30 {
		t.Fatalf("expected 30, got %v", values[1])
	}
}

func TestIndicatorValueOffset(t *testing.T) {
	service := NewService(model.TimeframeOneMinute, NewMA("sma1", 1, false))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, price := range []float64{10, 20, 30} {
		service.OnTick(tickAt(price, base.Add(time.Duration(i)*time.Minute)))
	}

	latest, ok := service.IndicatorValue("sma1", 0)
	if !ok || latest != 20 {
		t.Fatalf("expected latest sma 20, got %v (%v)", latest, ok)
	}

	previous, ok := service.IndicatorValue("sma1", 1)
	if !ok || previous != 10 {
		t.Fatalf("expected previous sma 10, got %v (%v)", previous, ok)
	}

	if _, ok := service.IndicatorValue("sma1", 5); ok {
		t.Fatal("expected no value beyond history")
	}
}
