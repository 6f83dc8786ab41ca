package candle

import (
	"time"

	"algoengine/src/model"
)

// Candle is one aggregated OHLCV bar with the indicator values computed
// at its close.
type Candle struct {
	OpenTime   time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}

// Indicator consumes completed candles and produces one value per
// candle once it has seen enough history.
type Indicator interface {
	Key() string
	OnCandle(candle Candle) (value float64, ok bool)
}

// Service aggregates ticks into candles of one timeframe and runs the
// attached indicators on every completed bar.
type Service struct {
	timeframe  model.Timeframe
	indicators []Indicator
	maxCandles int

	current  *Candle
	boundary time.Time
	candles  []Candle
}

const defaultMaxCandles = 5000

func NewService(timeframe model.Timeframe, indicators ...Indicator) *Service {
	return &Service{
		timeframe:  timeframe,
		indicators: indicators,
		maxCandles: defaultMaxCandles,
	}
}

// OnTick folds a tick into the current bar, completing it when the tick
// crosses the period boundary.
func (s *Service) OnTick(tick model.Tick) {
	boundary := s.timeframe.Truncate(tick.Date)

	if s.current == nil {
		s.startCandle(tick, boundary)
		return
	}

	if boundary.After(s.boundary) {
		s.completeCurrent()
		s.startCandle(tick, boundary)
		return
	}

	s.current.Close = tick.Price
	if tick.Price > s.current.High {
		s.current.High = tick.Price
	}
	if tick.Price < s.current.Low {
		s.current.Low = tick.Price
	}
}

func (s *Service) startCandle(tick model.Tick, boundary time.Time) {
	s.boundary = boundary
	s.current = &Candle{
		OpenTime: boundary,
		Open:     tick.Price,
		High:     tick.Price,
		Low:      tick.Price,
		Close:    tick.Price,
	}
}

func (s *Service) completeCurrent() {
	completed := *s.current
	completed.Indicators = map[string]float64{}

	for _, indicator := range s.indicators {
		if value, ok := indicator.OnCandle(completed); ok {
			completed.Indicators[indicator.Key()] = value
		}
	}

	s.candles = append(s.candles, completed)

	if len(s.candles) > s.maxCandles {
		s.candles = s.candles[len(s.candles)-s.maxCandles:]
	}
}

// Candles returns the completed bars, oldest first. The bar in
// progress is not included.
func (s *Service) Candles() []Candle {
	return s.candles
}

// Last returns the n most recent completed bars.
func (s *Service) Last(n int) []Candle {
	if n <= 0 || len(s.candles) == 0 {
		return nil
	}
	if n > len(s.candles) {
		n = len(s.candles)
	}
	return s.candles[len(s.candles)-n:]
}

// IndicatorValue reads an indicator from the most recent completed
// bars, offset 0 being the latest.
func (s *Service) IndicatorValue(key string, offset int) (float64, bool) {
	index := len(s.candles) - 1 - offset
	if index < 0 {
		return 0, false
	}

	value, ok := s.candles[index].Indicators[key]
	return value, ok
}
