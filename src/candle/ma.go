package candle

// MA is a moving-average indicator over candle closes, simple or
// exponential.
type MA struct {
	key         string
	period      int
	exponential bool

	closes  []float64
	ema     float64
	emaSeen int
}

func NewMA(key string, period int, exponential bool) *MA {
	if period <= 0 {
		period = 1
	}

	return &MA{key: key, period: period, exponential: exponential}
}

func (m *MA) Key() string { return m.key }

func (m *MA) OnCandle(candle Candle) (float64, bool) {
	if m.exponential {
		return m.nextEMA(candle.Close)
	}

	return m.nextSMA(candle.Close)
}

func (m *MA) nextSMA(close float64) (float64, bool) {
	m.closes = append(m.closes, close)
	if len(m.closes) > m.period {
		m.closes = m.closes[1:]
	}

	if len(m.closes) < m.period {
		return 0, false
	}

	var sum float64
	for _, value := range m.closes {
		sum += value
	}

	return sum / float64(m.period), true
}

// nextEMA seeds with an SMA over the first period closes, then applies
// the standard smoothing factor 2/(period+1).
func (m *MA) nextEMA(close float64) (float64, bool) {
	m.emaSeen++

	if m.emaSeen <= m.period {
		m.closes = append(m.closes, close)

		if m.emaSeen < m.period {
			return 0, false
		}

		var sum float64
		for _, value := range m.closes {
			sum += value
		}
		m.ema = sum / float64(m.period)
		m.closes = nil

		return m.ema, true
	}

	alpha := 2.0 / float64(m.period+1)
	m.ema = close*alpha + m.ema*(1-alpha)

	return m.ema, true
}
