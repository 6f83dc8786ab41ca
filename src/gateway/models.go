package gateway

import "algoengine/src/model"

// Kline is one exchange candle, times in unix seconds.
type Kline struct {
	Source      string
	Symbol      string
	OpenTime    int64
	CloseTime   int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Trades      int64
}

// Order is the exchange's view of an order, already mapped onto the
// engine's status machine.
type Order struct {
	ID             string
	Symbol         string
	Side           model.OrderSide
	Type           model.OrderType
	Status         model.OrderStatus
	Price          float64
	AveragePrice   float64
	Volume         float64
	ExecutedVolume float64
}

// Filled reports whether the exchange considers the order fully
// executed.
func (o Order) Filled() bool {
	return o.ExecutedVolume > 0 && o.ExecutedVolume >= o.Volume
}

// SymbolInfo carries the trading rules needed to shape orders the
// exchange will accept.
type SymbolInfo struct {
	Symbol            string
	BaseAsset         string
	QuoteAsset        string
	PricePrecision    int
	QuantityPrecision int
	MinPrice          float64
	MaxPrice          float64
	TickSize          float64
	MinQuantity       float64
	MaxQuantity       float64
	StepSize          float64
	MinNotional       float64
	MarginPercent     float64
	Status            string
}

func (s SymbolInfo) Tradable() bool {
	return s.Status == "TRADING"
}

type TradingFees struct {
	Symbol          string
	MakerCommission float64
	TakerCommission float64
}

type AccountBalance struct {
	Asset   string
	Balance float64
	Locked  float64
}

type Account struct {
	Balances []AccountBalance
	Balance  float64
	NAV      float64
	Locked   float64
	Margin   float64
	Exposure float64
	PNL      float64
}
