package model

import "time"

// Tick is a single price observation, the unit of time advance for the
// whole engine. Simulated ticks come from historical klines (backtest and
// historical filling); live ticks come from the gateway stream.
type Tick struct {
	IsSimulated bool      `json:"is_simulated"`
	Price       float64   `json:"price"`
	BidPrice    float64   `json:"bid_price"`
	AskPrice    float64   `json:"ask_price"`
	Date        time.Time `json:"date"`
}
