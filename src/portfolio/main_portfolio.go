package portfolio

import (
	"algoengine/src/asset"
	"algoengine/src/strategies/ema5breakout"
	"algoengine/src/strategies/interval"
	"algoengine/src/strategy"
)

func init() {
	Register(Portfolio{
		ID: "main",
		Assets: []func() *asset.Asset{
			func() *asset.Asset {
				return asset.New("btcusdt", "BTCUSDT", "binance",
					ema5breakout.New(strategy.Settings{
						ID:         "ema5_breakout_btcusdt",
						Enabled:    true,
						Allocation: 10000,
						Leverage:   1,
					}, ema5breakout.Settings{TrailStopLookback: 24}),
				)
			},
		},
	})

	Register(Portfolio{
		ID: "test",
		Assets: []func() *asset.Asset{
			func() *asset.Asset {
				return asset.New("btcusdt", "BTCUSDT", "binance",
					interval.New(strategy.Settings{
						ID:         "interval_btcusdt",
						Enabled:    true,
						Allocation: 1000,
						Leverage:   1,
					}, interval.Settings{SessionSizing: true}),
				)
			},
		},
	})
}
