package ema5breakout

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/candle"
	"algoengine/src/model"
	"algoengine/src/orderbook"
	"algoengine/src/risk"
	"algoengine/src/strategy"
)

const emaKey = "ema5"

// Settings tunes the breakout entries and the recovery layering that
// follows losing exits.
type Settings struct {
	MainVolumePercentage     float64
	MainTakeProfitPercentage float64
	MainStopLossPercentage   float64

	RecoveryMaxLayers            int
	RecoveryTakeProfitPercentage float64
	RecoveryStopLossPercentage   float64

	// TrailStopLookback enables a trailing exit ratcheted along the
	// hourly candle lows. Zero disables it.
	TrailStopLookback int
}

func (s *Settings) applyDefaults() {
	if s.MainVolumePercentage == 0 {
		s.MainVolumePercentage = 0.05
	}
	if s.MainTakeProfitPercentage == 0 {
		s.MainTakeProfitPercentage = 0.03
	}
	if s.MainStopLossPercentage == 0 {
		s.MainStopLossPercentage = 0.15
	}
	if s.RecoveryMaxLayers == 0 {
		s.RecoveryMaxLayers = 3
	}
	if s.RecoveryTakeProfitPercentage == 0 {
		s.RecoveryTakeProfitPercentage = 0.03
	}
	if s.RecoveryStopLossPercentage == 0 {
		s.RecoveryStopLossPercentage = 0.15
	}
}

// Strategy buys when the hourly EMA5 crosses above its previous-day
// maximum. Losing exits are followed by recovery orders sized to win
// the loss back at the recovery take-profit.
type Strategy struct {
	*strategy.Base

	log      *logrus.Entry
	settings Settings
	candles  *candle.Service

	previousDayEMA5Max float64
	hasPreviousDayMax  bool

	// trailStops tracks the ratcheted stop per open order id.
	trailStops map[string]float64
}

func New(base strategy.Settings, settings Settings) *Strategy {
	settings.applyDefaults()

	s := &Strategy{
		Base:       strategy.NewBase(base),
		log:        logrus.WithField("component", "ema5_breakout"),
		settings:   settings,
		candles:    candle.NewService(model.TimeframeOneHour, candle.NewMA(emaKey, 5, true)),
		trailStops: map[string]float64{},
	}

	s.Watch(s.candles)
	s.RegisterHooks(s)

	return s
}

func (s *Strategy) OnNewHour(time.Time) {
	s.applyTrailingStop()
	s.checkEntryConditions()
}

func (s *Strategy) OnNewDay(boundary time.Time) {
	s.calculatePreviousDayEMA5Max(boundary)
}

func (s *Strategy) OnOrderTransaction(order *model.Order) {
	if order.Status.IsOpen() {
		s.log.WithField("order_id", order.ID).Info("Order was opened")
	}

	if !order.Status.IsClosed() {
		return
	}

	delete(s.trailStops, order.ID)

	s.log.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"profit":         order.Profit(),
		"profit_percent": order.ProfitPercentage() * 100,
	}).Info("Order was closed")

	if order.Profit() < 0 && s.settings.RecoveryMaxLayers > 0 {
		s.openRecoveryOrder(order)
	}
}

// applyTrailingStop ratchets a stop under every open BUY order and
// closes the ones the price fell through. The stop starts from the
// order's own stop-loss and only ever moves up.
func (s *Strategy) applyTrailingStop() {
	if s.settings.TrailStopLookback <= 0 {
		return
	}

	tick := s.Tick()
	if tick == nil {
		return
	}

	open := s.Orderbook().Where(
		orderbook.WithSide(model.OrderSideBuy),
		orderbook.WithStatus(model.OrderStatusOpen),
	)

	for _, order := range open {
		stop, tracked := s.trailStops[order.ID]
		if !tracked {
			stop = order.StopLossPrice
		}

		next, moved := risk.NextTrailingStop(model.OrderSideBuy, stop, s.candles.Candles(), s.settings.TrailStopLookback)
		if moved {
			s.trailStops[order.ID] = next
			stop = next

			s.log.WithFields(logrus.Fields{
				"order_id": order.ID,
				"stop":     stop,
			}).Info("Trailing stop moved")
		}

		if tick.Price <= stop {
			s.log.WithFields(logrus.Fields{
				"order_id": order.ID,
				"stop":     stop,
				"price":    tick.Price,
			}).Info("Trailing stop hit, closing order")

			if err := s.CloseOrder(context.Background(), order); err != nil {
				s.log.WithError(err).WithField("order_id", order.ID).Error("Failed to close order at the trailing stop")
			}
		}
	}
}

func (s *Strategy) checkEntryConditions() {
	tick := s.Tick()
	if tick == nil || !s.hasPreviousDayMax {
		return
	}

	open := s.Orderbook().Where(
		orderbook.WithSide(model.OrderSideBuy),
		orderbook.WithStatus(model.OrderStatusOpen),
	)
	if len(open) > 0 {
		return
	}

	currentEMA, ok := s.candles.IndicatorValue(emaKey, 0)
	if !ok {
		return
	}
	previousEMA, ok := s.candles.IndicatorValue(emaKey, 1)
	if !ok {
		return
	}

	if previousEMA >= s.previousDayEMA5Max || currentEMA <= s.previousDayEMA5Max {
		return
	}

	if s.IsLive() {
		s.log.WithFields(logrus.Fields{
			"date":                 tick.Date,
			"price":                tick.Price,
			"previous_day_ema_max": s.previousDayEMA5Max,
		}).Info("Breakout detected")
	}

	price := tick.Price
	takeProfit := price + price*s.settings.MainTakeProfitPercentage
	stopLoss := price - price*s.settings.MainStopLossPercentage
	volume := s.NAV() / price * s.settings.MainVolumePercentage

	if _, err := s.OpenOrder(context.Background(), model.OrderSideBuy, price, takeProfit, stopLoss, volume, map[string]any{"layer": 0}); err != nil {
		s.log.WithError(err).Error("Failed to open breakout order")
	}
}

func (s *Strategy) openRecoveryOrder(closed *model.Order) {
	tick := s.Tick()
	if tick == nil {
		return
	}

	layer, _ := closed.Variables["layer"].(int)
	nextLayer := layer + 1

	if nextLayer > s.settings.RecoveryMaxLayers {
		s.log.WithField("max_layers", s.settings.RecoveryMaxLayers).Warn("Maximum number of recovery layers reached")
		return
	}

	price := tick.Price
	takeProfit := price + price*s.settings.RecoveryTakeProfitPercentage
	stopLoss := price - price*s.settings.RecoveryStopLossPercentage

	losses := -closed.Profit()
	volume := volumeForTargetPrice(losses, price, takeProfit)

	if _, err := s.OpenOrder(context.Background(), model.OrderSideBuy, price, takeProfit, stopLoss, volume, map[string]any{"layer": nextLayer}); err != nil {
		s.log.WithError(err).Error("Failed to open recovery order")
	}
}

// calculatePreviousDayEMA5Max scans the last 24 hourly candles and
// keeps the maximum EMA5 observed yesterday. Skipped until a full day
// of EMA values exists.
func (s *Strategy) calculatePreviousDayEMA5Max(boundary time.Time) {
	const minCandlesRequired = 24

	today := time.Date(boundary.Year(), boundary.Month(), boundary.Day(), 0, 0, 0, 0, boundary.Location())
	yesterday := today.AddDate(0, 0, -1)

	recent := s.candles.Last(minCandlesRequired)

	values := 0
	max := 0.0
	found := false

	for _, c := range recent {
		value, ok := c.Indicators[emaKey]
		if !ok {
			continue
		}
		values++

		if c.OpenTime.Before(yesterday) || !c.OpenTime.Before(today) {
			continue
		}

		if !found || value > max {
			max = value
			found = true
		}
	}

	if values < minCandlesRequired {
		s.log.WithField("ema_values", values).Warn("Not enough EMA5 values to calculate previous day maximum")
		return
	}

	if found {
		s.previousDayEMA5Max = max
		s.hasPreviousDayMax = true
	}
}

// volumeForTargetPrice sizes an order so hitting the take-profit wins
// back the given losses.
func volumeForTargetPrice(losses, entryPrice, takeProfitPrice float64) float64 {
	if takeProfitPrice <= entryPrice {
		return 0
	}

	return losses / (takeProfitPrice - entryPrice)
}
