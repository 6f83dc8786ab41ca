package interval

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"algoengine/src/model"
	"algoengine/src/orderbook"
	"algoengine/src/risk"
	"algoengine/src/strategy"
)

// Settings tunes the interval strategy. It exists to validate the full
// order pipeline in live mode, not to make money.
type Settings struct {
	VolumePercentage     float64
	TakeProfitPercentage float64
	StopLossPercentage   float64
	IntervalMinutes      int

	// SessionSizing scales the volume by the liquidity session and
	// skips orders inside the weekend no-trade window.
	SessionSizing bool
}

func (s *Settings) applyDefaults() {
	if s.VolumePercentage == 0 {
		s.VolumePercentage = 0.01
	}
	if s.TakeProfitPercentage == 0 {
		s.TakeProfitPercentage = 0.02
	}
	if s.StopLossPercentage == 0 {
		s.StopLossPercentage = 0.01
	}
	if s.IntervalMinutes == 0 {
		s.IntervalMinutes = 10
	}
}

// Strategy opens a BUY order every N minutes in live mode, closing any
// open orders first.
type Strategy struct {
	*strategy.Base

	log           *logrus.Entry
	settings      Settings
	sessionConfig risk.SessionConfig

	lastOrderTime *time.Time
}

func New(base strategy.Settings, settings Settings) *Strategy {
	settings.applyDefaults()

	s := &Strategy{
		Base:          strategy.NewBase(base),
		log:           logrus.WithField("component", "interval_strategy"),
		settings:      settings,
		sessionConfig: risk.DefaultSessionConfig(),
	}

	s.RegisterHooks(s)

	return s
}

func (s *Strategy) OnNewMinute(time.Time) {
	s.checkAndOpenOrder()
}

func (s *Strategy) OnOrderTransaction(order *model.Order) {
	if order.Status.IsOpen() {
		s.log.WithField("order_id", order.ID).Info("Order was opened")
		if tick := s.Tick(); tick != nil {
			date := tick.Date
			s.lastOrderTime = &date
		}
	}

	if order.Status.IsClosed() {
		s.log.WithFields(logrus.Fields{
			"order_id":       order.ID,
			"profit":         order.Profit(),
			"profit_percent": order.ProfitPercentage() * 100,
		}).Info("Order was closed")
	}
}

func (s *Strategy) checkAndOpenOrder() {
	tick := s.Tick()
	if tick == nil {
		return
	}

	if !s.shouldOpenNewOrder(tick.Date) {
		return
	}

	if !s.IsLive() {
		return
	}

	price := tick.Price
	volume := s.NAV() / price * s.settings.VolumePercentage

	if s.settings.SessionSizing {
		sized, session := risk.SizeForSession(decimal.NewFromFloat(volume), tick.Date, s.sessionConfig)
		if sized.IsZero() {
			s.log.WithField("session", session).Info("Inside the no-trade window, skipping order")
			return
		}

		volume, _ = sized.Float64()
		s.log.WithFields(logrus.Fields{
			"session": session,
			"volume":  volume,
		}).Debug("Volume sized for session")
	}

	s.closeExistingOrders()

	takeProfit := price + price*s.settings.TakeProfitPercentage
	stopLoss := price - price*s.settings.StopLossPercentage

	s.log.WithField("price", price).Info("Opening new order")

	if _, err := s.OpenOrder(context.Background(), model.OrderSideBuy, price, takeProfit, stopLoss, volume, nil); err != nil {
		s.log.WithError(err).Error("Failed to open order")
	}
}

func (s *Strategy) shouldOpenNewOrder(now time.Time) bool {
	interval := time.Duration(s.settings.IntervalMinutes) * time.Minute

	if s.lastOrderTime == nil {
		seeded := now.Add(-interval)
		s.lastOrderTime = &seeded
	}

	return now.Sub(*s.lastOrderTime) >= interval
}

func (s *Strategy) closeExistingOrders() {
	for _, order := range s.Orderbook().Where(orderbook.WithStatus(model.OrderStatusOpen)) {
		s.log.WithField("order_id", order.ID).Info("Closing existing order")
		if err := s.CloseOrder(context.Background(), order); err != nil {
			s.log.WithError(err).WithField("order_id", order.ID).Error("Failed to close order")
		}
	}
}
