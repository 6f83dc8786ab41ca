package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/analytic"
	"algoengine/src/candle"
	"algoengine/src/gateway"
	"algoengine/src/model"
	"algoengine/src/orderbook"
	"algoengine/src/queue"
)

// Asset is the slice of the owning asset a strategy needs: identity,
// the exchange connection and the historical-filling flag that gates
// live order placement.
type Asset interface {
	Name() string
	Symbol() string
	Gateway() gateway.Gateway
	IsHistoricalFilling() bool
}

// Strategy is what the asset service fans out to.
type Strategy interface {
	ID() string
	IsEnabled() bool
	Setup(env Environment) error
	OnTick(tick model.Tick)
	OnTransaction(order *model.Order)
	OnEnd()
}

// Environment carries the run-wide wiring injected by the asset service.
type Environment struct {
	Backtest   bool
	BacktestID string
	Asset      Asset
	Commands   *queue.Queue
	Events     *queue.Queue
}

// Settings is the per-strategy configuration every concrete strategy
// embeds through Base.
type Settings struct {
	ID         string
	Enabled    bool
	Allocation float64
	Leverage   float64
}

// Base implements the engine plumbing shared by all strategies: tick
// dispatch, timeframe transition detection, order placement guards and
// the orderbook/analytics lifecycle. Concrete strategies embed *Base
// and register themselves as hooks.
type Base struct {
	log      *logrus.Entry
	settings Settings
	env      Environment

	book      *orderbook.Orderbook
	handler   *orderbook.GatewayHandler
	analytics *analytic.Service
	candles   []*candle.Service
	hooks     any

	tick           *model.Tick
	lastBoundaries map[model.Timeframe]time.Time
}

// trackedTimeframes are observed for transitions, smallest first so a
// tick crossing several boundaries fires hooks in ascending order.
var trackedTimeframes = []model.Timeframe{
	model.TimeframeOneMinute,
	model.TimeframeOneHour,
	model.TimeframeOneDay,
	model.TimeframeOneWeek,
	model.TimeframeOneMonth,
}

func NewBase(settings Settings) *Base {
	return &Base{
		log:            logrus.WithFields(logrus.Fields{"component": "strategy", "strategy_id": settings.ID}),
		settings:       settings,
		lastBoundaries: map[model.Timeframe]time.Time{},
	}
}

// RegisterHooks attaches the concrete strategy. Hooks are optional
// interfaces resolved by type assertion at dispatch time.
func (b *Base) RegisterHooks(hooks any) {
	b.hooks = hooks
}

// Watch registers a candle service to be fed on every tick, after the
// orderbook and analytics have seen it.
func (b *Base) Watch(service *candle.Service) {
	b.candles = append(b.candles, service)
}

// Setup validates the configuration and builds the orderbook, the
// execution handler (production only) and the analytics engine. Any
// validation failure is fatal for the run.
func (b *Base) Setup(env Environment) error {
	if env.Asset == nil {
		return errors.New("strategy: asset is required")
	}
	if b.settings.ID == "" {
		return errors.New("strategy: id must not be empty")
	}
	if b.settings.Allocation <= 0 {
		return fmt.Errorf("strategy %s: allocation must be positive", b.settings.ID)
	}
	if b.settings.Leverage <= 0 {
		return fmt.Errorf("strategy %s: leverage must be positive", b.settings.ID)
	}
	if env.Commands == nil || env.Events == nil {
		return fmt.Errorf("strategy %s: commands and events queues are required", b.settings.ID)
	}
	if env.Backtest && env.BacktestID == "" {
		return fmt.Errorf("strategy %s: backtest id is required when backtesting", b.settings.ID)
	}

	b.env = env

	options := orderbook.Options{
		Backtest:      env.Backtest,
		Symbol:        env.Asset.Symbol(),
		Allocation:    b.settings.Allocation,
		Leverage:      b.settings.Leverage,
		OnTransaction: b.OnTransaction,
		Logger:        b.log.WithField("component", "orderbook"),
	}

	if !env.Backtest {
		b.handler = orderbook.NewGatewayHandler(env.Asset.Gateway(), 0, 0)
		options.Handler = b.handler
	}

	book, err := orderbook.New(options)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", b.settings.ID, err)
	}
	b.book = book

	if b.handler != nil {
		b.handler.Bind(book)
	}

	analytics, err := analytic.New(analytic.Options{
		StrategyID: b.settings.ID,
		BacktestID: env.BacktestID,
		Backtest:   env.Backtest,
		Orderbook:  book,
		Commands:   env.Commands,
		Config:     analytic.GetConfig(),
		Logger:     b.log.WithField("component", "analytic"),
	})
	if err != nil {
		return fmt.Errorf("strategy %s: %w", b.settings.ID, err)
	}
	b.analytics = analytics

	return nil
}

// OnTick advances the strategy by one observation. The order is fixed:
// store the tick, fire timeframe transition hooks, refresh the
// orderbook, update analytics, then feed the candle services.
func (b *Base) OnTick(tick model.Tick) {
	b.tick = &tick

	b.detectTransitions(tick.Date)

	b.book.Refresh(tick)
	b.analytics.OnTick(tick)

	for _, service := range b.candles {
		service.OnTick(tick)
	}
}

// detectTransitions fires timeframe hooks when a truncated boundary
// strictly increases. The first observation of each timeframe only
// seeds the state.
func (b *Base) detectTransitions(date time.Time) {
	for _, timeframe := range trackedTimeframes {
		boundary := timeframe.Truncate(date)

		last, seen := b.lastBoundaries[timeframe]
		b.lastBoundaries[timeframe] = boundary

		if !seen || !boundary.After(last) {
			continue
		}

		b.fireTransition(timeframe, boundary)
	}
}

func (b *Base) fireTransition(timeframe model.Timeframe, boundary time.Time) {
	switch timeframe {
	case model.TimeframeOneMinute:
		if hook, ok := b.hooks.(MinuteHook); ok {
			hook.OnNewMinute(boundary)
		}
	case model.TimeframeOneHour:
		if hook, ok := b.hooks.(HourHook); ok {
			hook.OnNewHour(boundary)
		}
	case model.TimeframeOneDay:
		b.book.Clean()
		b.analytics.OnNewDay(boundary)
		if hook, ok := b.hooks.(DayHook); ok {
			hook.OnNewDay(boundary)
		}
	case model.TimeframeOneWeek:
		if hook, ok := b.hooks.(WeekHook); ok {
			hook.OnNewWeek(boundary)
		}
	case model.TimeframeOneMonth:
		b.analytics.OnNewMonth(boundary)
		if hook, ok := b.hooks.(MonthHook); ok {
			hook.OnNewMonth(boundary)
		}
	}
}

// IsLive reports whether the strategy is processing real exchange
// ticks, as opposed to backtest or historical-filling replays.
func (b *Base) IsLive() bool {
	return !b.env.Backtest && b.tick != nil && !b.tick.IsSimulated
}

// canTrade gates order placement: backtests always trade, production
// trades only on live ticks outside historical filling.
func (b *Base) canTrade() bool {
	if b.env.Backtest {
		return true
	}

	return b.IsLive() && !b.env.Asset.IsHistoricalFilling()
}

// OpenOrder places a market order when trading is available. Outside
// that window it is a silent no-op returning nil, so strategy code can
// call it unconditionally during replays.
func (b *Base) OpenOrder(ctx context.Context, side model.OrderSide, price, takeProfit, stopLoss, volume float64, variables map[string]any) (*model.Order, error) {
	if !b.canTrade() {
		return nil, nil
	}

	order := &model.Order{
		Side:            side,
		Type:            model.OrderTypeMarket,
		Price:           price,
		TakeProfitPrice: takeProfit,
		StopLossPrice:   stopLoss,
		Volume:          volume,
		Variables:       variables,
	}

	if err := b.book.Open(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// CloseOrder exits an active order through the orderbook.
func (b *Base) CloseOrder(ctx context.Context, order *model.Order) error {
	return b.book.Close(ctx, order)
}

// OnTransaction forwards lifecycle events to analytics, then to the
// concrete strategy.
func (b *Base) OnTransaction(order *model.Order) {
	b.analytics.OnTransaction(order)

	if hook, ok := b.hooks.(TransactionHook); ok {
		hook.OnOrderTransaction(order)
	}
}

// OnEnd finishes the run. Backtests flatten every open position first
// so nothing stays marked-to-market; production shuts the confirmation
// pollers down.
func (b *Base) OnEnd() {
	if b.env.Backtest {
		b.book.CloseAll(context.Background())
	}

	if b.handler != nil {
		b.handler.Shutdown()
	}

	b.analytics.OnEnd()
}

// -----------------------------
// ACCESSORS
// -----------------------------

func (b *Base) ID() string                      { return b.settings.ID }
func (b *Base) IsEnabled() bool                 { return b.settings.Enabled }
func (b *Base) NAV() float64                    { return b.book.NAV() }
func (b *Base) Balance() float64                { return b.book.Balance() }
func (b *Base) Allocation() float64             { return b.settings.Allocation }
func (b *Base) Leverage() float64               { return b.settings.Leverage }
func (b *Base) Orderbook() *orderbook.Orderbook { return b.book }
func (b *Base) Analytics() *analytic.Service    { return b.analytics }
func (b *Base) Tick() *model.Tick               { return b.tick }
func (b *Base) Asset() Asset                    { return b.env.Asset }
func (b *Base) Log() *logrus.Entry              { return b.log }
