package asset

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/gateway"
	"algoengine/src/model"
	"algoengine/src/queue"
	"algoengine/src/strategy"
)

// SetupOptions is the run-wide wiring an asset passes down to its
// strategies.
type SetupOptions struct {
	Backtest   bool
	BacktestID string
	Commands   *queue.Queue
	Events     *queue.Queue
}

// Asset binds one tradable symbol on one gateway to the strategies
// trading it. It owns the gateway connection and fans every tick out to
// its enabled strategies in registration order.
type Asset struct {
	log  *logrus.Entry
	name string

	symbol      string
	gatewayName string
	gw          gateway.Gateway

	strategies []strategy.Strategy

	historicalFilling atomic.Bool
	lastTickAt        atomic.Int64
}

func New(name, symbol, gatewayName string, strategies ...strategy.Strategy) *Asset {
	return &Asset{
		log:         logrus.WithFields(logrus.Fields{"component": "asset", "asset": name}),
		name:        name,
		symbol:      symbol,
		gatewayName: gatewayName,
		strategies:  strategies,
	}
}

// Setup constructs the gateway, drops disabled strategies and sets up
// the survivors. Called once before any tick flows.
func (a *Asset) Setup(options SetupOptions) error {
	if options.Commands == nil || options.Events == nil {
		return fmt.Errorf("asset %s: commands and events queues are required", a.name)
	}

	if options.Backtest && options.BacktestID == "" {
		return fmt.Errorf("asset %s: backtest id is required when backtesting", a.name)
	}

	gw, err := gateway.New(a.gatewayName)
	if err != nil {
		return fmt.Errorf("asset %s: %w", a.name, err)
	}
	a.gw = gw

	enabled := a.strategies[:0]
	for _, s := range a.strategies {
		if !s.IsEnabled() {
			a.log.WithField("strategy_id", s.ID()).Warn("Strategy is disabled, skipping")
			continue
		}
		enabled = append(enabled, s)
	}
	a.strategies = enabled

	if len(a.strategies) == 0 {
		return errors.New("asset " + a.name + ": no enabled strategies")
	}

	env := strategy.Environment{
		Backtest:   options.Backtest,
		BacktestID: options.BacktestID,
		Asset:      a,
		Commands:   options.Commands,
		Events:     options.Events,
	}

	for _, s := range a.strategies {
		if err := s.Setup(env); err != nil {
			return fmt.Errorf("asset %s: %w", a.name, err)
		}
	}

	return nil
}

// OnTick fans one tick out to every enabled strategy, in order.
func (a *Asset) OnTick(tick model.Tick) {
	a.lastTickAt.Store(time.Now().UnixNano())

	for _, s := range a.strategies {
		s.OnTick(tick)
	}
}

// OnTransaction fans an order lifecycle event out to every strategy.
func (a *Asset) OnTransaction(order *model.Order) {
	for _, s := range a.strategies {
		s.OnTransaction(order)
	}
}

// OnEnd finishes the run for every strategy.
func (a *Asset) OnEnd() {
	for _, s := range a.strategies {
		s.OnEnd()
	}
}

// StartHistoricalFilling marks the asset as replaying history, which
// suppresses live order placement in the strategies.
func (a *Asset) StartHistoricalFilling() {
	a.historicalFilling.Store(true)
}

func (a *Asset) StopHistoricalFilling() {
	a.historicalFilling.Store(false)
}

// Verify runs the gateway production preflight for this asset's symbol:
// credential and symbol checks, exchange filter download, and pushing
// the strategies' leverage to the venue.
func (a *Asset) Verify(ctx context.Context) error {
	if err := a.gw.Verify(ctx, a.symbol); err != nil {
		return fmt.Errorf("asset %s: %w", a.name, err)
	}

	if err := a.gw.Setup(ctx, a.symbol); err != nil {
		return fmt.Errorf("asset %s: %w", a.name, err)
	}

	if leverage := a.maxLeverage(); leverage > 0 {
		if err := a.gw.SetLeverage(ctx, a.symbol, leverage); err != nil {
			return fmt.Errorf("asset %s: %w", a.name, err)
		}
	}

	return nil
}

// maxLeverage is the highest leverage any of the asset's strategies
// trades with. The venue holds one leverage per symbol, so the most
// aggressive strategy wins.
func (a *Asset) maxLeverage() int {
	max := 0.0
	for _, s := range a.strategies {
		leveraged, ok := s.(interface{ Leverage() float64 })
		if !ok {
			continue
		}
		if l := leveraged.Leverage(); l > max {
			max = l
		}
	}
	return int(max)
}

// -----------------------------
// ACCESSORS
// -----------------------------

func (a *Asset) Name() string                    { return a.name }
func (a *Asset) Symbol() string                  { return a.symbol }
func (a *Asset) Gateway() gateway.Gateway        { return a.gw }
func (a *Asset) IsHistoricalFilling() bool       { return a.historicalFilling.Load() }
func (a *Asset) Strategies() []strategy.Strategy { return a.strategies }

// LastTickAt returns when the asset last saw a tick, zero before the
// first one. The production supervisor and status server read it.
func (a *Asset) LastTickAt() time.Time {
	nanos := a.lastTickAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
