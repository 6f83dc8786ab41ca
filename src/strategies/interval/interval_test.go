package interval

import (
	"context"
	"testing"
	"time"

	"algoengine/src/gateway"
	"algoengine/src/model"
	"algoengine/src/orderbook"
	"algoengine/src/queue"
	"algoengine/src/strategy"
)

// fillingGateway confirms every order instantly at the requested price.
type fillingGateway struct {
	gateway.Gateway

	opened     int
	closed     int
	lastVolume float64
}

func (g *fillingGateway) Name() string { return "filling" }

func (g *fillingGateway) OpenOrder(_ context.Context, order *model.Order) (*gateway.Order, error) {
	g.opened++
	g.lastVolume = order.Volume
	return &gateway.Order{
		ID:             "gw-open",
		Symbol:         order.Symbol,
		Side:           order.Side,
		Status:         model.OrderStatusOpen,
		AveragePrice:   order.Price,
		Volume:         order.Volume,
		ExecutedVolume: order.Volume,
	}, nil
}

func (g *fillingGateway) CloseOrder(_ context.Context, order *model.Order) (*gateway.Order, error) {
	g.closed++
	return &gateway.Order{
		ID:             "gw-close",
		Symbol:         order.Symbol,
		Side:           order.Side.Opposite(),
		Status:         model.OrderStatusOpen,
		AveragePrice:   order.Price,
		Volume:         order.Volume,
		ExecutedVolume: order.Volume,
	}, nil
}

type fakeAsset struct {
	gw                gateway.Gateway
	historicalFilling bool
}

func (a *fakeAsset) Name() string              { return "btc" }
func (a *fakeAsset) Symbol() string            { return "BTCUSDT" }
func (a *fakeAsset) Gateway() gateway.Gateway  { return a.gw }
func (a *fakeAsset) IsHistoricalFilling() bool { return a.historicalFilling }

func newLiveStrategy(t *testing.T, settings Settings) (*Strategy, *fillingGateway) {
	t.Helper()

	gw := &fillingGateway{}
	s := New(strategy.Settings{ID: "interval", Enabled: true, Allocation: 10000, Leverage: 1}, settings)

	env := strategy.Environment{
		Backtest: false,
		Asset:    &fakeAsset{gw: gw},
		Commands: queue.NewWithCapacity(1024),
		Events:   queue.NewWithCapacity(16),
	}

	if err := s.Setup(env); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	return s, gw
}

func liveTick(price float64, date time.Time) model.Tick {
	return model.Tick{Price: price, Date: date}
}

func openOrders(s *Strategy) []*model.Order {
	return s.Orderbook().Where(orderbook.WithStatus(model.OrderStatusOpen))
}

func TestOpensOrderOnFirstMinuteInLiveMode(t *testing.T) {
	s, gw := newLiveStrategy(t, Settings{IntervalMinutes: 10})

	start := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	s.OnTick(liveTick(100, start))
	s.OnTick(liveTick(100, start.Add(time.Minute)))

	if gw.opened != 1 {
		t.Fatalf("expected one gateway open, got %d", gw.opened)
	}

	orders := openOrders(s)
	if len(orders) != 1 {
		t.Fatalf("expected one open order, got %d", len(orders))
	}
	if orders[0].TakeProfitPrice != 102 || orders[0].StopLossPrice != 99 {
		t.Fatalf("unexpected exit levels: %+v", orders[0])
	}
}

func TestRespectsInterval(t *testing.T) {
	s, gw := newLiveStrategy(t, Settings{IntervalMinutes: 10})

	start := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	s.OnTick(liveTick(100, start))
	s.OnTick(liveTick(100, start.Add(time.Minute)))
	s.OnTick(liveTick(100, start.Add(2*time.Minute)))
	s.OnTick(liveTick(100, start.Add(3*time.Minute)))

	if gw.opened != 1 {
		t.Fatalf("expected a single open inside the interval, got %d", gw.opened)
	}
}

func TestClosesExistingOrdersBeforeReopening(t *testing.T) {
	s, gw := newLiveStrategy(t, Settings{IntervalMinutes: 10})

	start := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	s.OnTick(liveTick(100, start))
	s.OnTick(liveTick(100, start.Add(time.Minute)))

	// Past the interval the old order is closed and a new one opened.
	s.OnTick(liveTick(100, start.Add(11*time.Minute)))

	if gw.closed != 1 {
		t.Fatalf("expected one gateway close, got %d", gw.closed)
	}
	if gw.opened != 2 {
		t.Fatalf("expected a second open, got %d", gw.opened)
	}

	if len(openOrders(s)) != 1 {
		t.Fatalf("expected exactly one open order, got %d", len(openOrders(s)))
	}
	if len(s.Orderbook().History()) != 1 {
		t.Fatalf("expected one closed order in history, got %d", len(s.Orderbook().History()))
	}
}

func TestSessionSizingScalesVolume(t *testing.T) {
	s, gw := newLiveStrategy(t, Settings{IntervalMinutes: 1, SessionSizing: true})

	// Tuesday 15:00 UTC is 10:00 in New York, inside the US session.
	start := time.Date(2025, 3, 4, 15, 0, 30, 0, time.UTC)
	s.OnTick(liveTick(100, start))
	s.OnTick(liveTick(100, start.Add(time.Minute)))

	if gw.opened != 1 {
		t.Fatalf("expected one gateway open, got %d", gw.opened)
	}

	// 10000 / 100 * 0.01 scaled by the US session multiplier of 1.25.
	expected := 10000.0 / 100 * 0.01 * 1.25
	if diff := gw.lastVolume - expected; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected volume %v, got %v", expected, gw.lastVolume)
	}
}

func TestSessionSizingBlocksNoTradeWindow(t *testing.T) {
	s, gw := newLiveStrategy(t, Settings{IntervalMinutes: 1, SessionSizing: true})

	// Saturday midday in New York sits inside the no-trade window.
	start := time.Date(2025, 3, 8, 17, 0, 30, 0, time.UTC)
	s.OnTick(liveTick(100, start))
	s.OnTick(liveTick(100, start.Add(time.Minute)))

	if gw.opened != 0 {
		t.Fatal("no orders expected inside the no-trade window")
	}
}

func TestStaysIdleOnSimulatedTicks(t *testing.T) {
	s, gw := newLiveStrategy(t, Settings{IntervalMinutes: 1})

	start := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	s.OnTick(model.Tick{IsSimulated: true, Price: 100, Date: start})
	s.OnTick(model.Tick{IsSimulated: true, Price: 100, Date: start.Add(time.Minute)})

	if gw.opened != 0 {
		t.Fatal("no orders expected on simulated ticks")
	}
}
