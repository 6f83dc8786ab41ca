package orderbook

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"algoengine/src/model"
)

func newBacktestBook(t *testing.T, allocation, leverage float64) *Orderbook {
	t.Helper()

	book, err := New(Options{
		Backtest:   true,
		Symbol:     "BTCUSDT",
		Allocation: allocation,
		Leverage:   leverage,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	return book
}

func tickAt(price float64, date time.Time) model.Tick {
	return model.Tick{IsSimulated: true, Price: price, BidPrice: price, AskPrice: price, Date: date}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Backtest: true, Allocation: 0, Leverage: 1}); err == nil {
		t.Fatal("expected error for zero allocation")
	}
	if _, err := New(Options{Backtest: true, Allocation: 100, Leverage: 0}); err == nil {
		t.Fatal("expected error for zero leverage")
	}
	if _, err := New(Options{Backtest: false, Allocation: 100, Leverage: 1}); err == nil {
		t.Fatal("expected error for production mode without handler")
	}
}

func TestBacktestMarketOpen(t *testing.T) {
	var transactions []*model.Order

	book := newBacktestBook(t, 1000, 1)
	book.onTransaction = func(order *model.Order) { transactions = append(transactions, order) }

	order := &model.Order{
		Side:   model.OrderSideBuy,
		Type:   model.OrderTypeMarket,
		Price:  100,
		Volume: 2,
	}

	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if order.Status != model.OrderStatusOpen {
		t.Fatalf("expected OPEN, got %s", order.Status)
	}
	if order.ID == "" {
		t.Fatal("expected generated order id")
	}
	if order.ExecutedVolume != order.Volume {
		t.Fatalf("expected full fill, got %v", order.ExecutedVolume)
	}
	if got := book.Balance(); got != 800 {
		t.Fatalf("expected balance 800 after margin deduction, got %v", got)
	}
	if len(transactions) != 1 || transactions[0] != order {
		t.Fatalf("expected one transaction callback, got %d", len(transactions))
	}
}

func TestBacktestInsufficientBalance(t *testing.T) {
	book := newBacktestBook(t, 100, 1)

	order := &model.Order{Side: model.OrderSideBuy, Price: 100, Volume: 2}

	err := book.Open(context.Background(), order)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(book.Orders()) != 0 {
		t.Fatal("rejected order must not join the book")
	}
}

func TestBacktestInvalidVolume(t *testing.T) {
	book := newBacktestBook(t, 100, 1)

	if err := book.Open(context.Background(), &model.Order{Price: 10}); !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("expected ErrInvalidVolume, got %v", err)
	}
}

func TestLimitOrderFillsWhenTouched(t *testing.T) {
	book := newBacktestBook(t, 1000, 1)

	order := &model.Order{
		Side:   model.OrderSideBuy,
		Type:   model.OrderTypeLimit,
		Price:  95,
		Volume: 1,
	}

	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if order.Status != model.OrderStatusOpening {
		t.Fatalf("limit order must wait OPENING, got %s", order.Status)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	book.Refresh(tickAt(97, base))
	if order.Status != model.OrderStatusOpening {
		t.Fatalf("tick above limit must not fill, got %s", order.Status)
	}

	book.Refresh(tickAt(94.5, base.Add(time.Minute)))
	if order.Status != model.OrderStatusOpen {
		t.Fatalf("touching tick must fill, got %s", order.Status)
	}
}

func TestTakeProfitAutoClose(t *testing.T) {
	var closed []*model.Order

	book := newBacktestBook(t, 1000, 1)
	book.onTransaction = func(order *model.Order) {
		if order.Status.IsClosed() {
			closed = append(closed, order)
		}
	}

	order := &model.Order{
		Side:            model.OrderSideBuy,
		Type:            model.OrderTypeMarket,
		Price:           100,
		TakeProfitPrice: 103,
		StopLossPrice:   97,
		Volume:          1,
	}

	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	book.Refresh(tickAt(103.5, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	if len(closed) != 1 {
		t.Fatalf("expected one close callback, got %d", len(closed))
	}
	if order.Status != model.OrderStatusClosed {
		t.Fatalf("expected CLOSED, got %s", order.Status)
	}
	if order.ClosePrice != 103 {
		t.Fatalf("take profit must close at the threshold, got %v", order.ClosePrice)
	}
	if got := order.Profit(); got != 3.0 {
		t.Fatalf("expected profit 3.0, got %v", got)
	}
	if got := order.ProfitPercentage(); got != 0.03 {
		t.Fatalf("expected profit percentage 0.03, got %v", got)
	}
	if got := book.Balance(); got != 1003 {
		t.Fatalf("expected balance 1003, got %v", got)
	}
}

func TestStopLossWinsWhenBothCrossed(t *testing.T) {
	book := newBacktestBook(t, 1000, 1)

	order := &model.Order{
		Side:            model.OrderSideBuy,
		Type:            model.OrderTypeMarket,
		Price:           100,
		TakeProfitPrice: 103,
		StopLossPrice:   97,
		Volume:          1,
	}

	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// A tick can cross both thresholds at once when levels invert
	// intraday; the stop-loss must win the tie-break.
	order.TakeProfitPrice = 96

	book.Refresh(tickAt(96.5, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	if order.ClosePrice != order.StopLossPrice {
		t.Fatalf("expected stop-loss close at %v, got %v", order.StopLossPrice, order.ClosePrice)
	}
}

func TestSellSideThresholds(t *testing.T) {
	book := newBacktestBook(t, 1000, 1)

	order := &model.Order{
		Side:            model.OrderSideSell,
		Type:            model.OrderTypeMarket,
		Price:           100,
		TakeProfitPrice: 95,
		StopLossPrice:   105,
		Volume:          1,
	}

	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	book.Refresh(tickAt(94, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))

	if order.Status != model.OrderStatusClosed || order.ClosePrice != 95 {
		t.Fatalf("expected take-profit close at 95, got %s at %v", order.Status, order.ClosePrice)
	}
	if got := order.Profit(); got != 5 {
		t.Fatalf("expected short profit 5, got %v", got)
	}
}

func TestNAVRecomputedFromFirstPrinciples(t *testing.T) {
	book := newBacktestBook(t, 10000, 1)

	order := &model.Order{
		Side:   model.OrderSideBuy,
		Type:   model.OrderTypeMarket,
		Price:  100,
		Volume: 10,
	}
	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		price := 80 + rng.Float64()*40
		book.Refresh(tickAt(price, base.Add(time.Duration(i)*time.Minute)))

		expected := book.Balance()
		for _, active := range book.Orders() {
			if active.Status.IsOpen() {
				expected += active.Price*active.Volume/book.Leverage() + active.MarkToMarket(price)
			}
		}

		if got := book.NAV(); got != expected {
			t.Fatalf("tick %d: nav %v diverged from recomputed %v", i, got, expected)
		}
	}
}

func TestNAVPeakAndDrawdownMonotonic(t *testing.T) {
	book := newBacktestBook(t, 10000, 1)

	order := &model.Order{Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Price: 100, Volume: 10}
	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	previousPeak := book.NAVPeak()
	previousDrawdown := book.MaxDrawdown()

	for i := 0; i < 300; i++ {
		book.Refresh(tickAt(60+rng.Float64()*80, base.Add(time.Duration(i)*time.Minute)))

		peak := book.NAVPeak()
		drawdown := book.MaxDrawdown()

		if peak < previousPeak {
			t.Fatalf("tick %d: nav peak decreased from %v to %v", i, previousPeak, peak)
		}
		if drawdown > previousDrawdown {
			t.Fatalf("tick %d: max drawdown shrank from %v to %v", i, previousDrawdown, drawdown)
		}

		previousPeak = peak
		previousDrawdown = drawdown
	}
}

func TestCleanEvictsFinalizedOrders(t *testing.T) {
	book := newBacktestBook(t, 1000, 1)

	order := &model.Order{Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Price: 100, Volume: 1}
	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	book.Refresh(tickAt(100, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err := book.Close(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(book.Orders()) != 1 {
		t.Fatal("closed order stays active until cleanup")
	}

	book.Clean()

	if len(book.Orders()) != 0 {
		t.Fatal("expected cleanup to evict finalized orders")
	}
	if len(book.History()) != 1 {
		t.Fatal("history must retain the closed order")
	}
	if len(book.ClosedProfits()) != 1 {
		t.Fatal("expected one realized profit entry")
	}
}

func TestCloseAll(t *testing.T) {
	book := newBacktestBook(t, 10000, 1)

	for i := 0; i < 3; i++ {
		order := &model.Order{Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Price: 100, Volume: 1}
		if err := book.Open(context.Background(), order); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	book.Refresh(tickAt(110, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	book.CloseAll(context.Background())

	if open := book.Where(WithStatus(model.OrderStatusOpen)); len(open) != 0 {
		t.Fatalf("expected no open orders, got %d", len(open))
	}
	if got := book.ProfitTotal(); got != 30 {
		t.Fatalf("expected total profit 30, got %v", got)
	}
}

func TestCancelRefundsMargin(t *testing.T) {
	book := newBacktestBook(t, 1000, 1)

	order := &model.Order{Side: model.OrderSideBuy, Type: model.OrderTypeLimit, Price: 95, Volume: 1}
	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := book.Balance(); got != 905 {
		t.Fatalf("expected balance 905, got %v", got)
	}

	if err := book.Cancel(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if order.Status != model.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", order.Status)
	}
	if got := book.Balance(); got != 1000 {
		t.Fatalf("expected refunded balance 1000, got %v", got)
	}
}

func TestWhereFilters(t *testing.T) {
	book := newBacktestBook(t, 10000, 1)

	buy := &model.Order{Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Price: 100, Volume: 1}
	sell := &model.Order{Side: model.OrderSideSell, Type: model.OrderTypeMarket, Price: 100, Volume: 1}

	if err := book.Open(context.Background(), buy); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := book.Open(context.Background(), sell); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	buys := book.Where(WithSide(model.OrderSideBuy), WithStatus(model.OrderStatusOpen))
	if len(buys) != 1 || buys[0] != buy {
		t.Fatalf("expected only the open buy, got %d orders", len(buys))
	}
}

func TestLeverageReducesMargin(t *testing.T) {
	book := newBacktestBook(t, 1000, 10)

	order := &model.Order{Side: model.OrderSideBuy, Type: model.OrderTypeMarket, Price: 100, Volume: 10}
	if err := book.Open(context.Background(), order); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Notional 1000 at 10x leverage locks only 100.
	if got := book.Balance(); got != 900 {
		t.Fatalf("expected balance 900, got %v", got)
	}
}
