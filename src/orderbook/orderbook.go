package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"algoengine/src/model"
)

var (
	ErrInsufficientBalance = errors.New("orderbook: insufficient balance")
	ErrInvalidVolume       = errors.New("orderbook: volume must be positive")
	ErrOrderNotActive      = errors.New("orderbook: order is not active")
)

// ExecutionHandler routes order operations to the exchange in
// production mode. Backtests never construct one.
type ExecutionHandler interface {
	OpenOrder(ctx context.Context, order *model.Order) error
	CloseOrder(ctx context.Context, order *model.Order) error
	CancelOrder(ctx context.Context, order *model.Order) error
}

// TransactionFunc observes order lifecycle events. In backtest mode it
// fires synchronously on the tick thread; in production it fires from
// the execution handler's polling goroutine.
type TransactionFunc func(order *model.Order)

type Options struct {
	Backtest      bool
	Symbol        string
	Allocation    float64
	Leverage      float64
	Handler       ExecutionHandler
	OnTransaction TransactionFunc
	Logger        *logrus.Entry
}

// Orderbook owns every order a strategy creates and all of its money
// accounting. It is single-writer: only the strategy's tick thread and,
// in production, handler resolutions mutate it, serialized by one lock.
type Orderbook struct {
	mu sync.Mutex

	log           *logrus.Entry
	backtest      bool
	symbol        string
	allocation    float64
	leverage      float64
	balance       float64
	navPeak       float64
	maxDrawdown   float64
	exposure      float64
	profitTotal   float64
	orders        []*model.Order
	history       []*model.Order
	tick          *model.Tick
	handler       ExecutionHandler
	onTransaction TransactionFunc
	now           func() time.Time
}

func New(options Options) (*Orderbook, error) {
	if options.Allocation <= 0 {
		return nil, fmt.Errorf("orderbook: allocation must be positive, got %v", options.Allocation)
	}

	if options.Leverage <= 0 {
		return nil, fmt.Errorf("orderbook: leverage must be positive, got %v", options.Leverage)
	}

	if !options.Backtest && options.Handler == nil {
		return nil, errors.New("orderbook: production mode requires an execution handler")
	}

	logger := options.Logger
	if logger == nil {
		logger = logrus.WithField("component", "orderbook")
	}

	return &Orderbook{
		log:           logger,
		backtest:      options.Backtest,
		symbol:        options.Symbol,
		allocation:    options.Allocation,
		leverage:      options.Leverage,
		balance:       options.Allocation,
		navPeak:       options.Allocation,
		handler:       options.Handler,
		onTransaction: options.OnTransaction,
		now:           time.Now,
	}, nil
}

// margin is the balance a position locks while open.
func (b *Orderbook) margin(order *model.Order) float64 {
	return order.Price * order.Volume / b.leverage
}

// Open validates and registers a new order. Backtest MARKET orders fill
// instantly at the requested price; LIMIT orders wait for a touching
// tick. In production the order joins the book before the submission is
// delegated, so a callback fired by an instant confirmation already
// sees it in Where; a failed submission rolls the registration back.
func (b *Orderbook) Open(ctx context.Context, order *model.Order) error {
	if order.Volume <= 0 {
		return ErrInvalidVolume
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Symbol == "" {
		order.Symbol = b.symbol
	}
	order.Status = model.OrderStatusOpening
	order.CreatedAt = b.now()

	if !b.backtest {
		b.mu.Lock()
		required := b.margin(order)
		if required > b.balance {
			b.log.WithField("order_id", order.ID).Warn("Order margin exceeds tracked balance")
		}
		b.balance -= required
		b.orders = append(b.orders, order)
		b.mu.Unlock()

		if err := b.handler.OpenOrder(ctx, order); err != nil {
			b.mu.Lock()
			b.balance += required
			b.remove(order)
			b.mu.Unlock()

			return fmt.Errorf("orderbook open: %w", err)
		}

		return nil
	}

	var fired *model.Order

	b.mu.Lock()
	required := b.margin(order)
	if required > b.balance {
		b.mu.Unlock()
		return fmt.Errorf("%w: need %v, have %v", ErrInsufficientBalance, required, b.balance)
	}

	b.balance -= required

	if order.Type == model.OrderTypeLimit {
		b.orders = append(b.orders, order)
		b.mu.Unlock()
		return nil
	}

	if err := order.TransitionTo(model.OrderStatusOpen); err != nil {
		b.balance += required
		b.mu.Unlock()
		return err
	}

	openedAt := b.now()
	order.OpenedAt = &openedAt
	order.ExecutedVolume = order.Volume
	b.orders = append(b.orders, order)
	fired = order
	b.mu.Unlock()

	b.fireTransaction(fired)

	return nil
}

// Close exits an order at the current tick price (backtest) or through
// an opposing market order (production).
func (b *Orderbook) Close(ctx context.Context, order *model.Order) error {
	if !b.contains(order) {
		return ErrOrderNotActive
	}

	if b.backtest {
		b.mu.Lock()
		if b.tick == nil {
			b.mu.Unlock()
			return errors.New("orderbook close: no tick received yet")
		}
		price := b.tick.Price
		b.mu.Unlock()

		return b.closeAt(order, price)
	}

	if err := order.TransitionTo(model.OrderStatusClosing); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Error("Refusing close on illegal transition")
		return err
	}

	if err := b.handler.CloseOrder(ctx, order); err != nil {
		return fmt.Errorf("orderbook close: %w", err)
	}

	return nil
}

// closeAt settles an order at the given price, crediting margin plus
// realized profit back to the balance.
func (b *Orderbook) closeAt(order *model.Order, price float64) error {
	b.mu.Lock()

	if order.Status == model.OrderStatusOpen {
		if err := order.TransitionTo(model.OrderStatusClosing); err != nil {
			b.mu.Unlock()
			return err
		}
	}

	if err := order.TransitionTo(model.OrderStatusClosed); err != nil {
		b.mu.Unlock()
		b.log.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Error("Refusing settle on illegal transition")
		return err
	}

	order.ClosePrice = price
	closedAt := b.now()
	order.ClosedAt = &closedAt

	profit := order.Profit()
	b.balance += b.margin(order) + profit
	b.profitTotal += profit
	b.history = append(b.history, order)
	b.mu.Unlock()

	b.fireTransaction(order)

	return nil
}

// resolveOpened settles a gateway confirmation of an opening order.
// Called from the execution handler's polling goroutine.
func (b *Orderbook) resolveOpened(order *model.Order, averagePrice, executedVolume float64) {
	b.mu.Lock()

	if err := order.TransitionTo(model.OrderStatusOpen); err != nil {
		b.mu.Unlock()
		b.log.WithError(err).WithField("order_id", order.ID).Error("Refusing open resolution on illegal transition")
		return
	}

	if averagePrice > 0 {
		order.Price = averagePrice
	}
	if executedVolume > 0 {
		order.ExecutedVolume = executedVolume
	} else {
		order.ExecutedVolume = order.Volume
	}

	openedAt := b.now()
	order.OpenedAt = &openedAt
	b.mu.Unlock()

	b.fireTransaction(order)
}

// resolveClosed settles a gateway confirmation of a closing order.
func (b *Orderbook) resolveClosed(order *model.Order, closePrice float64) {
	if err := b.closeAt(order, closePrice); err != nil {
		b.log.WithError(err).WithField("order_id", order.ID).Error("Close resolution failed")
	}
}

// resolveCancelled settles a gateway-side cancellation discovered by
// polling.
func (b *Orderbook) resolveCancelled(order *model.Order) {
	b.mu.Lock()

	if order.Status.IsFinal() {
		b.mu.Unlock()
		return
	}

	if err := order.TransitionTo(model.OrderStatusCancelled); err != nil {
		b.mu.Unlock()
		b.log.WithError(err).WithField("order_id", order.ID).Error("Refusing cancel resolution on illegal transition")
		return
	}

	b.balance += b.margin(order)
	b.history = append(b.history, order)
	b.mu.Unlock()

	b.fireTransaction(order)
}

// Cancel aborts an order that has not closed, refunding its margin.
func (b *Orderbook) Cancel(ctx context.Context, order *model.Order) error {
	if !b.contains(order) {
		return ErrOrderNotActive
	}

	if !b.backtest {
		if err := b.handler.CancelOrder(ctx, order); err != nil {
			return fmt.Errorf("orderbook cancel: %w", err)
		}
	}

	b.mu.Lock()
	if err := order.TransitionTo(model.OrderStatusCancelled); err != nil {
		b.mu.Unlock()
		return err
	}

	b.balance += b.margin(order)
	b.history = append(b.history, order)
	b.mu.Unlock()

	b.fireTransaction(order)

	return nil
}

// Refresh is called once per tick. It revalues the book from first
// principles and, in backtest mode, simulates LIMIT fills and
// take-profit/stop-loss exits.
func (b *Orderbook) Refresh(tick model.Tick) {
	b.mu.Lock()
	b.tick = &tick
	b.mu.Unlock()

	if b.backtest {
		b.fillPendingLimitOrders(tick)
		b.applyThresholds(tick)
	}

	b.revalue(tick.Price)
}

// revalue recomputes nav, exposure, peak and drawdown from scratch.
// Accumulating deltas instead would drift after enough float churn.
func (b *Orderbook) revalue(price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	nav := b.balance
	exposure := 0.0

	for _, order := range b.orders {
		if !order.Status.IsOpen() {
			continue
		}

		nav += b.margin(order) + order.MarkToMarket(price)
		exposure += price * order.Volume
	}

	b.exposure = exposure

	if nav > b.navPeak {
		b.navPeak = nav
	}

	if b.navPeak > 0 {
		drawdown := (nav - b.navPeak) / b.navPeak
		if drawdown < b.maxDrawdown {
			b.maxDrawdown = drawdown
		}
	}
}

// fillPendingLimitOrders promotes OPENING limit orders whose price was
// touched by the tick.
func (b *Orderbook) fillPendingLimitOrders(tick model.Tick) {
	var fired []*model.Order

	b.mu.Lock()
	for _, order := range b.orders {
		if order.Status != model.OrderStatusOpening || order.Type != model.OrderTypeLimit {
			continue
		}

		touched := (order.Side == model.OrderSideBuy && tick.Price <= order.Price) ||
			(order.Side == model.OrderSideSell && tick.Price >= order.Price)

		if !touched {
			continue
		}

		if err := order.TransitionTo(model.OrderStatusOpen); err != nil {
			continue
		}

		openedAt := tick.Date
		order.OpenedAt = &openedAt
		order.ExecutedVolume = order.Volume
		fired = append(fired, order)
	}
	b.mu.Unlock()

	for _, order := range fired {
		b.fireTransaction(order)
	}
}

// applyThresholds closes OPEN orders that crossed their exit levels.
// When both levels are crossed by the same tick the stop-loss wins:
// capital preservation beats profit taking.
func (b *Orderbook) applyThresholds(tick model.Tick) {
	type exit struct {
		order *model.Order
		price float64
	}

	var exits []exit

	b.mu.Lock()
	for _, order := range b.orders {
		if !order.Status.IsOpen() {
			continue
		}

		stopHit := b.stopLossCrossed(order, tick.Price)
		profitHit := b.takeProfitCrossed(order, tick.Price)

		switch {
		case stopHit:
			exits = append(exits, exit{order: order, price: order.StopLossPrice})
		case profitHit:
			exits = append(exits, exit{order: order, price: order.TakeProfitPrice})
		}
	}
	b.mu.Unlock()

	for _, e := range exits {
		if err := b.closeAt(e.order, e.price); err != nil {
			b.log.WithError(err).WithField("order_id", e.order.ID).Error("Threshold close failed")
		}
	}
}

func (b *Orderbook) stopLossCrossed(order *model.Order, price float64) bool {
	if order.StopLossPrice <= 0 {
		return false
	}

	if order.Side == model.OrderSideBuy {
		return price <= order.StopLossPrice
	}

	return price >= order.StopLossPrice
}

func (b *Orderbook) takeProfitCrossed(order *model.Order, price float64) bool {
	if order.TakeProfitPrice <= 0 {
		return false
	}

	if order.Side == model.OrderSideBuy {
		return price >= order.TakeProfitPrice
	}

	return price <= order.TakeProfitPrice
}

// Clean evicts finalized orders from the active set. Runs on daily
// rollovers; history keeps everything for analytics.
func (b *Orderbook) Clean() {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := b.orders[:0]
	for _, order := range b.orders {
		if !order.Status.IsFinal() {
			active = append(active, order)
		}
	}
	b.orders = active
}

// CloseAll closes every open order at the current tick. Used at the end
// of a backtest so nothing stays marked-to-market.
func (b *Orderbook) CloseAll(ctx context.Context) {
	for _, order := range b.Where(WithStatus(model.OrderStatusOpen)) {
		if err := b.Close(ctx, order); err != nil {
			b.log.WithError(err).WithField("order_id", order.ID).Error("Final close failed")
		}
	}
}

// remove drops an order from the active set. Caller holds b.mu.
func (b *Orderbook) remove(order *model.Order) {
	for i, active := range b.orders {
		if active == order {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return
		}
	}
}

func (b *Orderbook) contains(order *model.Order) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, active := range b.orders {
		if active == order {
			return true
		}
	}

	return false
}

func (b *Orderbook) fireTransaction(order *model.Order) {
	if order == nil || b.onTransaction == nil {
		return
	}

	b.onTransaction(order)
}

// -----------------------------
// QUERIES
// -----------------------------

type Filter func(*model.Order) bool

func WithSide(side model.OrderSide) Filter {
	return func(order *model.Order) bool { return order.Side == side }
}

func WithStatus(status model.OrderStatus) Filter {
	return func(order *model.Order) bool { return order.Status == status }
}

// Where returns the active orders matching every filter.
func (b *Orderbook) Where(filters ...Filter) []*model.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []*model.Order

	for _, order := range b.orders {
		ok := true
		for _, filter := range filters {
			if !filter(order) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, order)
		}
	}

	return matched
}

func (b *Orderbook) NAV() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	nav := b.balance
	price := 0.0
	if b.tick != nil {
		price = b.tick.Price
	}

	for _, order := range b.orders {
		if !order.Status.IsOpen() {
			continue
		}
		nav += b.margin(order) + order.MarkToMarket(price)
	}

	return nav
}

func (b *Orderbook) Balance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

func (b *Orderbook) Allocation() float64 { return b.allocation }
func (b *Orderbook) Leverage() float64   { return b.leverage }

func (b *Orderbook) Exposure() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exposure
}

func (b *Orderbook) NAVPeak() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navPeak
}

func (b *Orderbook) MaxDrawdown() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxDrawdown
}

func (b *Orderbook) ProfitTotal() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profitTotal
}

// Orders returns a copy of the active set.
func (b *Orderbook) Orders() []*model.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := make([]*model.Order, len(b.orders))
	copy(orders, b.orders)
	return orders
}

// History returns every finalized order seen so far.
func (b *Orderbook) History() []*model.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := make([]*model.Order, len(b.history))
	copy(history, b.history)
	return history
}

// ClosedProfits returns the realized profit series for metric
// computation.
func (b *Orderbook) ClosedProfits() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	profits := make([]float64, 0, len(b.history))
	for _, order := range b.history {
		if order.Status.IsClosed() {
			profits = append(profits, order.Profit())
		}
	}

	return profits
}
