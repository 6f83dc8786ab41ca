package model

import (
	"errors"
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL, the direction profit moves
// with price.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// Opposite returns the side used to flatten a position on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
)

type OrderStatus string

const (
	OrderStatusOpening   OrderStatus = "OPENING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusClosing   OrderStatus = "CLOSING"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsOpen() bool      { return s == OrderStatusOpen }
func (s OrderStatus) IsClosed() bool    { return s == OrderStatusClosed }
func (s OrderStatus) IsCancelled() bool { return s == OrderStatusCancelled }

// IsFinal reports whether the order can never change state again.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusClosed || s == OrderStatusCancelled
}

var ErrInvalidTransition = errors.New("invalid order status transition")

// transitions is the full status graph. OPENING -> OPEN -> CLOSING ->
// CLOSED, with cancellation allowed from OPENING and OPEN only.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusOpening: {OrderStatusOpen, OrderStatusCancelled},
	OrderStatusOpen:    {OrderStatusClosing, OrderStatusClosed, OrderStatusCancelled},
	OrderStatusClosing: {OrderStatusClosed},
}

// Trade is a single fill reported by the gateway for an order.
type Trade struct {
	ID     string    `json:"id"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Fee    float64   `json:"fee"`
	Date   time.Time `json:"date"`
}

// Order is owned exclusively by the orderbook that created it until it
// reaches a final status; after CLOSED it is retained, immutable, for
// profit accounting.
type Order struct {
	ID              string         `json:"id"`
	GatewayID       string         `json:"gateway_id,omitempty"`
	Symbol          string         `json:"symbol"`
	Side            OrderSide      `json:"side"`
	Type            OrderType      `json:"type"`
	Status          OrderStatus    `json:"status"`
	Price           float64        `json:"price"`
	ClosePrice      float64        `json:"close_price"`
	TakeProfitPrice float64        `json:"take_profit_price"`
	StopLossPrice   float64        `json:"stop_loss_price"`
	Volume          float64        `json:"volume"`
	ExecutedVolume  float64        `json:"executed_volume"`
	Variables       map[string]any `json:"variables,omitempty"`
	Trades          []Trade        `json:"trades,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	OpenedAt        *time.Time     `json:"opened_at,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
}

// TransitionTo moves the order along the status graph, refusing edges the
// graph does not define.
func (o *Order) TransitionTo(next OrderStatus) error {
	for _, allowed := range transitions[o.Status] {
		if allowed == next {
			o.Status = next
			return nil
		}
	}

	return ErrInvalidTransition
}

// Profit is the realized profit of a closed order, signed by side.
func (o *Order) Profit() float64 {
	return (o.ClosePrice - o.Price) * o.Volume * o.Side.Sign()
}

// ProfitPercentage is profit relative to the order notional. Zero when
// the notional is zero.
func (o *Order) ProfitPercentage() float64 {
	notional := o.Price * o.Volume
	if notional == 0 {
		return 0
	}

	return o.Profit() / notional
}

// MarkToMarket values the open position against price, signed by side.
func (o *Order) MarkToMarket(price float64) float64 {
	return (price - o.Price) * o.Volume * o.Side.Sign()
}
