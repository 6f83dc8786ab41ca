package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"algoengine/src/model"
)

var (
	ErrOrderNotFound  = errors.New("gateway: order not found")
	ErrSymbolNotFound = errors.New("gateway: symbol not found")
)

// KlinesFunc receives one page of klines during paginated downloads.
type KlinesFunc func(klines []Kline) error

// StreamFunc receives every tick adapted from the live stream.
type StreamFunc func(tick model.Tick)

// Gateway is the exchange boundary. Backtests never touch it after the
// initial kline download; production routes every order through it.
type Gateway interface {
	Name() string

	// Setup resolves symbol metadata (precision, filters) and must be
	// called before any trading operation.
	Setup(ctx context.Context, symbol string) error

	// Klines downloads candles page by page for [from, to), invoking fn
	// per page in chronological order.
	Klines(ctx context.Context, symbol string, timeframe model.Timeframe, from, to time.Time, fn KlinesFunc) error

	// Stream delivers live ticks until ctx is cancelled or the
	// connection drops, in which case it returns for the caller to
	// reconnect.
	Stream(ctx context.Context, streams []string, fn StreamFunc) error

	OpenOrder(ctx context.Context, order *model.Order) (*Order, error)
	CloseOrder(ctx context.Context, order *model.Order) (*Order, error)
	CancelOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, symbol, gatewayID string) (*Order, error)
	GetOrders(ctx context.Context, symbol string) ([]Order, error)

	Account(ctx context.Context) (*Account, error)
	SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	TradingFees(ctx context.Context, symbol string) (*TradingFees, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// Verify is the production preflight: credentials valid, symbol
	// tradable, account reachable.
	Verify(ctx context.Context, symbol string) error
}

// Factory builds a gateway from its environment configuration.
type Factory func() (Gateway, error)

var registry = map[string]Factory{}

// Register makes a gateway constructor available by name. Gateways are
// compiled in; there is no dynamic loading.
func Register(name string, factory Factory) {
	registry[name] = factory
}

func New(name string) (Gateway, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q is not registered", name)
	}

	return factory()
}
