package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/gateway"
	"algoengine/src/model"
)

// GatewayHandler is the production execution path. Submissions happen
// on the caller's goroutine; confirmation is watched by one background
// poller per order id, so the tick thread never blocks on the exchange.
type GatewayHandler struct {
	log          *logrus.Entry
	gw           gateway.Gateway
	book         *Orderbook
	pollInterval time.Duration
	pollTimeout  time.Duration

	// pollers maps order id to the cancel func of its active poller.
	// At most one poller lives per order id: a duplicate close call
	// replaces the previous poller instead of racing it.
	pollers sync.Map
	wg      sync.WaitGroup
}

func NewGatewayHandler(gw gateway.Gateway, pollInterval, pollTimeout time.Duration) *GatewayHandler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 70 * time.Second
	}

	return &GatewayHandler{
		log:          logrus.WithField("component", "gateway_handler"),
		gw:           gw,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// Bind attaches the orderbook whose orders this handler resolves. Must
// be called before any order flows through.
func (h *GatewayHandler) Bind(book *Orderbook) {
	h.book = book
}

func (h *GatewayHandler) OpenOrder(ctx context.Context, order *model.Order) error {
	result, err := h.gw.OpenOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("gateway handler open: %w", err)
	}

	order.GatewayID = result.ID

	if result.Status.IsOpen() && result.Filled() {
		h.book.resolveOpened(order, result.AveragePrice, result.ExecutedVolume)
		return nil
	}

	h.spawnPoller(order.ID, func(ctx context.Context) (bool, error) {
		return h.pollOpen(ctx, order)
	})

	return nil
}

func (h *GatewayHandler) CloseOrder(ctx context.Context, order *model.Order) error {
	result, err := h.gw.CloseOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("gateway handler close: %w", err)
	}

	closeLegID := result.ID

	if result.Status.IsOpen() && result.Filled() {
		h.book.resolveClosed(order, result.AveragePrice)
		return nil
	}

	h.spawnPoller(order.ID, func(ctx context.Context) (bool, error) {
		return h.pollClose(ctx, order, closeLegID)
	})

	return nil
}

func (h *GatewayHandler) CancelOrder(ctx context.Context, order *model.Order) error {
	h.stopPoller(order.ID)

	if err := h.gw.CancelOrder(ctx, order); err != nil {
		return fmt.Errorf("gateway handler cancel: %w", err)
	}

	return nil
}

// pollOpen checks the opening leg once. Returns done=true when the
// order reached a final answer.
func (h *GatewayHandler) pollOpen(ctx context.Context, order *model.Order) (bool, error) {
	result, err := h.gw.GetOrder(ctx, order.Symbol, order.GatewayID)
	if err != nil {
		if errors.Is(err, gateway.ErrOrderNotFound) {
			h.book.resolveCancelled(order)
			return true, nil
		}
		return false, err
	}

	switch {
	case result.Status.IsOpen() && result.Filled():
		h.book.resolveOpened(order, result.AveragePrice, result.ExecutedVolume)
		return true, nil
	case result.Status.IsCancelled():
		h.book.resolveCancelled(order)
		return true, nil
	default:
		return false, nil
	}
}

// pollClose checks the opposing market order that flattens the
// position.
func (h *GatewayHandler) pollClose(ctx context.Context, order *model.Order, closeLegID string) (bool, error) {
	result, err := h.gw.GetOrder(ctx, order.Symbol, closeLegID)
	if err != nil {
		return false, err
	}

	switch {
	case result.Status.IsOpen() && result.Filled():
		h.book.resolveClosed(order, result.AveragePrice)
		return true, nil
	case result.Status.IsCancelled():
		h.log.WithFields(logrus.Fields{
			"order_id":     order.ID,
			"close_leg_id": closeLegID,
		}).Error("Close leg was cancelled by the exchange, order stays CLOSING for reconciliation")
		return true, nil
	default:
		return false, nil
	}
}

type pollerHandle struct {
	cancel context.CancelFunc
}

// spawnPoller starts the background confirmation loop for an order id,
// replacing any poller already running for that id.
func (h *GatewayHandler) spawnPoller(orderID string, poll func(ctx context.Context) (bool, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), h.pollTimeout)
	handle := &pollerHandle{cancel: cancel}

	if previous, loaded := h.pollers.Swap(orderID, handle); loaded {
		previous.(*pollerHandle).cancel()
	}

	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer cancel()
		defer h.pollers.CompareAndDelete(orderID, handle)

		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					h.log.WithField("order_id", orderID).Warn(
						"Order confirmation timed out, state left for startup reconciliation")
				}
				return
			case <-ticker.C:
				done, err := poll(ctx)
				if err != nil {
					h.log.WithError(err).WithField("order_id", orderID).Warn("Order poll failed")
					continue
				}
				if done {
					return
				}
			}
		}
	}()
}

func (h *GatewayHandler) stopPoller(orderID string) {
	if handle, loaded := h.pollers.LoadAndDelete(orderID); loaded {
		handle.(*pollerHandle).cancel()
	}
}

// Shutdown cancels every in-flight poller and waits for them to exit.
// Unconfirmed orders remain OPENING/CLOSING and are reconciled on the
// next startup.
func (h *GatewayHandler) Shutdown() {
	h.pollers.Range(func(_, value any) bool {
		value.(*pollerHandle).cancel()
		return true
	})

	h.wg.Wait()
}

// Reconcile resolves orders left in flight by a previous run against
// the exchange's view.
func (h *GatewayHandler) Reconcile(ctx context.Context, orders []*model.Order) {
	for _, order := range orders {
		if order.Status.IsFinal() || order.GatewayID == "" {
			continue
		}

		result, err := h.gw.GetOrder(ctx, order.Symbol, order.GatewayID)
		if err != nil {
			h.log.WithError(err).WithField("order_id", order.ID).Error("Reconciliation lookup failed")
			continue
		}

		switch order.Status {
		case model.OrderStatusOpening:
			if result.Status.IsOpen() && result.Filled() {
				h.book.resolveOpened(order, result.AveragePrice, result.ExecutedVolume)
			} else if result.Status.IsCancelled() {
				h.book.resolveCancelled(order)
			}
		case model.OrderStatusClosing:
			// The close leg id is not persisted across runs; flag it
			// for manual review instead of guessing.
			h.log.WithFields(logrus.Fields{
				"order_id":   order.ID,
				"gateway_id": order.GatewayID,
			}).Warn("Order stuck CLOSING after restart, manual reconciliation required")
		}
	}
}
