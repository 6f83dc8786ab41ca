package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"algoengine/src/analytic"
	"algoengine/src/horizon"
	"algoengine/src/model"
	"algoengine/src/queue"
)

// FunctionBacktestCreate registers a new backtest record before the
// first tick is replayed.
const FunctionBacktestCreate = "backtest_create"

// Reporter is the slice of the Horizon client the worker dispatches to.
type Reporter interface {
	CreateOrder(ctx context.Context, strategyID, backtestID string, order *model.Order) error
	CreateSnapshot(ctx context.Context, strategyID, backtestID string, snapshot model.Snapshot) error
	CreateBacktest(ctx context.Context, backtest horizon.Backtest) error
	UpdateBacktest(ctx context.Context, backtestID, status string) error
}

// Worker drains the commands queue and turns EXECUTE envelopes into
// reporting API calls. One worker runs per engine process; strategies
// and analytics never block on reporting latency.
type Worker struct {
	log      *logrus.Entry
	queue    *queue.Queue
	reporter Reporter
	done     chan struct{}
}

func NewWorker(q *queue.Queue, reporter Reporter) *Worker {
	return &Worker{
		log:      logrus.WithField("component", "commands"),
		queue:    q,
		reporter: reporter,
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Wait blocks until the worker has stopped.
func (w *Worker) Wait() {
	<-w.done
}

// Kill asks the worker to drain the queue and stop.
func (w *Worker) Kill() {
	w.queue.Put(queue.Envelope{Command: queue.CommandKill})
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		envelope, ok := w.queue.Get()
		if !ok {
			return
		}

		if envelope.Command == queue.CommandKill {
			w.drain()
			return
		}

		w.dispatch(envelope)
	}
}

// drain processes everything already queued, then stops.
func (w *Worker) drain() {
	for {
		envelope, ok := w.queue.TryGet()
		if !ok {
			return
		}
		if envelope.Command == queue.CommandKill {
			continue
		}
		w.dispatch(envelope)
	}
}

func (w *Worker) dispatch(envelope queue.Envelope) {
	if err := w.execute(envelope); err != nil {
		w.log.WithError(err).WithField("function", envelope.Function).Error("Command failed, message dropped")
	}
}

func (w *Worker) execute(envelope queue.Envelope) error {
	ctx := context.Background()

	switch envelope.Function {
	case analytic.FunctionOrderCreate:
		order, ok := envelope.Args["order"].(*model.Order)
		if !ok {
			return fmt.Errorf("order_create: bad order argument %T", envelope.Args["order"])
		}
		return w.reporter.CreateOrder(ctx, stringArg(envelope, "strategy_id"), stringArg(envelope, "backtest_id"), order)

	case analytic.FunctionSnapshotCreate:
		snapshot, ok := envelope.Args["snapshot"].(model.Snapshot)
		if !ok {
			return fmt.Errorf("snapshot_create: bad snapshot argument %T", envelope.Args["snapshot"])
		}
		return w.reporter.CreateSnapshot(ctx, stringArg(envelope, "strategy_id"), stringArg(envelope, "backtest_id"), snapshot)

	case FunctionBacktestCreate:
		backtest, ok := envelope.Args["backtest"].(horizon.Backtest)
		if !ok {
			return fmt.Errorf("backtest_create: bad backtest argument %T", envelope.Args["backtest"])
		}
		return w.reporter.CreateBacktest(ctx, backtest)

	case analytic.FunctionBacktestUpdate:
		return w.reporter.UpdateBacktest(ctx, stringArg(envelope, "backtest_id"), stringArg(envelope, "status"))

	default:
		return fmt.Errorf("unknown function %q", envelope.Function)
	}
}

func stringArg(envelope queue.Envelope, key string) string {
	value, _ := envelope.Args[key].(string)
	return value
}
