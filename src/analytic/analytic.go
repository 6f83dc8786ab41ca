package analytic

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"algoengine/src/model"
	"algoengine/src/orderbook"
	"algoengine/src/queue"
	"algoengine/src/utils"
)

// Reporting function names dispatched by the commands worker.
const (
	FunctionOrderCreate    = "order_create"
	FunctionSnapshotCreate = "snapshot_create"
	FunctionBacktestUpdate = "backtest_update"
)

type Options struct {
	StrategyID string
	BacktestID string
	Backtest   bool
	Orderbook  *orderbook.Orderbook
	Commands   *queue.Queue
	Config     Config
	Logger     *logrus.Entry
}

// Service tracks a strategy's equity curve and risk metrics. All
// persistence goes through the commands queue; the service never talks
// to the reporting API directly.
type Service struct {
	mu sync.Mutex

	log      *logrus.Entry
	book     *orderbook.Orderbook
	commands *queue.Queue
	config   Config

	strategyID string
	backtestID string
	backtest   bool

	started   bool
	startedAt time.Time
	endedAt   time.Time

	snapshot      model.Snapshot
	navHistory    []float64
	dateHistory   []time.Time
	profitHistory []float64

	now func() time.Time
}

func New(options Options) (*Service, error) {
	if options.Orderbook == nil {
		return nil, errors.New("analytic: orderbook is required")
	}

	if options.Commands == nil {
		return nil, errors.New("analytic: commands queue is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = logrus.WithField("component", "analytic")
	}

	service := &Service{
		log:        logger,
		book:       options.Orderbook,
		commands:   options.Commands,
		config:     options.Config,
		strategyID: options.StrategyID,
		backtestID: options.BacktestID,
		backtest:   options.Backtest,
		now:        time.Now,
	}

	service.snapshot = model.Snapshot{
		StrategyID: options.StrategyID,
		BacktestID: options.BacktestID,
		NAV:        options.Orderbook.NAV(),
		Allocation: options.Orderbook.Allocation(),
		Balance:    options.Orderbook.Balance(),
		NAVPeak:    options.Orderbook.NAVPeak(),
	}

	return service, nil
}

// OnTick refreshes the cheap O(1) bookkeeping. The very first tick arms
// the engine and emits the START snapshot.
func (s *Service) OnTick(tick model.Tick) {
	s.mu.Lock()

	s.refresh()

	if !s.started {
		s.started = true
		s.startedAt = tick.Date
		snapshot := s.buildSnapshot(model.SnapshotKindStart, tick.Date)
		s.mu.Unlock()

		s.persistSnapshot(snapshot)
		return
	}

	s.mu.Unlock()
}

// OnTransaction records realized profit. Only CLOSED orders count;
// opens and cancels carry no money movement to report.
func (s *Service) OnTransaction(order *model.Order) {
	if !order.Status.IsClosed() {
		return
	}

	s.mu.Lock()
	s.profitHistory = append(s.profitHistory, order.Profit())
	s.mu.Unlock()

	s.commands.Put(queue.Envelope{
		Command:  queue.CommandExecute,
		Function: FunctionOrderCreate,
		Args: map[string]any{
			"strategy_id": s.strategyID,
			"backtest_id": s.backtestID,
			"order":       order,
		},
	})
}

// OnNewDay extends the equity history, recomputes every metric and
// emits the daily snapshot.
func (s *Service) OnNewDay(date time.Time) {
	s.mu.Lock()

	s.refresh()
	s.navHistory = append(s.navHistory, s.snapshot.NAV)
	s.dateHistory = append(s.dateHistory, date)
	s.calculate(date)

	snapshot := s.buildSnapshot(model.SnapshotKindDay, date)
	s.mu.Unlock()

	s.persistSnapshot(snapshot)
}

// OnNewMonth logs a monthly summary in live mode.
func (s *Service) OnNewMonth(date time.Time) {
	if s.backtest {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"strategy_id": s.strategyID,
		"nav":         s.snapshot.NAV,
		"performance": s.snapshot.Performance(),
		"drawdown":    s.snapshot.Drawdown(),
	}).Info("Monthly summary")
}

// OnEnd finalizes the run: last metric pass, end snapshot, backtest
// completion update and the closing report.
func (s *Service) OnEnd() {
	s.mu.Lock()

	s.refresh()
	s.endedAt = s.lastSeenDate()
	s.calculate(s.endedAt)

	kind := model.SnapshotKindEnd
	if s.backtest {
		kind = model.SnapshotKindBacktestEnd
	}

	snapshot := s.buildSnapshot(kind, s.endedAt)
	startedAt := s.startedAt
	endedAt := s.endedAt
	s.mu.Unlock()

	s.persistSnapshot(snapshot)

	if s.backtest {
		s.commands.Put(queue.Envelope{
			Command:  queue.CommandExecute,
			Function: FunctionBacktestUpdate,
			Args: map[string]any{
				"backtest_id": s.backtestID,
				"status":      "COMPLETED",
			},
		})
	}

	s.log.WithFields(logrus.Fields{
		"strategy_id":   s.strategyID,
		"days_elapsed":  s.daysElapsed(endedAt),
		"duration":      utils.Duration(startedAt, endedAt),
		"nav":           snapshot.NAV,
		"performance":   snapshot.Performance(),
		"max_drawdown":  snapshot.MaxDrawdown,
		"cagr":          snapshot.CAGR,
		"sharpe_ratio":  snapshot.SharpeRatio,
		"profit_factor": snapshot.ProfitFactor,
		"orders_closed": snapshot.OrdersClosed,
	}).Info("Run report")
}

// Snapshot returns the current snapshot state.
func (s *Service) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// refresh pulls the cheap accounting values from the orderbook. Caller
// holds the lock.
func (s *Service) refresh() {
	s.snapshot.NAV = s.book.NAV()
	s.snapshot.Balance = s.book.Balance()
	s.snapshot.Allocation = s.book.Allocation()
	s.snapshot.NAVPeak = s.book.NAVPeak()
	s.snapshot.MaxDrawdown = s.book.MaxDrawdown()
	s.snapshot.ProfitTotal = s.book.ProfitTotal()
}

// calculate recomputes every metric from the full histories. Caller
// holds the lock.
func (s *Service) calculate(date time.Time) {
	days := s.daysElapsed(date)
	returns := periodReturns(s.navHistory)

	s.snapshot.CAGR = CAGR(s.snapshot.Allocation, s.snapshot.NAV, days)
	s.snapshot.CalmarRatio = CalmarRatio(s.snapshot.CAGR, s.snapshot.MaxDrawdown)
	s.snapshot.ProfitFactor = ProfitFactor(s.profitHistory)
	s.snapshot.RecoveryFactor = RecoveryFactor(s.snapshot.ProfitTotal, s.snapshot.MaxDrawdown)
	s.snapshot.SharpeRatio = SharpeRatio(s.navHistory, s.config.RiskFreeRate)
	s.snapshot.SortinoRatio = SortinoRatio(s.navHistory, s.config.RiskFreeRate)
	s.snapshot.RSquared = RSquared(s.navHistory)
	s.snapshot.UlcerIndex = UlcerIndex(s.navHistory)
	s.snapshot.ExpectedShortfall = ExpectedShortfall(returns, s.config.ShortfallConfidence)

	s.snapshot.OrdersClosed = len(s.profitHistory)
	s.snapshot.OrdersTotal = s.ordersTotal()
}

func (s *Service) ordersTotal() int {
	total := len(s.book.History())

	for _, order := range s.book.Orders() {
		if !order.Status.IsFinal() {
			total++
		}
	}

	return total
}

func (s *Service) daysElapsed(until time.Time) int {
	if s.startedAt.IsZero() {
		return 0
	}

	return int(until.Sub(s.startedAt).Hours() / 24)
}

func (s *Service) lastSeenDate() time.Time {
	if len(s.dateHistory) > 0 {
		return s.dateHistory[len(s.dateHistory)-1]
	}
	if !s.startedAt.IsZero() {
		return s.startedAt
	}
	return s.now()
}

func (s *Service) buildSnapshot(kind model.SnapshotKind, date time.Time) model.Snapshot {
	snapshot := s.snapshot
	snapshot.Kind = kind
	snapshot.Date = date
	s.snapshot = snapshot
	return snapshot
}

func (s *Service) persistSnapshot(snapshot model.Snapshot) {
	s.commands.Put(queue.Envelope{
		Command:  queue.CommandExecute,
		Function: FunctionSnapshotCreate,
		Args: map[string]any{
			"strategy_id": s.strategyID,
			"backtest_id": s.backtestID,
			"snapshot":    snapshot,
		},
	})
}
