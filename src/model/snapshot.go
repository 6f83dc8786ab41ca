package model

import "time"

type SnapshotKind string

// Kind values match the event tags the persistence layer stores, so
// downstream consumers can filter on them.
const (
	SnapshotKindStart       SnapshotKind = "start_snapshot"
	SnapshotKindDay         SnapshotKind = "on_new_day"
	SnapshotKindBacktestEnd SnapshotKind = "backtest_end"
	SnapshotKindEnd         SnapshotKind = "on_end"
)

// Snapshot is a point-in-time view of a strategy's accounting and risk
// metrics, emitted by the analytics engine and persisted through the
// commands queue.
type Snapshot struct {
	Kind        SnapshotKind `json:"kind"`
	StrategyID  string       `json:"strategy_id"`
	BacktestID  string       `json:"backtest_id,omitempty"`
	Date        time.Time    `json:"date"`
	NAV         float64      `json:"nav"`
	Allocation  float64      `json:"allocation"`
	Balance     float64      `json:"balance"`
	NAVPeak     float64      `json:"nav_peak"`
	MaxDrawdown float64      `json:"max_drawdown"`

	CAGR              float64 `json:"cagr"`
	CalmarRatio       float64 `json:"calmar_ratio"`
	ProfitFactor      float64 `json:"profit_factor"`
	RecoveryFactor    float64 `json:"recovery_factor"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	SortinoRatio      float64 `json:"sortino_ratio"`
	RSquared          float64 `json:"r_squared"`
	UlcerIndex        float64 `json:"ulcer_index"`
	ExpectedShortfall float64 `json:"expected_shortfall"`

	ProfitTotal  float64 `json:"profit_total"`
	OrdersTotal  int     `json:"orders_total"`
	OrdersClosed int     `json:"orders_closed"`
}

// Performance is the absolute gain over the initial allocation.
func (s Snapshot) Performance() float64 {
	return s.NAV - s.Allocation
}

func (s Snapshot) PerformancePercentage() float64 {
	if s.Allocation == 0 {
		return 0
	}

	return s.Performance() / s.Allocation
}

// Drawdown is the current distance from the NAV peak, zero or negative.
func (s Snapshot) Drawdown() float64 {
	if s.NAVPeak == 0 {
		return 0
	}

	return (s.NAV - s.NAVPeak) / s.NAVPeak
}
