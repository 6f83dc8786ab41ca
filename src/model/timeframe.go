package model

import "time"

type Timeframe string

const (
	TimeframeOneMinute   Timeframe = "1m"
	TimeframeFiveMinutes Timeframe = "5m"
	TimeframeFifteenMin  Timeframe = "15m"
	TimeframeOneHour     Timeframe = "1h"
	TimeframeFourHours   Timeframe = "4h"
	TimeframeOneDay      Timeframe = "1d"
	TimeframeOneWeek     Timeframe = "1w"
	TimeframeOneMonth    Timeframe = "1M"
)

// Truncate floors t to the start of the timeframe period. Weeks start
// on Monday at midnight, months on the 1st. Timeframes without a
// truncation rule return t unchanged.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	switch tf {
	case TimeframeOneMinute:
		return t.Truncate(time.Minute)
	case TimeframeOneHour:
		return t.Truncate(time.Hour)
	case TimeframeOneDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case TimeframeOneWeek:
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		daysSinceMonday := (int(t.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -daysSinceMonday)
	case TimeframeOneMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

// Duration is the nominal period length, used by candle aggregation to
// stamp close times. Months use 30 days.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TimeframeOneMinute:
		return time.Minute
	case TimeframeFiveMinutes:
		return 5 * time.Minute
	case TimeframeFifteenMin:
		return 15 * time.Minute
	case TimeframeOneHour:
		return time.Hour
	case TimeframeFourHours:
		return 4 * time.Hour
	case TimeframeOneDay:
		return 24 * time.Hour
	case TimeframeOneWeek:
		return 7 * 24 * time.Hour
	case TimeframeOneMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}
