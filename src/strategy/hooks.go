package strategy

import (
	"time"

	"algoengine/src/model"
)

// Timeframe and lifecycle hooks. A concrete strategy implements only
// the ones it cares about; Base discovers them by type assertion.

type MinuteHook interface {
	OnNewMinute(boundary time.Time)
}

type HourHook interface {
	OnNewHour(boundary time.Time)
}

type DayHook interface {
	OnNewDay(boundary time.Time)
}

type WeekHook interface {
	OnNewWeek(boundary time.Time)
}

type MonthHook interface {
	OnNewMonth(boundary time.Time)
}

type TransactionHook interface {
	OnOrderTransaction(order *model.Order)
}
