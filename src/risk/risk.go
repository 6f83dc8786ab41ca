package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session labels the liquidity window a moment falls into, New York
// time. Crypto trades around the clock but liquidity does not, so
// position sizes get scaled by session.
type Session string

const (
	SessionWeekendHoliday Session = "weekend_holiday"
	SessionDeadZone       Session = "dead_zone"
	SessionAsia           Session = "asia_session"
	SessionLondon         Session = "london_session"
	SessionUS             Session = "us_session"
	SessionDefault        Session = "default"
	SessionNoTrade        Session = "no_trade"
)

type SessionConfig struct {
	WeekendHolidayMultiplier decimal.Decimal
	DeadZoneMultiplier       decimal.Decimal
	AsiaMultiplier           decimal.Decimal
	LondonMultiplier         decimal.Decimal
	USMultiplier             decimal.Decimal
	DefaultMultiplier        decimal.Decimal

	// EnableNoTradeWindow zeroes the size from Friday 09:00 NY until
	// Sunday 03:00 NY and on US market holidays.
	EnableNoTradeWindow bool
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		WeekendHolidayMultiplier: decimal.NewFromFloat(0.15),
		DeadZoneMultiplier:       decimal.NewFromFloat(0.15),
		AsiaMultiplier:           decimal.NewFromFloat(0.75),
		LondonMultiplier:         decimal.NewFromFloat(1.0),
		USMultiplier:             decimal.NewFromFloat(1.25),
		DefaultMultiplier:        decimal.NewFromFloat(0.15),
		EnableNoTradeWindow:      true,
	}
}

// SizeForSession scales a nominal order size by the session the given
// moment falls into. The size comes back zero inside the no-trade
// window.
func SizeForSession(base decimal.Decimal, at time.Time, cfg SessionConfig) (decimal.Decimal, Session) {
	if base.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, SessionDefault
	}

	et := easternTime(at)

	if cfg.EnableNoTradeWindow && inNoTradeWindow(et) {
		return decimal.Zero, SessionNoTrade
	}

	session := detectSession(et)

	return base.Mul(multiplierFor(session, cfg)), session
}

func easternTime(t time.Time) time.Time {
	location, err := time.LoadLocation("America/New_York")
	if err != nil {
		return t.UTC()
	}
	return t.In(location)
}

// inNoTradeWindow spans Friday 09:00 NY until the London open on
// Sunday at 03:00 NY, plus full-day holidays.
func inNoTradeWindow(t time.Time) bool {
	// Sunday trading reopens with the London session.
	if t.Weekday() == time.Sunday && isLondonSession(t) {
		return t.Hour() < 3
	}

	if isHoliday(t) {
		return true
	}

	switch t.Weekday() {
	case time.Friday:
		return t.Hour() >= 9
	case time.Saturday:
		return true
	case time.Sunday:
		return t.Hour() < 3
	default:
		return false
	}
}

func detectSession(t time.Time) Session {
	if t.Weekday() == time.Sunday && isLondonSession(t) {
		return SessionLondon
	}

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday || isHoliday(t) {
		return SessionWeekendHoliday
	}

	switch {
	case isDeadZone(t):
		return SessionDeadZone
	case isAsiaSession(t):
		return SessionAsia
	case isLondonSession(t):
		return SessionLondon
	case isUSSession(t):
		return SessionUS
	default:
		return SessionDefault
	}
}

func multiplierFor(s Session, cfg SessionConfig) decimal.Decimal {
	switch s {
	case SessionWeekendHoliday:
		return cfg.WeekendHolidayMultiplier
	case SessionDeadZone:
		return cfg.DeadZoneMultiplier
	case SessionAsia:
		return cfg.AsiaMultiplier
	case SessionLondon:
		return cfg.LondonMultiplier
	case SessionUS:
		return cfg.USMultiplier
	default:
		return cfg.DefaultMultiplier
	}
}

func isDeadZone(t time.Time) bool {
	return t.Hour() >= 17 && t.Hour() < 20
}

func isAsiaSession(t time.Time) bool {
	return t.Hour() >= 20 || t.Hour() < 3
}

func isLondonSession(t time.Time) bool {
	return t.Hour() >= 3 && t.Hour() < 9
}

func isUSSession(t time.Time) bool {
	return t.Hour() >= 9 && t.Hour() <= 17
}

// isHoliday covers the NYSE full-day holidays, which drain liquidity
// out of crypto as well.
func isHoliday(t time.Time) bool {
	year := t.Year()

	memorialDay := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorialDay.Weekday() != time.Monday {
		memorialDay = memorialDay.AddDate(0, 0, -1)
	}

	holidays := []time.Time{
		observedFixedDate(year, time.January, 1),
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		memorialDay,
		observedFixedDate(year, time.July, 4),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observedFixedDate(year, time.December, 25),
	}

	for _, holiday := range holidays {
		if sameDate(t, holiday) {
			return true
		}
	}
	return false
}

// observedFixedDate shifts a Sunday holiday to the following Monday.
func observedFixedDate(year int, month time.Month, day int) time.Time {
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Weekday() == time.Sunday {
		date = date.AddDate(0, 0, 1)
	}
	return date
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday-first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
