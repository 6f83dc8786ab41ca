package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyTime(t *testing.T, year int, month time.Month, day, hour int) time.Time {
	t.Helper()

	location, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	return time.Date(year, month, day, hour, 0, 0, 0, location)
}

func testConfig() SessionConfig {
	return SessionConfig{
		WeekendHolidayMultiplier: decimal.RequireFromString("10"),
		DeadZoneMultiplier:       decimal.RequireFromString("20"),
		AsiaMultiplier:           decimal.RequireFromString("30"),
		LondonMultiplier:         decimal.RequireFromString("40"),
		USMultiplier:             decimal.RequireFromString("50"),
		DefaultMultiplier:        decimal.RequireFromString("60"),
		EnableNoTradeWindow:      true,
	}
}

func TestSizeForSession(t *testing.T) {
	base := decimal.NewFromFloat(1.0)
	cfg := testConfig()

	tests := []struct {
		name        string
		at          time.Time
		wantSession Session
		wantSize    string
	}{
		{
			name:        "asia session on a weekday evening",
			at:          nyTime(t, 2025, time.March, 4, 21),
			wantSession: SessionAsia,
			wantSize:    "30",
		},
		{
			name:        "london session on a weekday morning",
			at:          nyTime(t, 2025, time.March, 4, 4),
			wantSession: SessionLondon,
			wantSize:    "40",
		},
		{
			name:        "us session midday",
			at:          nyTime(t, 2025, time.March, 4, 10),
			wantSession: SessionUS,
			wantSize:    "50",
		},
		{
			name:        "dead zone after the us close",
			at:          nyTime(t, 2025, time.March, 4, 18),
			wantSession: SessionDeadZone,
			wantSize:    "20",
		},
		{
			name:        "friday morning still trades",
			at:          nyTime(t, 2025, time.March, 7, 8),
			wantSession: SessionLondon,
			wantSize:    "40",
		},
		{
			name:        "friday after the london close is blocked",
			at:          nyTime(t, 2025, time.March, 7, 10),
			wantSession: SessionNoTrade,
			wantSize:    "0",
		},
		{
			name:        "saturday is blocked",
			at:          nyTime(t, 2025, time.March, 8, 12),
			wantSession: SessionNoTrade,
			wantSize:    "0",
		},
		{
			name:        "sunday before the london open is blocked",
			at:          nyTime(t, 2025, time.March, 9, 1),
			wantSession: SessionNoTrade,
			wantSize:    "0",
		},
		{
			name:        "sunday london session reopens trading",
			at:          nyTime(t, 2025, time.March, 16, 4),
			wantSession: SessionLondon,
			wantSize:    "40",
		},
		{
			name:        "christmas is blocked",
			at:          nyTime(t, 2025, time.December, 25, 12),
			wantSession: SessionNoTrade,
			wantSize:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, session := SizeForSession(base, tt.at, cfg)

			assert.Equal(t, tt.wantSession, session)
			assert.True(t, size.Equal(decimal.RequireFromString(tt.wantSize)),
				"expected size %s, got %s", tt.wantSize, size)
		})
	}
}

func TestSizeForSessionWithoutNoTradeWindow(t *testing.T) {
	cfg := testConfig()
	cfg.EnableNoTradeWindow = false

	size, session := SizeForSession(decimal.NewFromFloat(1.0), nyTime(t, 2025, time.March, 8, 12), cfg)

	assert.Equal(t, SessionWeekendHoliday, session)
	assert.True(t, size.Equal(decimal.RequireFromString("10")))

	// Independence Day 2025 falls on a Friday.
	size, session = SizeForSession(decimal.NewFromFloat(1.0), nyTime(t, 2025, time.July, 4, 10), cfg)

	assert.Equal(t, SessionWeekendHoliday, session)
	assert.True(t, size.Equal(decimal.RequireFromString("10")))
}

func TestSizeForSessionZeroBase(t *testing.T) {
	size, session := SizeForSession(decimal.Zero, nyTime(t, 2025, time.March, 4, 10), testConfig())

	assert.Equal(t, SessionDefault, session)
	assert.True(t, size.IsZero())
}
