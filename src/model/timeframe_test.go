package model

import (
	"testing"
	"time"
)

func TestTimeframeTruncate(t *testing.T) {
	full := time.Date(2024, 1, 1, 12, 30, 45, 123456000, time.UTC)

	t.Run("minute", func(t *testing.T) {
		got := TimeframeOneMinute.Truncate(full)
		expected := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
		if !got.Equal(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	})

	t.Run("hour", func(t *testing.T) {
		got := TimeframeOneHour.Truncate(full)
		expected := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		if !got.Equal(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	})

	t.Run("day", func(t *testing.T) {
		got := TimeframeOneDay.Truncate(full)
		expected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if !got.Equal(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	})

	t.Run("week truncates to monday midnight", func(t *testing.T) {
		// 2024-01-05 is a Friday; the preceding Monday is 2024-01-01.
		friday := time.Date(2024, 1, 5, 12, 30, 45, 0, time.UTC)
		got := TimeframeOneWeek.Truncate(friday)
		expected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if !got.Equal(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
		if got.Weekday() != time.Monday {
			t.Fatalf("expected Monday, got %v", got.Weekday())
		}
	})

	t.Run("week on sunday belongs to previous monday", func(t *testing.T) {
		sunday := time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC)
		got := TimeframeOneWeek.Truncate(sunday)
		expected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if !got.Equal(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	})

	t.Run("month truncates to first day", func(t *testing.T) {
		mid := time.Date(2024, 1, 15, 12, 30, 45, 0, time.UTC)
		got := TimeframeOneMonth.Truncate(mid)
		expected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if !got.Equal(expected) {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	})

	t.Run("unsupported timeframe returns input", func(t *testing.T) {
		got := TimeframeFiveMinutes.Truncate(full)
		if !got.Equal(full) {
			t.Fatalf("expected %v unchanged, got %v", full, got)
		}
	})
}
