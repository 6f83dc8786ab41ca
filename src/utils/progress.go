package utils

import "time"

// ProgressBetweenDates reports how far current has traveled from start
// toward end, 0.0 at start and 1.0 at end. Values outside [0, 1] are
// possible when current lies outside the range. A zero-length range
// reports 1.0.
func ProgressBetweenDates(start, end, current time.Time) float64 {
	total := end.Sub(start).Seconds()

	if total == 0 {
		return 1.0
	}

	return current.Sub(start).Seconds() / total
}
