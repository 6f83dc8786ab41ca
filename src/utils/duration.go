package utils

import (
	"fmt"
	"time"
)

// Duration formats the distance between two instants using the largest
// whole unit, e.g. "5 seconds", "1 minute", "3 days". Non-positive
// distances render as "0 seconds".
func Duration(startAt, endAt time.Time) string {
	totalSeconds := endAt.Sub(startAt).Seconds()

	if totalSeconds <= 0 {
		return "0 seconds"
	}

	switch {
	case totalSeconds < 60:
		return pluralize(int(totalSeconds), "second")
	case totalSeconds < 3600:
		return pluralize(int(totalSeconds/60), "minute")
	case totalSeconds < 86400:
		return pluralize(int(totalSeconds/3600), "hour")
	default:
		return pluralize(int(totalSeconds/86400), "day")
	}
}

func pluralize(value int, unit string) string {
	if value == 1 {
		return fmt.Sprintf("%d %s", value, unit)
	}

	return fmt.Sprintf("%d %ss", value, unit)
}
