package utils

import "time"

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}

// DaysSince returns the number of whole days elapsed since ts, relative to
// now. Days are truncated, so anything under 24 hours counts as zero.
func DaysSince(now, ts time.Time) int {
	if ts.After(now) {
		return 0
	}
	return int(now.Sub(ts).Hours() / 24)
}

// FloorToHour truncates ts to the start of its hour.
func FloorToHour(ts time.Time) time.Time {
	return ts.Truncate(time.Hour)
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
