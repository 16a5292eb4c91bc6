package logger

import "time"

// Status renders an error as a log status value.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Took measures elapsed time since start, rounded for logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS clamps negative durations and rounds to milliseconds.
func RoundMS(d time.Duration) time.Duration {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Millisecond)
}
