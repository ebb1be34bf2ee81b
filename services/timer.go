package services

import "time"

// RemainingSeconds is the whole number of seconds left until expiry, never negative.
func RemainingSeconds(expiry, now time.Time) int64 {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// ResumedExpiry is the expiry of a request resumed at now after being held
// with holdSeconds left on its countdown.
func ResumedExpiry(now time.Time, holdSeconds int64) time.Time {
	if holdSeconds < 0 {
		holdSeconds = 0
	}
	return now.Add(time.Duration(holdSeconds) * time.Second)
}
