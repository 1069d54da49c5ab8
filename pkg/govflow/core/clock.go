package core

import "time"

// Clock is the time source for cache expiry, session lifetimes, SLA ticks and
// every persisted timestamp. Tests drive it by hand.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// RealClock reads wall time.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }

// OrReal returns c, or wall time when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}

// HoursSince is the fractional number of hours from t to the clock's now.
// SLA thresholds and state-duration guards compare against it.
func HoursSince(c Clock, t time.Time) float64 {
	return c.Now().Sub(t).Hours()
}
