// Package safety holds the bounds and deadline checks shared by the motion
// and homing controllers. Every function here is evaluative: callers decide
// what to do with the answer.
package safety

import "time"

// Constrain clamps value to [lo, hi].
func Constrain(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Expired reports whether more than bound has elapsed between start and now.
// start and now should both come from a monotonic clock (time.Now).
func Expired(start, now time.Time, bound time.Duration) bool {
	return now.Sub(start) > bound
}

// Clock abstracts time.Now so controllers can be driven by tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Deadline is a bounded operation started at a given instant.
// The zero value is not armed and never expires.
type Deadline struct {
	start time.Time
	bound time.Duration
	armed bool
}

// NewDeadline arms a deadline of bound starting at start.
func NewDeadline(start time.Time, bound time.Duration) Deadline {
	return Deadline{start: start, bound: bound, armed: true}
}

// Expired reports whether the deadline has passed at now.
func (d Deadline) Expired(now time.Time) bool {
	return d.armed && Expired(d.start, now, d.bound)
}

// Elapsed returns the time spent since the deadline was armed.
func (d Deadline) Elapsed(now time.Time) time.Duration {
	if !d.armed {
		return 0
	}
	return now.Sub(d.start)
}

// Start returns the instant the deadline was armed.
func (d Deadline) Start() time.Time {
	return d.start
}
