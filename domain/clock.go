package domain

import (
	"sync/atomic"
	"time"
)

// Clock hands out strictly increasing timestamps, so two operations issued in
// the same nanosecond still order deterministically.
type Clock struct {
	now  func() time.Time
	last atomic.Int64
}

// NewClock wraps now; a nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	for {
		next := c.now().UnixNano()
		last := c.last.Load()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return time.Unix(0, next).UTC()
		}
	}
}

// NotBefore returns now, or prev when the wall clock went backwards, so per
// task timestamps never decrease.
func NotBefore(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
