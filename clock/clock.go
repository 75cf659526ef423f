// Package clock provides an injectable time source so backoff and
// scheduling behavior can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock supplies timestamps and timed waits to the sync engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the current time after d.
	After(d time.Duration) <-chan time.Time
}

// Real is a Clock backed by the system clock.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a manually advanced Clock for tests. Waiters registered via
// After fire when Advance moves the fake time past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := f.now.Add(d)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// Advance moves the fake time forward and fires any waiters whose
// deadline has passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	remaining := f.waiters[:0]
	var fired []chan time.Time
	for _, w := range f.waiters {
		if !w.deadline.After(now) {
			fired = append(fired, w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()

	for _, ch := range fired {
		ch <- now
	}
}
