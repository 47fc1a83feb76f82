package poll

import (
	"sync"
	"time"
)

// Clock abstracts time for the poller and every retry loop built on it,
// so tests run against a deterministic fake instead of real timers.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a deterministic clock for tests. Sleep advances it instantly.
type Fake struct {
	mu  sync.Mutex
	now time.Time
	// OnSleep, if set, is called after each advance with the new time.
	OnSleep func(now time.Time)
}

// NewFake creates a Fake clock starting at a fixed instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	cb := f.OnSleep
	f.mu.Unlock()
	if cb != nil {
		cb(now)
	}
}

// Advance moves the clock forward without a sleeper.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
