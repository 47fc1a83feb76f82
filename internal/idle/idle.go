// Package idle derives a single "the host UI is quiescent" boolean from
// recent mutation timestamps plus the absence of open modal or progress
// indicators. It is a heuristic: there is no true completion signal, so
// the answer is a soft verdict, never an error.
package idle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/calquick/internal/poll"
)

// checkInterval is the fixed tick for idleness polling.
const checkInterval = 150 * time.Millisecond

// Detector tracks host activity. Touch is called on every observed DOM
// mutation, relevant or not; busyness is re-evaluated live on each poll.
type Detector struct {
	clock  poll.Clock
	logger *slog.Logger

	// last is the unix-nano timestamp of the most recent mutation.
	last atomic.Int64

	// busy reports whether a dialog-like region or a sufficiently large
	// progress indicator is currently visible.
	busy func(ctx context.Context) bool
}

// New creates a Detector. busy may be nil (never busy).
func New(clock poll.Clock, busy func(ctx context.Context) bool, logger *slog.Logger) *Detector {
	if clock == nil {
		clock = poll.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{clock: clock, busy: busy, logger: logger}
	d.last.Store(clock.Now().UnixNano())
	return d
}

// Touch records host activity. Called unconditionally for every mutation
// batch the watcher sees.
func (d *Detector) Touch() {
	d.last.Store(d.clock.Now().UnixNano())
}

// LastActivity returns the most recent mutation time.
func (d *Detector) LastActivity() time.Time {
	return time.Unix(0, d.last.Load())
}

// WaitIdle blocks until the host is not busy and no mutation has been
// observed for minQuiet, or until maxWait elapses. Returns true when
// quiescence was reached, false on the soft timeout. Callers decide what
// "probably idle" is worth.
func (d *Detector) WaitIdle(ctx context.Context, minQuiet, maxWait time.Duration) bool {
	_, err := poll.Wait(ctx, d.clock, maxWait, checkInterval,
		func(ctx context.Context) (struct{}, bool, error) {
			if d.busy != nil && d.busy(ctx) {
				return struct{}{}, false, nil
			}
			quietFor := d.clock.Now().Sub(d.LastActivity())
			return struct{}{}, quietFor >= minQuiet, nil
		})
	if err != nil {
		d.logger.Debug("idle: wait ended without quiescence", "max_wait", maxWait)
		return false
	}
	return true
}
