package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/calquick/internal/poll"
)

// primarySelectors is the curated set of "main content" candidates, in no
// particular order; the winner is whichever visible scrollable match has
// the largest combined scrollable span.
var primarySelectors = []string{
	`[role="main"]`,
	"main",
	`[role="grid"]`,
	`[data-scroll-container]`,
	".calendar-scroll",
	".view-container",
}

// scrollLockTolerance is the drift, in pixels, the scroll lock corrects.
const scrollLockTolerance = 2.0

// scrollLockTick is the fixed re-check interval of the scroll lock.
const scrollLockTick = 100 * time.Millisecond

// ScrollSnapshot captures the window offsets and the primary scroller's
// top offset. PrimaryTop is nil when no scrollable region qualified at
// capture time; restoration treats nil as a no-op, not an error.
type ScrollSnapshot struct {
	WinX       float64  `json:"win_x"`
	WinY       float64  `json:"win_y"`
	PrimaryTop *float64 `json:"primary_top"`
}

// jsSnapshotScroll scans the selector set, keeps visible scrollable
// matches, and returns the top offset of the one with the largest span.
const jsSnapshotScroll = `(selectors) => {
	let best = null, bestSpan = 0;
	for (const sel of selectors) {
		for (const el of document.querySelectorAll(sel)) {
			if (el.offsetParent === null) continue;
			const span = (el.scrollHeight - el.clientHeight) + (el.scrollWidth - el.clientWidth);
			if (span > 0 && span > bestSpan) { best = el; bestSpan = span; }
		}
	}
	return {
		win_x: window.scrollX,
		win_y: window.scrollY,
		found: best !== null,
		primary_top: best ? best.scrollTop : 0,
	};
}`

// jsRestoreScroll re-resolves the primary scroller with the same scan and
// assigns offsets. Re-resolution matters: the host may have replaced the
// node since capture. Returns the offsets actually in effect afterwards.
const jsRestoreScroll = `(selectors, winX, winY, top, hasTop) => {
	window.scrollTo(winX, winY);
	let applied = 0;
	if (hasTop) {
		let best = null, bestSpan = 0;
		for (const sel of selectors) {
			for (const el of document.querySelectorAll(sel)) {
				if (el.offsetParent === null) continue;
				const span = (el.scrollHeight - el.clientHeight) + (el.scrollWidth - el.clientWidth);
				if (span > 0 && span > bestSpan) { best = el; bestSpan = span; }
			}
		}
		if (best) { best.scrollTop = top; applied = best.scrollTop; }
	}
	return { win_y: window.scrollY, primary_top: applied };
}`

type scrollProbe struct {
	WinX       float64 `json:"win_x"`
	WinY       float64 `json:"win_y"`
	Found      bool    `json:"found"`
	PrimaryTop float64 `json:"primary_top"`
}

type scrollApplied struct {
	WinY       float64 `json:"win_y"`
	PrimaryTop float64 `json:"primary_top"`
}

// SnapshotScroll captures the window offsets and the primary scroller's
// top offset.
func SnapshotScroll(ctx context.Context, ev Evaluator) (ScrollSnapshot, error) {
	var probe scrollProbe
	if err := ev.Eval(ctx, jsSnapshotScroll, &probe, primarySelectors); err != nil {
		return ScrollSnapshot{}, fmt.Errorf("nav: snapshot scroll: %w", err)
	}
	snap := ScrollSnapshot{WinX: probe.WinX, WinY: probe.WinY}
	if probe.Found {
		top := probe.PrimaryTop
		snap.PrimaryTop = &top
	}
	return snap, nil
}

// RestoreScrollWithRetries reapplies the snapshot tries times with a fixed
// delay between attempts, re-resolving the primary scroller each time.
// The host UI clobbers scroll position during its own asynchronous
// re-render; repetition is the defense. Best effort: eval failures on
// individual attempts are not fatal.
func RestoreScrollWithRetries(ctx context.Context, ev Evaluator, clock poll.Clock, snap ScrollSnapshot, tries int, delay time.Duration) error {
	if tries <= 0 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := applyScroll(ctx, ev, snap); err != nil {
			lastErr = err
		}
		if i < tries-1 {
			clock.Sleep(delay)
		}
	}
	return lastErr
}

func applyScroll(ctx context.Context, ev Evaluator, snap ScrollSnapshot) error {
	top, hasTop := 0.0, false
	if snap.PrimaryTop != nil {
		top, hasTop = *snap.PrimaryTop, true
	}
	var res scrollApplied
	return ev.Eval(ctx, jsRestoreScroll, &res, primarySelectors, snap.WinX, snap.WinY, top, hasTop)
}

// jsLockScroll re-resolves the primary scroller and snaps it back to the
// target only when it has drifted beyond the tolerance.
const jsLockScroll = `(selectors, top, tol) => {
	let best = null, bestSpan = 0;
	for (const sel of selectors) {
		for (const el of document.querySelectorAll(sel)) {
			if (el.offsetParent === null) continue;
			const span = (el.scrollHeight - el.clientHeight) + (el.scrollWidth - el.clientWidth);
			if (span > 0 && span > bestSpan) { best = el; bestSpan = span; }
		}
	}
	if (!best) return { found: false, corrected: false };
	let corrected = false;
	if (Math.abs(best.scrollTop - top) > tol) { best.scrollTop = top; corrected = true; }
	return { found: true, corrected: corrected };
}`

// LockScroll holds the primary scroller at targetTop for duration,
// snapping it back on a fixed tick whenever it drifts beyond a small
// tolerance. This catches the host's final post-render scroll jump after
// the retry loop has already finished.
func LockScroll(ctx context.Context, ev Evaluator, clock poll.Clock, targetTop float64, duration time.Duration) {
	deadline := clock.Now().Add(duration)
	for clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		var res struct {
			Found     bool `json:"found"`
			Corrected bool `json:"corrected"`
		}
		// Eval failures here are transient re-render races; keep ticking.
		_ = ev.Eval(ctx, jsLockScroll, &res, primarySelectors, targetTop, scrollLockTolerance)
		clock.Sleep(scrollLockTick)
	}
}
