// Package nav captures and restores the host UI's navigational state:
// the logical in-app address and the scroll offsets of the window and of
// the primary scrollable region. All reads and writes go through an
// Evaluator so the rod edge stays behind one seam.
package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/calquick/internal/poll"
)

// Evaluator runs a JS function in the page and decodes its JSON result
// into out (which may be nil when the result is irrelevant).
type Evaluator interface {
	Eval(ctx context.Context, js string, out any, args ...any) error
}

// RouteSnapshot is the logical in-app address: path + query + fragment.
// Comparable only by string equality.
type RouteSnapshot string

// routeSettle is how long the host UI gets to re-render after a
// synthesized navigation notification.
const routeSettle = 300 * time.Millisecond

const jsSnapshotRoute = `() => location.pathname + location.search + location.hash`

const jsRestoreRouteSoft = `(route) => {
	const cur = location.pathname + location.search + location.hash;
	if (cur === route) return false;
	history.replaceState(history.state, '', route);
	window.dispatchEvent(new PopStateEvent('popstate', { state: history.state }));
	return true;
}`

const jsHardNavigate = `(route) => { location.assign(route); }`

// SnapshotRoute reads the current logical address. Pure read.
func SnapshotRoute(ctx context.Context, ev Evaluator) (RouteSnapshot, error) {
	var route string
	if err := ev.Eval(ctx, jsSnapshotRoute, &route); err != nil {
		return "", fmt.Errorf("nav: snapshot route: %w", err)
	}
	return RouteSnapshot(route), nil
}

// RestoreRouteSoft replaces the address in place (no reload) and fires a
// synthesized popstate so host listeners re-render. No-op (false) when the
// address already matches; otherwise true after a short settle delay.
func RestoreRouteSoft(ctx context.Context, ev Evaluator, clock poll.Clock, snap RouteSnapshot) (bool, error) {
	var changed bool
	if err := ev.Eval(ctx, jsRestoreRouteSoft, &changed, string(snap)); err != nil {
		return false, fmt.Errorf("nav: soft route restore: %w", err)
	}
	if changed {
		clock.Sleep(routeSettle)
	}
	return changed, nil
}

// HardNavigate performs a real navigation to the snapshot address. The
// eval frequently errors with a destroyed execution context because the
// page is leaving; callers treat any error here as advisory.
func HardNavigate(ctx context.Context, ev Evaluator, snap RouteSnapshot) error {
	return ev.Eval(ctx, jsHardNavigate, nil, string(snap))
}
