package hostui

import (
	"context"
	"time"

	"github.com/hazyhaar/calquick/internal/nav"
	"github.com/hazyhaar/calquick/internal/poll"
)

// Navigator binds the nav package's free functions to one evaluator and
// clock, giving the save orchestrator a single restoration surface.
type Navigator struct {
	ev    nav.Evaluator
	clock poll.Clock
}

// NewNavigator creates a Navigator over ev.
func NewNavigator(ev nav.Evaluator, clock poll.Clock) *Navigator {
	if clock == nil {
		clock = poll.Real{}
	}
	return &Navigator{ev: ev, clock: clock}
}

func (n *Navigator) SnapshotRoute(ctx context.Context) (nav.RouteSnapshot, error) {
	return nav.SnapshotRoute(ctx, n.ev)
}

func (n *Navigator) RestoreRouteSoft(ctx context.Context, snap nav.RouteSnapshot) (bool, error) {
	return nav.RestoreRouteSoft(ctx, n.ev, n.clock, snap)
}

func (n *Navigator) SnapshotScroll(ctx context.Context) (nav.ScrollSnapshot, error) {
	return nav.SnapshotScroll(ctx, n.ev)
}

func (n *Navigator) RestoreScrollWithRetries(ctx context.Context, snap nav.ScrollSnapshot, tries int, delay time.Duration) error {
	return nav.RestoreScrollWithRetries(ctx, n.ev, n.clock, snap, tries, delay)
}

func (n *Navigator) LockScroll(ctx context.Context, targetTop float64, d time.Duration) {
	nav.LockScroll(ctx, n.ev, n.clock, targetTop, d)
}

func (n *Navigator) SetPendingRestore(ctx context.Context, route nav.RouteSnapshot, scroll nav.ScrollSnapshot) error {
	return nav.SetPendingRestore(ctx, n.ev, route, scroll, n.clock.Now())
}

func (n *Navigator) HardNavigate(ctx context.Context, route nav.RouteSnapshot) error {
	return nav.HardNavigate(ctx, n.ev, route)
}
