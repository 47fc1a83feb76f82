package saver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/journal"
	"github.com/hazyhaar/calquick/internal/nav"
	"github.com/hazyhaar/calquick/internal/poll"
)

type fakeUI struct {
	editFound  bool
	titleAfter int // Find(title) calls before the field appears; -1 = never
	saveFound  bool
	titleCalls int
	clicks     []string
	pressed    [][2]string // scope, key
	setValues  map[string]string
	clickErr   error
	onClick    func(xpath string)
}

func newFakeUI() *fakeUI {
	return &fakeUI{editFound: true, saveFound: true, setValues: map[string]string{}}
}

func (f *fakeUI) Find(_ context.Context, role dom.Role, scope string) (dom.Candidate, bool, error) {
	switch role {
	case dom.RoleOpenEditor:
		if f.editFound {
			return dom.Candidate{XPath: scope + "/edit"}, true, nil
		}
		return dom.Candidate{}, false, nil
	case dom.RoleTitleInput:
		f.titleCalls++
		if f.titleAfter >= 0 && f.titleCalls > f.titleAfter {
			return dom.Candidate{XPath: "/editor/title"}, true, nil
		}
		return dom.Candidate{}, false, nil
	case dom.RoleSaveControl:
		if f.saveFound {
			return dom.Candidate{XPath: "/editor/save"}, true, nil
		}
		return dom.Candidate{}, false, nil
	}
	return dom.Candidate{}, false, nil
}

func (f *fakeUI) Click(_ context.Context, xpath string) error {
	f.clicks = append(f.clicks, xpath)
	if f.onClick != nil {
		f.onClick(xpath)
	}
	return f.clickErr
}

func (f *fakeUI) SetValue(_ context.Context, xpath, value string) error {
	f.setValues[xpath] = value
	return nil
}

func (f *fakeUI) PressKey(_ context.Context, scope, key string) error {
	f.pressed = append(f.pressed, [2]string{scope, key})
	return nil
}

type fakeNav struct {
	routeNow     nav.RouteSnapshot
	hostDriftsTo nav.RouteSnapshot // set after the save control fires
	softWorks    bool
	scroll       nav.ScrollSnapshot

	pendingRoute  nav.RouteSnapshot
	pendingScroll *nav.ScrollSnapshot
	hardNavs      []nav.RouteSnapshot
	restores      int
	locks         []float64
}

func (f *fakeNav) SnapshotRoute(context.Context) (nav.RouteSnapshot, error) { return f.routeNow, nil }

func (f *fakeNav) RestoreRouteSoft(_ context.Context, snap nav.RouteSnapshot) (bool, error) {
	if f.routeNow == snap {
		return false, nil
	}
	if f.softWorks {
		f.routeNow = snap
		return true, nil
	}
	return true, nil // attempted but the host snapped back
}

func (f *fakeNav) SnapshotScroll(context.Context) (nav.ScrollSnapshot, error) { return f.scroll, nil }

func (f *fakeNav) RestoreScrollWithRetries(_ context.Context, _ nav.ScrollSnapshot, _ int, _ time.Duration) error {
	f.restores++
	return nil
}

func (f *fakeNav) LockScroll(_ context.Context, top float64, _ time.Duration) {
	f.locks = append(f.locks, top)
}

func (f *fakeNav) SetPendingRestore(_ context.Context, route nav.RouteSnapshot, scroll nav.ScrollSnapshot) error {
	f.pendingRoute = route
	f.pendingScroll = &scroll
	return nil
}

func (f *fakeNav) HardNavigate(_ context.Context, route nav.RouteSnapshot) error {
	f.hardNavs = append(f.hardNavs, route)
	f.routeNow = route
	return nil
}

type fakeIdle struct{ verdict bool }

func (f *fakeIdle) WaitIdle(context.Context, time.Duration, time.Duration) bool { return f.verdict }

type fakePrompt struct{ armed, stopped int }

func (f *fakePrompt) Arm(context.Context) func() {
	f.armed++
	return func() { f.stopped++ }
}

type fakeStatus struct {
	statuses []string
	saving   []bool
	saved    int
}

func (f *fakeStatus) SetStatus(_ context.Context, msg string) { f.statuses = append(f.statuses, msg) }
func (f *fakeStatus) SetSaving(_ context.Context, b bool)     { f.saving = append(f.saving, b) }
func (f *fakeStatus) MarkSaved(context.Context)               { f.saved++ }

type fakeJournal struct {
	begun    []journal.Attempt
	finished [][4]string // id, state, err, routeAfter
}

func (f *fakeJournal) Begin(_ context.Context, a journal.Attempt) error {
	f.begun = append(f.begun, a)
	return nil
}

func (f *fakeJournal) Finish(_ context.Context, id, state, errMsg, routeAfter string) error {
	f.finished = append(f.finished, [4]string{id, state, errMsg, routeAfter})
	return nil
}

type fixture struct {
	ui     *fakeUI
	nav    *fakeNav
	idle   *fakeIdle
	prompt *fakePrompt
	status *fakeStatus
	jrnl   *fakeJournal
	clock  *poll.Fake
	orch   *Orchestrator
}

func newFixture() *fixture {
	top := 500.0
	f := &fixture{
		ui:     newFakeUI(),
		nav:    &fakeNav{routeNow: "/r/week/2024/5/1", softWorks: true, scroll: nav.ScrollSnapshot{WinY: 100, PrimaryTop: &top}},
		idle:   &fakeIdle{verdict: true},
		prompt: &fakePrompt{},
		status: &fakeStatus{},
		jrnl:   &fakeJournal{},
		clock:  poll.NewFake(),
	}
	f.orch = New(Deps{
		UI: f.ui, Nav: f.nav, Idle: f.idle, Prompt: f.prompt,
		Status: f.status, Journal: f.jrnl, Clock: f.clock,
		NewID: func() string { return "a1" },
	})
	return f
}

func (f *fixture) lastStatus() string {
	if len(f.status.statuses) == 0 {
		return ""
	}
	return f.status.statuses[len(f.status.statuses)-1]
}

func (f *fixture) lastSaving() bool {
	return len(f.status.saving) > 0 && f.status.saving[len(f.status.saving)-1]
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture()

	err := f.orch.Run(context.Background(), "/popup", "Team sync (moved)")
	if err != nil {
		t.Fatal(err)
	}

	if got := f.ui.setValues["/editor/title"]; got != "Team sync (moved)" {
		t.Errorf("title written: %q", got)
	}
	if len(f.ui.clicks) != 2 || f.ui.clicks[0] != "/popup/edit" || f.ui.clicks[1] != "/editor/save" {
		t.Errorf("clicks: %v", f.ui.clicks)
	}
	if f.prompt.armed != 1 || f.prompt.stopped != 1 {
		t.Errorf("prompt acceptor armed=%d stopped=%d, want 1/1", f.prompt.armed, f.prompt.stopped)
	}
	if f.status.saved != 1 {
		t.Errorf("MarkSaved calls: %d", f.status.saved)
	}
	if f.nav.restores != 1 || len(f.nav.locks) != 1 || f.nav.locks[0] != 500 {
		t.Errorf("scroll restore/lock: restores=%d locks=%v", f.nav.restores, f.nav.locks)
	}
	if f.lastSaving() {
		t.Error("saving flag must be cleared")
	}
	// "Saved" shown, then cleared after the acknowledgment delay.
	if f.lastStatus() != "" {
		t.Errorf("final status: %q", f.lastStatus())
	}
	var sawSaved bool
	for _, s := range f.status.statuses {
		if s == "Saved" {
			sawSaved = true
		}
	}
	if !sawSaved {
		t.Error("transient Saved status never shown")
	}

	last := f.jrnl.finished[len(f.jrnl.finished)-1]
	if last[1] != "done" {
		t.Errorf("journal state: %q", last[1])
	}
}

func TestRun_KeyboardFallbackAndTitleTimeout(t *testing.T) {
	f := newFixture()
	f.ui.editFound = false
	f.ui.titleAfter = -1 // title field never appears

	err := f.orch.Run(context.Background(), "/popup", "Team sync")
	if err == nil {
		t.Fatal("expected failure")
	}
	if !poll.IsTimeout(err) {
		t.Errorf("error should be a timeout: %v", err)
	}

	if len(f.ui.pressed) != 1 || f.ui.pressed[0] != [2]string{"/popup", "e"} {
		t.Errorf("keyboard fallback: %v", f.ui.pressed)
	}
	if f.lastStatus() != "Error: Timeout" {
		t.Errorf("status: %q, want %q", f.lastStatus(), "Error: Timeout")
	}
	if f.lastSaving() {
		t.Error("overlay must be returned to non-saving state on failure")
	}

	last := f.jrnl.finished[len(f.jrnl.finished)-1]
	if last[1] != "failed" || last[2] != "Timeout" {
		t.Errorf("journal: %v", last)
	}
	if f.status.saved != 0 {
		t.Error("MarkSaved must not fire on failure")
	}
}

func TestRun_RouteDriftDefersAcrossNavigation(t *testing.T) {
	f := newFixture()
	f.nav.softWorks = false

	// Host navigates away the moment the save control fires.
	f.nav.routeNow = "/r/week/2024/5/1"
	f.nav.hostDriftsTo = "/r/day/2024/5/2"
	f.ui.onClick = func(xpath string) {
		if xpath == "/editor/save" {
			f.nav.routeNow = f.nav.hostDriftsTo
		}
	}

	err := f.orch.Run(context.Background(), "/popup", "Team sync")
	if err != nil {
		t.Fatal(err)
	}

	if f.nav.pendingScroll == nil || f.nav.pendingRoute != "/r/week/2024/5/1" {
		t.Errorf("pending restore: route=%q scroll=%v", f.nav.pendingRoute, f.nav.pendingScroll)
	}
	if len(f.nav.hardNavs) != 1 || f.nav.hardNavs[0] != "/r/week/2024/5/1" {
		t.Errorf("hard navigation: %v", f.nav.hardNavs)
	}
	if f.status.saved != 0 {
		t.Error("deferred attempt must not mark the overlay saved in-process")
	}
	if f.nav.restores != 0 {
		t.Error("in-process scroll restore must be skipped when deferring")
	}

	last := f.jrnl.finished[len(f.jrnl.finished)-1]
	if last[1] != "route-deferred" {
		t.Errorf("journal state: %q", last[1])
	}
}

func TestRun_SnapshotsTakenBeforeAnyInteraction(t *testing.T) {
	f := newFixture()
	f.jrnl.begun = nil

	if err := f.orch.Run(context.Background(), "/popup", "t"); err != nil {
		t.Fatal(err)
	}
	if len(f.jrnl.begun) != 1 || f.jrnl.begun[0].RouteBefore != "/r/week/2024/5/1" {
		t.Errorf("route snapshot at begin: %+v", f.jrnl.begun)
	}
}

func TestRun_IdleSoftTimeoutStillCompletes(t *testing.T) {
	f := newFixture()
	f.idle.verdict = false

	if err := f.orch.Run(context.Background(), "/popup", "t"); err != nil {
		t.Fatal(err)
	}
	if f.status.saved != 1 {
		t.Error("a soft idle timeout must not fail the save")
	}
	if f.prompt.stopped != 1 {
		t.Error("prompt acceptor must be disarmed even when idleness was never reached")
	}
}

func TestRun_NilPrimaryTopSkipsLock(t *testing.T) {
	f := newFixture()
	f.nav.scroll = nav.ScrollSnapshot{WinY: 40}

	if err := f.orch.Run(context.Background(), "/popup", "t"); err != nil {
		t.Fatal(err)
	}
	if len(f.nav.locks) != 0 {
		t.Errorf("no primary scroller: lock must be skipped, got %v", f.nav.locks)
	}
}

func TestRun_ClickErrorSurfacesMessage(t *testing.T) {
	f := newFixture()
	f.ui.clickErr = errors.New("node detached")

	err := f.orch.Run(context.Background(), "/popup", "t")
	if err == nil {
		t.Fatal("expected failure")
	}
	if f.lastStatus() != "Error: node detached" {
		t.Errorf("status: %q", f.lastStatus())
	}
}
