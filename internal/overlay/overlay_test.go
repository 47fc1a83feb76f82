package overlay

import (
	"context"
	"testing"
)

type fakeEval struct {
	scriptInjects int
	installs      int
	renders       int
	removes       int
	installOK     bool
	lastRender    renderState
}

func (f *fakeEval) Eval(_ context.Context, js string, out any, args ...any) error {
	switch js {
	case overlayJS:
		f.scriptInjects++
	case jsInstall:
		f.installs++
		if p, ok := out.(*bool); ok {
			*p = f.installOK
		}
		f.lastRender = args[1].(renderState)
	case jsRender:
		f.renders++
		f.lastRender = args[1].(renderState)
	case jsRemove:
		f.removes++
	}
	return nil
}

type fakeHTML struct{ html string }

func (f *fakeHTML) OuterHTML(context.Context, string) (string, error) { return f.html, nil }

type fakeSaver struct {
	runs   [][2]string // xpath, title
	during func(ctx context.Context)
}

func (f *fakeSaver) Run(ctx context.Context, xpath, title string) error {
	f.runs = append(f.runs, [2]string{xpath, title})
	if f.during != nil {
		f.during(ctx)
	}
	return nil
}

const popupHTML = `<div role="dialog"><h2>Team sync</h2><div>Weekly planning session</div></div>`

func newRegistry(t *testing.T) (*Registry, *fakeEval, *fakeSaver) {
	t.Helper()
	ev := &fakeEval{installOK: true}
	sv := &fakeSaver{}
	return NewRegistry(ev, &fakeHTML{html: popupHTML}, sv, nil), ev, sv
}

func TestAttachExtractsBaseline(t *testing.T) {
	r, ev, _ := newRegistry(t)

	c, err := r.Attach(context.Background(), "/popup")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("controller not created")
	}

	st := c.Snapshot()
	if st.Title != "Team sync" || st.Baseline != "Team sync" {
		t.Errorf("state: %+v", st)
	}
	if st.Dirty() {
		t.Error("fresh panel must not be dirty")
	}
	if ev.scriptInjects != 1 || ev.installs != 1 {
		t.Errorf("evals: script=%d install=%d", ev.scriptInjects, ev.installs)
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	r, ev, _ := newRegistry(t)
	ctx := context.Background()

	c1, _ := r.Attach(ctx, "/popup")
	c2, _ := r.Attach(ctx, "/popup")

	if c1 != c2 {
		t.Error("second attach must return the existing controller")
	}
	if ev.installs != 1 {
		t.Errorf("installs: %d, want 1", ev.installs)
	}
}

func TestAttachRespectsPageSideGuard(t *testing.T) {
	r, ev, _ := newRegistry(t)
	ev.installOK = false

	c, err := r.Attach(context.Background(), "/popup")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("page-side guard rejected the install; no controller expected")
	}
	if _, ok := r.Controller("/popup"); ok {
		t.Error("rejected panel must not be registered")
	}
}

func TestDirtyTracksEditAgainstBaseline(t *testing.T) {
	r, ev, _ := newRegistry(t)
	ctx := context.Background()
	c, _ := r.Attach(ctx, "/popup")

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "Team sync (moved)"})
	if !c.Snapshot().Dirty() {
		t.Error("edited title must be dirty")
	}
	if !ev.lastRender.Dirty {
		t.Error("rendered state must carry dirty")
	}

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "Team sync"})
	if c.Snapshot().Dirty() {
		t.Error("title back at baseline must be clean")
	}
}

func TestSaveOnlyWhenDirty(t *testing.T) {
	r, _, sv := newRegistry(t)
	ctx := context.Background()
	r.Attach(ctx, "/popup")

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "save"})
	if len(sv.runs) != 0 {
		t.Error("clean panel must not trigger a save")
	}

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "New title"})
	r.Dispatch(ctx, Action{XPath: "/popup", Action: "save"})
	if len(sv.runs) != 1 || sv.runs[0] != [2]string{"/popup", "New title"} {
		t.Errorf("runs: %v", sv.runs)
	}
}

func TestSaveIgnoredWhileInFlight(t *testing.T) {
	r, _, sv := newRegistry(t)
	ctx := context.Background()
	c, _ := r.Attach(ctx, "/popup")

	// The orchestrator flips the flag as its first act.
	sv.during = func(ctx context.Context) {
		c.SetSaving(ctx, true)
		r.Dispatch(ctx, Action{XPath: "/popup", Action: "save"})
		c.SetSaving(ctx, false)
	}

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "New title"})
	r.Dispatch(ctx, Action{XPath: "/popup", Action: "save"})

	if len(sv.runs) != 1 {
		t.Errorf("re-entrant save must be ignored, runs: %v", sv.runs)
	}
}

func TestMarkSavedResetsBaseline(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()
	c, _ := r.Attach(ctx, "/popup")

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "New title"})
	c.MarkSaved(ctx)

	st := c.Snapshot()
	if st.Baseline != "New title" || st.Dirty() {
		t.Errorf("after MarkSaved: %+v dirty=%v", st, st.Dirty())
	}
}

func TestReloadOverwritesEditKeepsBaseline(t *testing.T) {
	ev := &fakeEval{installOK: true}
	html := &fakeHTML{html: popupHTML}
	r := NewRegistry(ev, html, &fakeSaver{}, nil)
	ctx := context.Background()
	c, _ := r.Attach(ctx, "/popup")

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "half-typed edi"})

	// Popup content changed under us.
	html.html = `<div role="dialog"><h2>Team sync v2</h2></div>`
	r.Dispatch(ctx, Action{XPath: "/popup", Action: "reload"})

	st := c.Snapshot()
	if st.Title != "Team sync v2" {
		t.Errorf("reload must overwrite the edit, got %q", st.Title)
	}
	if st.Baseline != "Team sync" {
		t.Errorf("reload must not move the baseline, got %q", st.Baseline)
	}
}

func TestCancelRemovesPanel(t *testing.T) {
	r, ev, sv := newRegistry(t)
	ctx := context.Background()
	r.Attach(ctx, "/popup")

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "input", Value: "edited"})
	r.Dispatch(ctx, Action{XPath: "/popup", Action: "cancel"})

	if ev.removes != 1 {
		t.Errorf("removes: %d", ev.removes)
	}
	if _, ok := r.Controller("/popup"); ok {
		t.Error("cancelled panel must be unregistered")
	}

	// Stale events after removal are dropped.
	r.Dispatch(ctx, Action{XPath: "/popup", Action: "save"})
	if len(sv.runs) != 0 {
		t.Errorf("stale save dispatched: %v", sv.runs)
	}
}

func TestToggleCollapses(t *testing.T) {
	r, ev, _ := newRegistry(t)
	ctx := context.Background()
	c, _ := r.Attach(ctx, "/popup")

	r.Dispatch(ctx, Action{XPath: "/popup", Action: "toggle"})
	if !c.Snapshot().Collapsed || !ev.lastRender.Collapsed {
		t.Error("toggle must collapse")
	}
	r.Dispatch(ctx, Action{XPath: "/popup", Action: "toggle"})
	if c.Snapshot().Collapsed {
		t.Error("second toggle must expand")
	}
}

func TestResetScriptForcesReinjection(t *testing.T) {
	r, ev, _ := newRegistry(t)
	ctx := context.Background()

	r.Attach(ctx, "/popup")
	r.ResetScript()
	r.Attach(ctx, "/popup")

	if ev.scriptInjects != 2 {
		t.Errorf("script injects: %d, want 2", ev.scriptInjects)
	}
}
