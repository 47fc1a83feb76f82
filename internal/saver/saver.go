// Package saver drives one quick-edit save through the host UI's own
// editor flow: open the full editor, write the title, submit, wait out
// the host's re-render, then put the user's navigation and scroll state
// back where it was. One Orchestrator run per save intent, strictly
// sequential; any step failure is terminal for the attempt.
package saver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/journal"
	"github.com/hazyhaar/calquick/internal/nav"
	"github.com/hazyhaar/calquick/internal/poll"
)

// State names the orchestrator's position in the save sequence.
type State int

const (
	StateIdle State = iota
	StateOpeningEditor
	StateAwaitingTitleField
	StateUpdatingField
	StateAwaitingSaveControl
	StateAwaitingHostIdle
	StateRestoringRoute
	StateRestoringScroll
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpeningEditor:
		return "opening-editor"
	case StateAwaitingTitleField:
		return "awaiting-title-field"
	case StateUpdatingField:
		return "updating-field"
	case StateAwaitingSaveControl:
		return "awaiting-save-control"
	case StateAwaitingHostIdle:
		return "awaiting-host-idle"
	case StateRestoringRoute:
		return "restoring-route"
	case StateRestoringScroll:
		return "restoring-scroll"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// stateDeferred marks an attempt whose restoration was handed off to the
// next page load via a PendingRestore record. Not a State: the in-process
// machine ends without reaching Done.
const stateDeferred = "route-deferred"

// openEditorKey is the host's keyboard shortcut for opening the full
// editor from a focused quick popup, used when no edit control is found.
const openEditorKey = "e"

// findInterval is the locator re-poll tick.
const findInterval = 250 * time.Millisecond

// HostUI is the acting surface over the host document. All operations
// are idempotent locate-and-act; elements are addressed by XPath and
// re-resolved by the implementation on each call.
type HostUI interface {
	Find(ctx context.Context, role dom.Role, scope string) (dom.Candidate, bool, error)
	Click(ctx context.Context, xpath string) error
	// SetValue writes value through the element's native setter and fires
	// input/change notifications, which the host's reactive bindings need.
	SetValue(ctx context.Context, xpath, value string) error
	// PressKey focuses inside scope and dispatches a keyboard event.
	PressKey(ctx context.Context, scope, key string) error
}

// Navigator is the route/scroll restoration surface.
type Navigator interface {
	SnapshotRoute(ctx context.Context) (nav.RouteSnapshot, error)
	RestoreRouteSoft(ctx context.Context, snap nav.RouteSnapshot) (bool, error)
	SnapshotScroll(ctx context.Context) (nav.ScrollSnapshot, error)
	RestoreScrollWithRetries(ctx context.Context, snap nav.ScrollSnapshot, tries int, delay time.Duration) error
	LockScroll(ctx context.Context, targetTop float64, d time.Duration)
	SetPendingRestore(ctx context.Context, route nav.RouteSnapshot, scroll nav.ScrollSnapshot) error
	HardNavigate(ctx context.Context, route nav.RouteSnapshot) error
}

// IdleWaiter reports host quiescence; soft verdict.
type IdleWaiter interface {
	WaitIdle(ctx context.Context, minQuiet, maxWait time.Duration) bool
}

// PromptArmer arms the background update-prompt acceptor. The returned
// stop tears it down; it must be called on every path out of the idle
// wait.
type PromptArmer interface {
	Arm(ctx context.Context) (stop func())
}

// StatusSink receives overlay feedback.
type StatusSink interface {
	SetStatus(ctx context.Context, msg string)
	SetSaving(ctx context.Context, saving bool)
	MarkSaved(ctx context.Context)
}

// Journal persists attempt outcomes; optional.
type Journal interface {
	Begin(ctx context.Context, a journal.Attempt) error
	Finish(ctx context.Context, id, state, errMsg, routeAfter string) error
}

// Config bounds each step of the sequence.
type Config struct {
	EditorTimeout      time.Duration // title field appearance
	SaveControlTimeout time.Duration
	IdleQuiet          time.Duration
	IdleMaxWait        time.Duration
	ScrollRetries      int
	ScrollRetryDelay   time.Duration
	ScrollLock         time.Duration
	StatusClear        time.Duration // how long "Saved" stays visible
}

func (c *Config) defaults() {
	if c.EditorTimeout <= 0 {
		c.EditorTimeout = 20 * time.Second
	}
	if c.SaveControlTimeout <= 0 {
		c.SaveControlTimeout = 12 * time.Second
	}
	if c.IdleQuiet <= 0 {
		c.IdleQuiet = 800 * time.Millisecond
	}
	if c.IdleMaxWait <= 0 {
		c.IdleMaxWait = 10 * time.Second
	}
	if c.ScrollRetries <= 0 {
		c.ScrollRetries = 5
	}
	if c.ScrollRetryDelay <= 0 {
		c.ScrollRetryDelay = 300 * time.Millisecond
	}
	if c.ScrollLock <= 0 {
		c.ScrollLock = 2 * time.Second
	}
	if c.StatusClear <= 0 {
		c.StatusClear = 2500 * time.Millisecond
	}
}

// Deps wires an Orchestrator.
type Deps struct {
	UI      HostUI
	Nav     Navigator
	Idle    IdleWaiter
	Prompt  PromptArmer
	Status  StatusSink
	Journal Journal // may be nil
	Clock   poll.Clock
	Logger  *slog.Logger
	NewID   func() string
	Config  Config
}

// Orchestrator runs save attempts. Safe for sequential reuse; the save
// control is disabled while an attempt is in flight, so there is never
// more than one run per overlay at a time.
type Orchestrator struct {
	d Deps
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	d.Config.defaults()
	if d.Clock == nil {
		d.Clock = poll.Real{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewID == nil {
		d.NewID = func() string { return fmt.Sprintf("attempt-%d", time.Now().UnixNano()) }
	}
	return &Orchestrator{d: d}
}

// Run performs one save attempt: write title into the host editor for the
// popup rooted at popupXPath, submit, and restore navigation state.
func (o *Orchestrator) Run(ctx context.Context, popupXPath, title string) error {
	d := o.d
	attemptID := d.NewID()
	st := StateIdle

	d.Status.SetSaving(ctx, true)
	d.Status.SetStatus(ctx, "Saving…")

	// Snapshots must precede any host interaction: once the editor opens,
	// the host may already have moved the address and scroll.
	route, err := d.Nav.SnapshotRoute(ctx)
	if err != nil {
		return o.fail(ctx, attemptID, st, "", err)
	}
	scroll, err := d.Nav.SnapshotScroll(ctx)
	if err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}

	o.journalBegin(ctx, journal.Attempt{
		ID:          attemptID,
		PopupXPath:  popupXPath,
		Title:       title,
		State:       st.String(),
		RouteBefore: string(route),
	})

	st = StateOpeningEditor
	edit, found, err := d.UI.Find(ctx, dom.RoleOpenEditor, popupXPath)
	if err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}
	if found {
		err = d.UI.Click(ctx, edit.XPath)
	} else {
		d.Logger.Debug("saver: no edit control, falling back to keyboard shortcut",
			"popup", popupXPath)
		err = d.UI.PressKey(ctx, popupXPath, openEditorKey)
	}
	if err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}

	st = StateAwaitingTitleField
	field, err := poll.Wait(ctx, d.Clock, d.Config.EditorTimeout, findInterval,
		func(ctx context.Context) (dom.Candidate, bool, error) {
			return d.UI.Find(ctx, dom.RoleTitleInput, "")
		})
	if err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}

	st = StateUpdatingField
	if err := d.UI.SetValue(ctx, field.XPath, title); err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}

	st = StateAwaitingSaveControl
	save, err := poll.Wait(ctx, d.Clock, d.Config.SaveControlTimeout, findInterval,
		func(ctx context.Context) (dom.Candidate, bool, error) {
			return d.UI.Find(ctx, dom.RoleSaveControl, "")
		})
	if err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}
	if err := d.UI.Click(ctx, save.XPath); err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}

	st = StateAwaitingHostIdle
	stopPrompt := d.Prompt.Arm(ctx)
	reached := d.Idle.WaitIdle(ctx, d.Config.IdleQuiet, d.Config.IdleMaxWait)
	stopPrompt()
	if !reached {
		// Soft verdict: proceed on "probably done" rather than blocking
		// the restore on a heuristic.
		d.Logger.Warn("saver: host never reached idle, continuing", "attempt", attemptID)
	}

	st = StateRestoringRoute
	if _, err := d.Nav.RestoreRouteSoft(ctx, route); err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}
	current, err := d.Nav.SnapshotRoute(ctx)
	if err != nil {
		return o.fail(ctx, attemptID, st, string(route), err)
	}
	if current != route {
		// The host forced a navigation the soft restore could not undo.
		// Persist the restore record and leave; the bootstrap finishes
		// the job on next startup.
		d.Logger.Info("saver: route drifted, deferring restore across navigation",
			"want", string(route), "got", string(current))
		if err := d.Nav.SetPendingRestore(ctx, route, scroll); err != nil {
			return o.fail(ctx, attemptID, st, string(current), err)
		}
		if err := d.Nav.HardNavigate(ctx, route); err != nil {
			// Expected: the eval context dies as the page leaves.
			d.Logger.Debug("saver: hard navigate eval ended", "error", err)
		}
		o.journalFinish(ctx, attemptID, stateDeferred, "", string(current))
		return nil
	}

	st = StateRestoringScroll
	if err := d.Nav.RestoreScrollWithRetries(ctx, scroll, d.Config.ScrollRetries, d.Config.ScrollRetryDelay); err != nil {
		// Best effort: scroll drift degrades the experience, not the save.
		d.Logger.Warn("saver: scroll restore incomplete", "error", err)
	}
	if scroll.PrimaryTop != nil {
		d.Nav.LockScroll(ctx, *scroll.PrimaryTop, d.Config.ScrollLock)
	}

	st = StateDone
	d.Status.MarkSaved(ctx)
	d.Status.SetSaving(ctx, false)
	d.Status.SetStatus(ctx, "Saved")
	o.journalFinish(ctx, attemptID, st.String(), "", string(route))

	d.Clock.Sleep(d.Config.StatusClear)
	d.Status.SetStatus(ctx, "")
	return nil
}

// fail is the single Failed transition: surface the error in the overlay,
// re-enable it, journal the failing state.
func (o *Orchestrator) fail(ctx context.Context, attemptID string, st State, routeAfter string, err error) error {
	msg := err.Error()
	if poll.IsTimeout(err) {
		msg = "Timeout"
	}
	o.d.Logger.Error("saver: attempt failed",
		"attempt", attemptID, "state", st.String(), "error", err)

	o.d.Status.SetStatus(ctx, "Error: "+msg)
	o.d.Status.SetSaving(ctx, false)
	o.journalFinish(ctx, attemptID, StateFailed.String(), msg, routeAfter)
	return fmt.Errorf("saver: %s: %w", st.String(), err)
}

func (o *Orchestrator) journalBegin(ctx context.Context, a journal.Attempt) {
	if o.d.Journal == nil {
		return
	}
	if err := o.d.Journal.Begin(ctx, a); err != nil {
		o.d.Logger.Warn("saver: journal begin failed", "error", err)
	}
}

func (o *Orchestrator) journalFinish(ctx context.Context, id, state, errMsg, routeAfter string) {
	if o.d.Journal == nil {
		return
	}
	if err := o.d.Journal.Finish(ctx, id, state, errMsg, routeAfter); err != nil {
		o.d.Logger.Warn("saver: journal finish failed", "error", err)
	}
}
