// Package calquick augments a third-party calendar web app with injected
// quick-edit panels and drives edits through the host's own editor flow.
// The engine owns the browser session, the mutation watcher, the overlay
// registry, and the save pipeline; everything else lives in internal/.
package calquick

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/hazyhaar/calquick/internal/browser"
	"github.com/hazyhaar/calquick/internal/config"
	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/hostui"
	"github.com/hazyhaar/calquick/internal/idle"
	"github.com/hazyhaar/calquick/internal/journal"
	"github.com/hazyhaar/calquick/internal/nav"
	"github.com/hazyhaar/calquick/internal/overlay"
	"github.com/hazyhaar/calquick/internal/poll"
	"github.com/hazyhaar/calquick/internal/saver"
	"github.com/hazyhaar/calquick/internal/watch"
)

// Config is re-exported for the cmd layer.
type Config = config.Config

// LoadConfig is re-exported for the cmd layer.
var LoadConfig = config.LoadFile

// Engine is one running calquick instance: one browser page, one
// watcher, one overlay registry.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	manager  *browser.Manager
	tab      *browser.Tab
	ui       *hostui.UI
	detector *idle.Detector
	registry *overlay.Registry
	watcher  *watch.Watcher
	journal  *journal.Store // nil when disabled

	cancel context.CancelFunc
}

// New creates an Engine. Call Run to start it. The overlay registry and
// journal are built here so the diagnostics server can hold them before
// the browser is up; page access errors until Run connects.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, logger: logger}

	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("engine: open journal: %w", err)
		}
		e.journal = store
	}

	page := &lazyPage{engine: e}
	e.registry = overlay.NewRegistry(page, page, &saveRunner{engine: e, clock: poll.Real{}}, logger)

	return e, nil
}

// lazyPage defers page access to whenever the tab exists, letting the
// registry be constructed before the browser connects.
type lazyPage struct{ engine *Engine }

func (l *lazyPage) Eval(ctx context.Context, js string, out any, args ...any) error {
	tab := l.engine.tab
	if tab == nil {
		return fmt.Errorf("engine: page not connected")
	}
	return tab.Eval(ctx, js, out, args...)
}

func (l *lazyPage) OuterHTML(ctx context.Context, xpath string) (string, error) {
	tab := l.engine.tab
	if tab == nil {
		return "", fmt.Errorf("engine: page not connected")
	}
	return tab.OuterHTML(ctx, xpath)
}

// Journal exposes the attempt store for the diagnostics server; nil when
// journaling is disabled.
func (e *Engine) Journal() *journal.Store { return e.journal }

// Panels exposes the overlay registry for the diagnostics server.
func (e *Engine) Panels() *overlay.Registry { return e.registry }

// Run starts the engine and blocks until ctx is cancelled or startup
// fails. Per-popup failures after startup are logged, never fatal.
func (e *Engine) Run(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	defer e.cancel()

	if err := e.start(ctx); err != nil {
		e.shutdown()
		return err
	}
	defer e.shutdown()

	e.logger.Info("engine: running", "url", e.cfg.Calendar.URL)

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-e.watcher.Popups():
			if !ok {
				return nil
			}
			e.handlePopup(ctx, p)
		}
	}
}

// Stop cancels a running engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) start(ctx context.Context) error {
	cfg := e.cfg

	stealth := browser.LevelHeadless
	if cfg.Browser.Stealth == "headful" {
		stealth = browser.LevelHeadful
	}
	e.manager = browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.Remote,
		Stealth:     stealth,
		XvfbDisplay: cfg.Browser.XvfbDisplay,
		Logger:      e.logger,
	})
	if _, err := e.manager.Start(ctx); err != nil {
		return err
	}

	tab, err := browser.OpenTab(ctx, e.manager, cfg.Calendar.URL)
	if err != nil {
		return err
	}
	e.tab = tab

	clock := poll.Real{}
	e.ui = hostui.NewUI(tab, e.logger)
	e.detector = idle.New(clock, e.ui.Busy, e.logger)

	// A pending restore record means the previous save ended with a hard
	// navigation; finishing it comes before anything else touches the page.
	e.finishPendingRestore(ctx)

	if err := e.startOverlayBinding(ctx); err != nil {
		return err
	}

	e.watcher = watch.New(watch.Config{
		Tab:        tab,
		MaxWidth:   cfg.Calendar.PopupMaxWidth,
		OnActivity: e.detector.Touch,
		Logger:     e.logger,
	})
	if err := e.watcher.Start(); err != nil {
		return err
	}

	go e.listenLoads(ctx)

	// Popups already on screen predate the watcher; sweep once.
	e.sweepExisting(ctx)

	return nil
}

func (e *Engine) shutdown() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.tab != nil {
		e.tab.Close()
	}
	if e.manager != nil {
		e.manager.Close()
	}
	if e.journal != nil {
		e.journal.Close()
	}
}

// finishPendingRestore consumes the cross-navigation restore record, if
// one survived, and reapplies the route and scroll it carries.
func (e *Engine) finishPendingRestore(ctx context.Context) {
	rec, found, err := nav.ConsumePendingRestore(ctx, e.tab)
	if err != nil {
		e.logger.Warn("engine: consume pending restore", "error", err)
		return
	}
	if !found {
		return
	}

	e.logger.Info("engine: finishing deferred restore", "route", rec.Route)
	clock := poll.Real{}

	if _, err := nav.RestoreRouteSoft(ctx, e.tab, clock, nav.RouteSnapshot(rec.Route)); err != nil {
		e.logger.Warn("engine: deferred route restore", "error", err)
	}
	scroll := rec.Scroll()
	if err := nav.RestoreScrollWithRetries(ctx, e.tab, clock, scroll, 5, 300*time.Millisecond); err != nil {
		e.logger.Warn("engine: deferred scroll restore", "error", err)
	}
	if scroll.PrimaryTop != nil {
		nav.LockScroll(ctx, e.tab, clock, *scroll.PrimaryTop, e.cfg.Save.ScrollLock)
	}
}

// handlePopup attaches a panel to a reported candidate. Failures are
// logged and dropped; one broken popup must not stop the stream.
func (e *Engine) handlePopup(ctx context.Context, p watch.Popup) {
	url, err := e.tab.URL(ctx)
	if err == nil && !e.cfg.Calendar.Active(url) {
		e.logger.Debug("engine: inactive address, ignoring popup", "url", url)
		return
	}

	if _, err := e.registry.Attach(ctx, p.XPath); err != nil {
		e.logger.Warn("engine: attach failed", "xpath", p.XPath, "error", err)
	}
}

// sweepExisting attaches to dialog-like containers already in the
// document at startup.
func (e *Engine) sweepExisting(ctx context.Context) {
	src := hostui.NewSource(e.tab)
	cands, err := src.Candidates(ctx, "")
	if err != nil {
		e.logger.Warn("engine: initial sweep failed", "error", err)
		return
	}

	for _, c := range cands {
		if !c.Visible || !dom.IsDialogLike(c) {
			continue
		}
		if c.Width > e.cfg.Calendar.PopupMaxWidth {
			continue
		}
		e.handlePopup(ctx, watch.Popup{
			XPath: c.XPath, Tag: c.Tag, DialogLike: true,
			Width: c.Width, Height: c.Height,
		})
	}
}

// startOverlayBinding installs the panel-action binding and routes its
// payloads to the registry. Each action runs in its own goroutine: a
// save blocks for seconds and must not stall the event stream.
func (e *Engine) startOverlayBinding(ctx context.Context) error {
	page := e.tab.Page

	if err := (proto.RuntimeAddBinding{Name: overlay.BindingName}).Call(page); err != nil {
		e.logger.Warn("engine: overlay binding add failed (may already exist)", "error", err)
	}

	go page.Context(ctx).EachEvent(func(ev *proto.RuntimeBindingCalled) {
		if ev.Name != overlay.BindingName {
			return
		}
		var a overlay.Action
		if err := json.Unmarshal([]byte(ev.Payload), &a); err != nil {
			e.logger.Warn("engine: parse overlay action", "error", err)
			return
		}
		go e.registry.Dispatch(ctx, a)
	})()

	return nil
}

// listenLoads reacts to full document loads: the overlay script is gone,
// and a deferred restore may be waiting.
func (e *Engine) listenLoads(ctx context.Context) {
	page := e.tab.Page
	page.Context(ctx).EachEvent(func(ev *proto.PageLoadEventFired) {
		e.logger.Info("engine: document loaded")
		e.registry.ResetScript()
		e.finishPendingRestore(ctx)
		e.sweepExisting(ctx)
	})()
}

// saveRunner builds one orchestrator per attempt, bound to the panel
// that triggered it so status lands in the right place.
type saveRunner struct {
	engine *Engine
	clock  poll.Clock
}

func (r *saveRunner) Run(ctx context.Context, popupXPath, title string) error {
	e := r.engine

	ctrl, ok := e.registry.Controller(popupXPath)
	if !ok {
		return fmt.Errorf("engine: no panel at %s", popupXPath)
	}

	navigator := hostui.NewNavigator(e.tab, r.clock)
	armer := watch.NewArmer(e.ui, watch.Policy(e.cfg.Save.PromptChoice), r.clock, e.logger)

	var jrnl saver.Journal
	if e.journal != nil {
		jrnl = e.journal
	}

	orch := saver.New(saver.Deps{
		UI:      e.ui,
		Nav:     navigator,
		Idle:    e.detector,
		Prompt:  armer,
		Status:  ctrl,
		Journal: jrnl,
		Clock:   r.clock,
		Logger:  e.logger,
		NewID:   uuid.NewString,
		Config: saver.Config{
			EditorTimeout:      e.cfg.Save.EditorTimeout,
			SaveControlTimeout: e.cfg.Save.SaveControlTimeout,
			IdleQuiet:          e.cfg.Save.IdleQuiet,
			IdleMaxWait:        e.cfg.Save.IdleMaxWait,
			ScrollLock:         e.cfg.Save.ScrollLock,
		},
	})

	return orch.Run(ctx, popupXPath, title)
}
