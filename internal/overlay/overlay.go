// Package overlay manages the injected quick-edit panels: one Controller
// per popup container, a Registry dispatching user actions to them. The
// panel's DOM lives page-side in overlay.js; the Go side owns all state
// and pushes render snapshots down.
package overlay

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/calquick/internal/extract"
	"github.com/hazyhaar/calquick/internal/nav"
)

//go:embed overlay.js
var overlayJS string

// BindingName is the JS → Go channel for panel interactions. The engine
// installs it and routes its payloads to Registry.Dispatch.
const BindingName = "__calquick_overlay"

const (
	jsInstall = `(xp, st) => window.__calquick_overlay_install(xp, st)`
	jsRender  = `(xp, st) => window.__calquick_overlay_render(xp, st)`
	jsRemove  = `(xp) => window.__calquick_overlay_remove(xp)`
)

// Action is one user interaction relayed from the panel.
type Action struct {
	XPath  string `json:"xpath"`
	Action string `json:"action"`
	Value  string `json:"value"`
}

// State is a Controller's authoritative panel state. Dirty is derived,
// never stored.
type State struct {
	Title     string
	Baseline  string // last known-saved title
	Saving    bool
	Status    string
	Collapsed bool
}

// Dirty reports whether the edit differs from the last saved value.
func (s State) Dirty() bool {
	return s.Title != s.Baseline
}

// renderState is the wire shape pushed to the panel.
type renderState struct {
	Title     string `json:"title"`
	Dirty     bool   `json:"dirty"`
	Saving    bool   `json:"saving"`
	Status    string `json:"status"`
	Collapsed bool   `json:"collapsed"`
}

// Saver runs one save attempt. Satisfied by the save orchestrator.
type Saver interface {
	Run(ctx context.Context, popupXPath, title string) error
}

// HTMLSource serialises a container for content extraction.
type HTMLSource interface {
	OuterHTML(ctx context.Context, xpath string) (string, error)
}

// Registry owns the controllers and routes panel actions to them.
type Registry struct {
	ev     nav.Evaluator
	html   HTMLSource
	saver  Saver
	logger *slog.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
	injected    bool
}

// NewRegistry creates a Registry.
func NewRegistry(ev nav.Evaluator, html HTMLSource, saver Saver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ev:          ev,
		html:        html,
		saver:       saver,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
}

// Attach creates and injects a panel for the popup at xpath. Idempotent
// at two levels: the Go-side registry and the page-side container
// attribute, so re-reports of the same popup cannot double-inject.
func (r *Registry) Attach(ctx context.Context, xpath string) (*Controller, error) {
	r.mu.Lock()
	if c, ok := r.controllers[xpath]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	if err := r.ensureScript(ctx); err != nil {
		return nil, err
	}

	content := r.extractContent(ctx, xpath)
	c := &Controller{
		registry: r,
		xpath:    xpath,
		state: State{
			Title:    content.Title,
			Baseline: content.Title,
		},
	}

	var installed bool
	if err := r.ev.Eval(ctx, jsInstall, &installed, xpath, c.render()); err != nil {
		return nil, fmt.Errorf("overlay: install at %s: %w", xpath, err)
	}
	if !installed {
		// Container gone, or already carrying a panel from a previous
		// session of this process.
		return nil, nil
	}

	r.mu.Lock()
	r.controllers[xpath] = c
	r.mu.Unlock()

	r.logger.Info("overlay: panel attached", "xpath", xpath, "title", content.Title)
	return c, nil
}

// Detach removes the controller for xpath without touching the page;
// used when the popup's container left the DOM on its own.
func (r *Registry) Detach(xpath string) {
	r.mu.Lock()
	delete(r.controllers, xpath)
	r.mu.Unlock()
}

// PanelInfo is one attached panel's diagnostic projection.
type PanelInfo struct {
	XPath     string `json:"xpath"`
	Title     string `json:"title"`
	Baseline  string `json:"baseline"`
	Dirty     bool   `json:"dirty"`
	Saving    bool   `json:"saving"`
	Status    string `json:"status,omitempty"`
	Collapsed bool   `json:"collapsed"`
}

// List snapshots every attached panel, for diagnostics.
func (r *Registry) List() []PanelInfo {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	out := make([]PanelInfo, 0, len(controllers))
	for _, c := range controllers {
		st := c.Snapshot()
		out = append(out, PanelInfo{
			XPath:     c.xpath,
			Title:     st.Title,
			Baseline:  st.Baseline,
			Dirty:     st.Dirty(),
			Saving:    st.Saving,
			Status:    st.Status,
			Collapsed: st.Collapsed,
		})
	}
	return out
}

// Controller returns the controller for xpath, if any.
func (r *Registry) Controller(xpath string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[xpath]
	return c, ok
}

// Dispatch routes one panel action. Unknown targets are stale events
// from removed panels and are dropped quietly.
func (r *Registry) Dispatch(ctx context.Context, a Action) {
	c, ok := r.Controller(a.XPath)
	if !ok {
		r.logger.Debug("overlay: action for unknown panel", "xpath", a.XPath, "action", a.Action)
		return
	}

	switch a.Action {
	case "input":
		c.setTitle(ctx, a.Value)
	case "save":
		c.save(ctx)
	case "cancel":
		c.cancel(ctx)
	case "reload":
		c.reload(ctx)
	case "toggle":
		c.toggle(ctx)
	default:
		r.logger.Warn("overlay: unknown action", "action", a.Action)
	}
}

func (r *Registry) ensureScript(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.injected {
		return nil
	}
	if err := r.ev.Eval(ctx, overlayJS, nil); err != nil {
		return fmt.Errorf("overlay: inject script: %w", err)
	}
	r.injected = true
	return nil
}

// ResetScript marks the panel script as gone; the next Attach re-injects.
// Call after a hard navigation replaced the document.
func (r *Registry) ResetScript() {
	r.mu.Lock()
	r.injected = false
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()
}

func (r *Registry) extractContent(ctx context.Context, xpath string) extract.Content {
	html, err := r.html.OuterHTML(ctx, xpath)
	if err != nil {
		r.logger.Warn("overlay: serialize popup failed", "xpath", xpath, "error", err)
		return extract.Content{}
	}
	return extract.FromHTML(html)
}

// Controller owns one panel's state.
type Controller struct {
	registry *Registry
	xpath    string

	mu    sync.Mutex
	state State
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) render() renderState {
	return renderState{
		Title:     c.state.Title,
		Dirty:     c.state.Dirty(),
		Saving:    c.state.Saving,
		Status:    c.state.Status,
		Collapsed: c.state.Collapsed,
	}
}

// push re-renders the panel from current state. Lock must be held.
func (c *Controller) push(ctx context.Context) {
	rs := c.render()
	if err := c.registry.ev.Eval(ctx, jsRender, nil, c.xpath, rs); err != nil {
		c.registry.logger.Debug("overlay: render failed", "xpath", c.xpath, "error", err)
	}
}

func (c *Controller) setTitle(ctx context.Context, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Saving {
		return
	}
	c.state.Title = v
	c.push(ctx)
}

// save runs one attempt through the orchestrator. The orchestrator
// reports progress back through the StatusSink methods below. Clean or
// already-saving panels ignore the press; the rendered button is
// disabled in both cases, this guards the race where a click lands
// before the disable renders.
func (c *Controller) save(ctx context.Context) {
	c.mu.Lock()
	if !c.state.Dirty() || c.state.Saving {
		c.mu.Unlock()
		return
	}
	title := c.state.Title
	c.mu.Unlock()

	if err := c.registry.saver.Run(ctx, c.xpath, title); err != nil {
		// Already surfaced in the panel status by the orchestrator.
		c.registry.logger.Warn("overlay: save attempt failed", "xpath", c.xpath, "error", err)
	}
}

// cancel removes the panel unconditionally, edits included.
func (c *Controller) cancel(ctx context.Context) {
	if err := c.registry.ev.Eval(ctx, jsRemove, nil, c.xpath); err != nil {
		c.registry.logger.Debug("overlay: remove failed", "xpath", c.xpath, "error", err)
	}
	c.registry.Detach(c.xpath)
}

// reload re-extracts the popup's content and overwrites the current
// edit. The baseline stays: a reload is "show me what the popup says
// now", not "mark this saved".
func (c *Controller) reload(ctx context.Context) {
	content := c.registry.extractContent(ctx, c.xpath)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Saving {
		return
	}
	c.state.Title = content.Title
	c.push(ctx)
}

func (c *Controller) toggle(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Collapsed = !c.state.Collapsed
	c.push(ctx)
}

// SetStatus implements the orchestrator's status surface.
func (c *Controller) SetStatus(ctx context.Context, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = msg
	c.push(ctx)
}

// SetSaving toggles the in-flight flag, disabling the panel's inputs.
func (c *Controller) SetSaving(ctx context.Context, saving bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Saving = saving
	c.push(ctx)
}

// MarkSaved promotes the current edit to the new baseline.
func (c *Controller) MarkSaved(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Baseline = c.state.Title
	c.push(ctx)
}
