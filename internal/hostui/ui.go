package hostui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/nav"
)

// jsClick re-resolves the element each time; XPaths captured during a
// sweep go stale the moment the host re-renders.
const jsClick = `(xp) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return false;
	n.scrollIntoView({ block: 'nearest' });
	for (const type of ['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click']) {
		n.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true, view: window }));
	}
	return true;
}`

// jsSetValue writes through the prototype setter so the host's reactive
// framework sees the change, then fires the notifications it listens for.
const jsSetValue = `(xp, value) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return false;
	n.focus();
	if (n.isContentEditable) {
		n.textContent = value;
	} else {
		const proto = n.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		const set = Object.getOwnPropertyDescriptor(proto, 'value').set;
		set.call(n, value);
	}
	n.dispatchEvent(new Event('input', { bubbles: true }));
	n.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

// jsPressKey focuses the scope element and dispatches a keyboard event
// pair from it, letting the host's shortcut handlers pick it up.
const jsPressKey = `(xp, key) => {
	let target = document.body;
	if (xp) {
		const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (n) { target = n; if (n.focus) n.focus(); }
	}
	for (const type of ['keydown', 'keyup']) {
		target.dispatchEvent(new KeyboardEvent(type, { key: key, bubbles: true, cancelable: true }));
	}
	return true;
}`

// UI implements the acting surface the save orchestrator drives. Find
// delegates to a dom.Locator; the rest are one-shot evals.
type UI struct {
	ev      nav.Evaluator
	locator *dom.Locator
	logger  *slog.Logger
}

// NewUI creates a UI over ev.
func NewUI(ev nav.Evaluator, logger *slog.Logger) *UI {
	if logger == nil {
		logger = slog.Default()
	}
	return &UI{
		ev:      ev,
		locator: dom.NewLocator(NewSource(ev), logger),
		logger:  logger,
	}
}

// Find resolves role within scope via the semantic locator.
func (u *UI) Find(ctx context.Context, role dom.Role, scope string) (dom.Candidate, bool, error) {
	return u.locator.Find(ctx, role, scope)
}

// Click dispatches a full pointer sequence on the element at xpath.
func (u *UI) Click(ctx context.Context, xpath string) error {
	var hit bool
	if err := u.ev.Eval(ctx, jsClick, &hit, xpath); err != nil {
		return fmt.Errorf("hostui: click: %w", err)
	}
	if !hit {
		return fmt.Errorf("hostui: click: element gone: %s", xpath)
	}
	return nil
}

// SetValue writes value into the field at xpath through the native setter.
func (u *UI) SetValue(ctx context.Context, xpath, value string) error {
	var hit bool
	if err := u.ev.Eval(ctx, jsSetValue, &hit, xpath, value); err != nil {
		return fmt.Errorf("hostui: set value: %w", err)
	}
	if !hit {
		return fmt.Errorf("hostui: set value: element gone: %s", xpath)
	}
	return nil
}

// PressKey focuses inside scope and synthesizes a key press.
func (u *UI) PressKey(ctx context.Context, scope, key string) error {
	if err := u.ev.Eval(ctx, jsPressKey, nil, scope, key); err != nil {
		return fmt.Errorf("hostui: press key %q: %w", key, err)
	}
	return nil
}

// Busy reports whether the host looks mid-operation: a real progress
// indicator or a modal dialog on screen. Used as the idle detector's
// busy predicate; errors read as "not busy" so a flaky eval cannot
// wedge the idle wait.
func (u *UI) Busy(ctx context.Context) bool {
	if _, found, err := u.locator.Find(ctx, dom.RoleProgress, ""); err == nil && found {
		return true
	}
	c, found, err := u.locator.Find(ctx, dom.RoleDialog, "")
	return err == nil && found && c.Modal
}
