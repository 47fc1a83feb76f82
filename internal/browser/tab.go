package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab wraps the Rod page on the host calendar. It is the single eval
// surface every other package goes through.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// OpenTab creates a stealth page, navigates to the URL, and waits for the
// initial load.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// Eval runs a JS function in the page and decodes its JSON result into
// out. out may be nil when the result is irrelevant.
func (t *Tab) Eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := t.Page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res.Value.Val())
	if err != nil {
		return fmt.Errorf("browser: encode eval result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("browser: decode eval result: %w", err)
	}
	return nil
}

// OuterHTML serialises the element at xpath, or "" when it is gone.
func (t *Tab) OuterHTML(ctx context.Context, xpath string) (string, error) {
	var html string
	err := t.Eval(ctx, `(xp) => {
		const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		return n ? n.outerHTML : '';
	}`, &html, xpath)
	if err != nil {
		return "", fmt.Errorf("browser: outer html: %w", err)
	}
	return html, nil
}

// URL reads the page's current address.
func (t *Tab) URL(ctx context.Context) (string, error) {
	var u string
	if err := t.Eval(ctx, `() => location.href`, &u); err != nil {
		return "", err
	}
	return u, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
