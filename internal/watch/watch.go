// Package watch attaches the injected MutationObserver to the host page
// and turns its reports into typed events: popup-candidate appearances
// for the engine, activity pings for the idle detector.
package watch

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/calquick/internal/browser"
)

//go:embed observer.js
var observerJS []byte

// bindingName is the JS → Go channel installed on the page.
const bindingName = "__calquick_watch"

// defaultMaxWidth bounds popup candidates; full-screen dialogs are the
// host's own editor, not a quick popup.
const defaultMaxWidth = 520.0

// Popup is one candidate container reported by the page-side watcher.
type Popup struct {
	XPath      string  `json:"xpath"`
	Tag        string  `json:"tag"`
	DialogLike bool    `json:"dialog"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Config for creating a Watcher.
type Config struct {
	Tab      *browser.Tab
	MaxWidth float64 // popup width ceiling, px
	// OnActivity fires on every mutation ping; wire the idle detector's
	// Touch here.
	OnActivity func()
	Logger     *slog.Logger
}

// Watcher manages the injected observer for a single page.
type Watcher struct {
	tab        *browser.Tab
	maxWidth   float64
	onActivity func()
	logger     *slog.Logger

	popups chan Popup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Watcher for the given tab.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = defaultMaxWidth
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		tab:        cfg.Tab,
		maxWidth:   cfg.MaxWidth,
		onActivity: cfg.OnActivity,
		logger:     cfg.Logger,
		popups:     make(chan Popup, 64),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Popups is the stream of candidate containers. Closed on Stop.
func (w *Watcher) Popups() <-chan Popup {
	return w.popups
}

// Start installs the binding, injects the observer, and begins listening.
// The observer is re-injected on every page load so it survives the hard
// navigations the host occasionally forces.
func (w *Watcher) Start() error {
	if err := w.inject(); err != nil {
		return err
	}

	go w.listenBinding()
	go w.listenLoads()
	return nil
}

// Stop tears the watcher down.
func (w *Watcher) Stop() {
	w.cancel()
}

func (w *Watcher) inject() error {
	page := w.tab.Page

	err := proto.RuntimeAddBinding{Name: bindingName}.Call(page)
	if err != nil {
		w.logger.Warn("watch: addBinding failed (may already exist)", "error", err)
	}

	setup := fmt.Sprintf("window.__calquick_max_width = %g;", w.maxWidth)
	if _, err := page.Eval(setup); err != nil {
		w.logger.Warn("watch: set max width failed", "error", err)
	}

	if _, err := page.Eval(string(observerJS)); err != nil {
		return fmt.Errorf("watch: inject observer.js: %w", err)
	}

	w.logger.Debug("watch: observer injected", "url", w.tab.PageURL)
	return nil
}

// listenBinding receives batches from the page-side observer.
func (w *Watcher) listenBinding() {
	page := w.tab.Page
	page.Context(w.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		var records []json.RawMessage
		if err := json.Unmarshal([]byte(e.Payload), &records); err != nil {
			w.logger.Warn("watch: parse binding payload", "error", err)
			return
		}

		for _, raw := range records {
			var rec struct {
				Kind string `json:"kind"`
				Popup
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}

			switch rec.Kind {
			case "activity":
				if w.onActivity != nil {
					w.onActivity()
				}
			case "popup":
				select {
				case w.popups <- rec.Popup:
				default:
					w.logger.Warn("watch: popup channel full, dropping", "xpath", rec.XPath)
				}
			}
		}
	})()
}

// listenLoads re-injects the observer after every document load. A hard
// navigation replaces the document and the installed observer with it.
func (w *Watcher) listenLoads() {
	page := w.tab.Page
	page.Context(w.ctx).EachEvent(func(e *proto.PageLoadEventFired) {
		w.logger.Info("watch: document loaded, re-injecting observer")
		if err := w.inject(); err != nil {
			w.logger.Error("watch: re-inject failed", "error", err)
		}
	})()
}
