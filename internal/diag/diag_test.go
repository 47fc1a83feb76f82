package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/calquick/internal/journal"
	"github.com/hazyhaar/calquick/internal/overlay"
)

type fakePanels struct{ panels []overlay.PanelInfo }

func (f *fakePanels) List() []overlay.PanelInfo { return f.panels }

type fakeAttempts struct{ attempts []journal.Attempt }

func (f *fakeAttempts) Recent(_ context.Context, n int) ([]journal.Attempt, error) {
	if n > 0 && n < len(f.attempts) {
		return f.attempts[:n], nil
	}
	return f.attempts, nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := New("127.0.0.1:0", &fakePanels{}, nil, nil)
	rec := get(t, s.Router(), "/healthz")
	if rec.Code != 200 {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestPanels(t *testing.T) {
	s := New("127.0.0.1:0", &fakePanels{panels: []overlay.PanelInfo{
		{XPath: "/popup", Title: "edited", Baseline: "orig", Dirty: true},
	}}, nil, nil)

	rec := get(t, s.Router(), "/popups")
	if rec.Code != 200 {
		t.Fatalf("status: %d", rec.Code)
	}

	var got []overlay.PanelInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Dirty || got[0].XPath != "/popup" {
		t.Errorf("panels: %+v", got)
	}
}

func TestAttempts(t *testing.T) {
	s := New("127.0.0.1:0", &fakePanels{}, &fakeAttempts{attempts: []journal.Attempt{
		{ID: "a2", State: "done"},
		{ID: "a1", State: "failed", Error: "Timeout"},
	}}, nil)

	rec := get(t, s.Router(), "/attempts?n=1")
	if rec.Code != 200 {
		t.Fatalf("status: %d", rec.Code)
	}

	var got []journal.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("attempts: %+v", got)
	}
}

func TestResponseHeaders(t *testing.T) {
	s := New("127.0.0.1:0", &fakePanels{}, nil, nil)
	rec := get(t, s.Router(), "/healthz")

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff header missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestAttemptsJournalDisabled(t *testing.T) {
	s := New("127.0.0.1:0", &fakePanels{}, nil, nil)
	rec := get(t, s.Router(), "/attempts")
	if rec.Code != 404 {
		t.Errorf("status: %d, want 404", rec.Code)
	}
}
