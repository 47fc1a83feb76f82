package journal

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"
)

// openMemory opens an in-memory journal. MaxOpenConns(1) keeps every
// query on the same in-memory database.
func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open memory journal: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginFinishRecent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	err := s.Begin(ctx, Attempt{
		ID:          "a1",
		PopupXPath:  "/html/body/div[3]",
		Title:       "Team sync (moved)",
		State:       "opening-editor",
		RouteBefore: "/r/week/2024/5/1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Finish(ctx, "a1", "done", "", "/r/week/2024/5/1"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("attempts: got %d, want 1", len(got))
	}
	a := got[0]
	if a.State != "done" || a.RouteAfter != "/r/week/2024/5/1" {
		t.Errorf("finished row: %+v", a)
	}
	if a.FinishedAt == 0 {
		t.Error("finished_at not set")
	}
}

func TestRecentOrdering(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	for i, id := range []string{"old", "mid", "new"} {
		err := s.Begin(ctx, Attempt{
			ID: id, PopupXPath: "/x", Title: "t", State: "failed",
			StartedAt: int64(1000 + i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Errorf("ordering: %+v", got)
	}
}

func TestFailedAttemptKeepsError(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.Begin(ctx, Attempt{ID: "f1", PopupXPath: "/x", Title: "t", State: "updating-field"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, "f1", "failed", "Timeout", "/r/day/2024/5/2"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Error != "Timeout" || got[0].State != "failed" {
		t.Errorf("failed row: %+v", got[0])
	}
}
