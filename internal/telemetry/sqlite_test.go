package telemetry

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "suda.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx, []string{"deck-1", "deck-2"}, "room_objects")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	if err := s.LogEvent(ctx, id, 1, EventTurn, map[string]string{"user_text": "네"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := s.LogEvent(ctx, id, 1, "", nil); err == nil {
		t.Fatal("empty event type accepted")
	}

	wrap := WrapSummary{Strengths: []string{"의자"}, Reinforce: []string{"책상"}}
	if err := s.EndSession(ctx, id, wrap); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := s.EndSession(ctx, "no-such-session", wrap); err == nil {
		t.Fatal("ending unknown session did not fail")
	}
}

func TestBumpItemKeepsCacheAndDiskInSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cache := Cache{}

	for i := 0; i < 3; i++ {
		err := s.BumpItem(ctx, cache, "lexeme:의자", "vocabulary", "의자", func(a *Aggregate) {
			a.UserUsed++
		})
		if err != nil {
			t.Fatalf("BumpItem: %v", err)
		}
	}
	if got := cache.Get("lexeme:의자"); got.UserUsed != 3 {
		t.Fatalf("cache UserUsed = %d, want 3", got.UserUsed)
	}

	// A fresh load sees the persisted aggregate.
	loaded, err := s.LoadMastery(ctx, []string{"lexeme:의자", "lexeme:없음"})
	if err != nil {
		t.Fatalf("LoadMastery: %v", err)
	}
	if got := loaded.Get("lexeme:의자"); got.UserUsed != 3 {
		t.Fatalf("loaded UserUsed = %d, want 3", got.UserUsed)
	}
	// Missing rows read as zero history, never as an error.
	if got := loaded.Get("lexeme:없음"); got != (Aggregate{}) {
		t.Fatalf("missing item aggregate = %+v, want zero", got)
	}
}

func TestLoadMasteryDegradesCorruptRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conv_items (item_id, kind, value, mastery_json, updated_ms) VALUES (?, ?, ?, ?, ?)`,
		"lexeme:깨짐", "vocabulary", "깨짐", "{not json", 0)
	if err != nil {
		t.Fatal(err)
	}

	cache, err := s.LoadMastery(ctx, []string{"lexeme:깨짐"})
	if err != nil {
		t.Fatalf("LoadMastery failed on corrupt row: %v", err)
	}
	if got := cache.Get("lexeme:깨짐"); got != (Aggregate{}) {
		t.Fatalf("corrupt row aggregate = %+v, want zero history", got)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx, []string{"deck-1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	s.LogEvent(ctx, id, 1, EventTurn, nil)
	s.LogEvent(ctx, id, 1, EventHover, nil)
	s.LogEvent(ctx, id, 1, EventHover, nil)
	s.BumpItem(ctx, Cache{}, "lexeme:의자", "vocabulary", "의자", func(a *Aggregate) { a.HoverCount++ })

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Sessions != 1 || stats.OpenSessions != 1 || stats.Events != 3 || stats.Items != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	found := false
	for _, ec := range stats.EventTypes {
		if ec.Type == EventHover && ec.Count == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("hover count missing from %+v", stats.EventTypes)
	}
}
