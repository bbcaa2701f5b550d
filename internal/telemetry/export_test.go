package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/suda-labs/suda/internal/redact"
)

func TestExportRedactsPayloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx, []string{"deck-1"}, "room_objects")
	if err != nil {
		t.Fatal(err)
	}
	err = s.LogEvent(ctx, id, 1, EventTurn, map[string]string{
		"user_text": "제 메일은 kim@example.com 이에요",
	})
	if err != nil {
		t.Fatal(err)
	}
	s.BumpItem(ctx, Cache{}, "lexeme:의자", "vocabulary", "의자", func(a *Aggregate) { a.UserUsed++ })

	export, err := s.Export(ctx, ExportParams{Redaction: redact.LevelMinimal})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(export.Sessions) != 1 || len(export.Events) != 1 || len(export.Items) != 1 {
		t.Fatalf("export sizes: %d sessions, %d events, %d items",
			len(export.Sessions), len(export.Events), len(export.Items))
	}
	if strings.Contains(export.Events[0].PayloadJSON, "kim@example.com") {
		t.Fatalf("email leaked through export: %s", export.Events[0].PayloadJSON)
	}
	if !strings.Contains(export.Events[0].PayloadJSON, "REDACTED_EMAIL") {
		t.Fatalf("redaction marker missing: %s", export.Events[0].PayloadJSON)
	}

	// Level none keeps the payload verbatim.
	raw, err := s.Export(ctx, ExportParams{Redaction: redact.LevelNone})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw.Events[0].PayloadJSON, "kim@example.com") {
		t.Fatalf("level none altered payload: %s", raw.Events[0].PayloadJSON)
	}
}

func TestExportLimitsSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.StartSession(ctx, []string{"deck-1"}, ""); err != nil {
			t.Fatal(err)
		}
	}

	export, err := s.Export(ctx, ExportParams{LimitSessions: 2, Redaction: redact.LevelNone})
	if err != nil {
		t.Fatal(err)
	}
	if len(export.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(export.Sessions))
	}
}
