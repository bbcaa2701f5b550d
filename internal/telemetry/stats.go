package telemetry

import (
	"context"
	"os"
)

// Stats holds telemetry database statistics.
type Stats struct {
	DBPath       string           `json:"db_path"`
	DBSizeBytes  int64            `json:"db_size_bytes"`
	Sessions     int              `json:"sessions"`
	OpenSessions int              `json:"open_sessions"`
	Events       int              `json:"events"`
	Items        int              `json:"items"`
	EventTypes   []EventTypeCount `json:"event_types"`
}

// EventTypeCount holds per-event-type counts.
type EventTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_sessions`).Scan(&st.Sessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_sessions WHERE ended_ms IS NULL`).Scan(&st.OpenSessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_events`).Scan(&st.Events)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_items`).Scan(&st.Items)

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) as cnt
		FROM conv_events
		GROUP BY event_type ORDER BY cnt DESC, event_type`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ec EventTypeCount
		rows.Scan(&ec.Type, &ec.Count)
		st.EventTypes = append(st.EventTypes, ec)
	}

	return st, rows.Err()
}
