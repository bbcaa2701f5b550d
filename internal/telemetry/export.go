package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suda-labs/suda/internal/redact"
)

// ExportParams controls a telemetry export.
type ExportParams struct {
	LimitSessions int
	Redaction     redact.Level
}

// SessionRow is one exported session record.
type SessionRow struct {
	ID          string `json:"id"`
	DeckIDs     string `json:"deck_ids"`
	TopicID     string `json:"topic_id,omitempty"`
	StartedMS   int64  `json:"started_ms"`
	EndedMS     *int64 `json:"ended_ms,omitempty"`
	SummaryJSON string `json:"summary_json,omitempty"`
}

// EventRow is one exported event record.
type EventRow struct {
	SessionID   string `json:"session_id"`
	TurnIndex   int    `json:"turn_index"`
	EventType   string `json:"event_type"`
	TSMS        int64  `json:"ts_ms"`
	PayloadJSON string `json:"payload_json"`
}

// ItemRow is one exported mastery aggregate record.
type ItemRow struct {
	ItemID      string `json:"item_id"`
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	MasteryJSON string `json:"mastery_json"`
	UpdatedMS   int64  `json:"updated_ms"`
}

// Export is a serialized view of the telemetry tables.
type Export struct {
	Sessions []SessionRow `json:"sessions"`
	Events   []EventRow   `json:"events"`
	Items    []ItemRow    `json:"items"`
}

// Export dumps the most recent sessions with their events and all mastery
// aggregates, applying the configured redaction to free-text payloads.
func (s *SQLiteStore) Export(ctx context.Context, p ExportParams) (*Export, error) {
	limit := p.LimitSessions
	if limit <= 0 {
		limit = 100
	}

	out := &Export{Sessions: []SessionRow{}, Events: []EventRow{}, Items: []ItemRow{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deck_ids, topic_id, started_ms, ended_ms, summary_json
		 FROM conv_sessions ORDER BY started_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	defer rows.Close()

	var sessionIDs []string
	for rows.Next() {
		var r SessionRow
		var topicID, summary sql.NullString
		var ended sql.NullInt64
		if err := rows.Scan(&r.ID, &r.DeckIDs, &topicID, &r.StartedMS, &ended, &summary); err != nil {
			return nil, err
		}
		if topicID.Valid {
			r.TopicID = topicID.String
		}
		if ended.Valid {
			v := ended.Int64
			r.EndedMS = &v
		}
		if summary.Valid {
			r.SummaryJSON = redactJSON(summary.String, p.Redaction)
		}
		out.Sessions = append(out.Sessions, r)
		sessionIDs = append(sessionIDs, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(sessionIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sessionIDs)), ",")
		args := make([]any, len(sessionIDs))
		for i, id := range sessionIDs {
			args[i] = id
		}
		evRows, err := s.db.QueryContext(ctx,
			`SELECT session_id, turn_index, event_type, ts_ms, payload_json
			 FROM conv_events WHERE session_id IN (`+placeholders+`) ORDER BY id`, args...)
		if err != nil {
			return nil, fmt.Errorf("export events: %w", err)
		}
		defer evRows.Close()
		for evRows.Next() {
			var r EventRow
			if err := evRows.Scan(&r.SessionID, &r.TurnIndex, &r.EventType, &r.TSMS, &r.PayloadJSON); err != nil {
				return nil, err
			}
			r.PayloadJSON = redactJSON(r.PayloadJSON, p.Redaction)
			out.Events = append(out.Events, r)
		}
		if err := evRows.Err(); err != nil {
			return nil, err
		}
	}

	itRows, err := s.db.QueryContext(ctx,
		`SELECT item_id, kind, value, mastery_json, updated_ms
		 FROM conv_items ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("export items: %w", err)
	}
	defer itRows.Close()
	for itRows.Next() {
		var r ItemRow
		if err := itRows.Scan(&r.ItemID, &r.Kind, &r.Value, &r.MasteryJSON, &r.UpdatedMS); err != nil {
			return nil, err
		}
		out.Items = append(out.Items, r)
	}
	return out, itRows.Err()
}

// redactJSON walks a JSON document and redacts every string value. Invalid
// JSON is redacted as plain text rather than dropped.
func redactJSON(raw string, level redact.Level) string {
	if level == redact.LevelNone {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return redact.Apply(raw, level).Text
	}
	b, err := json.Marshal(redactValue(v, level))
	if err != nil {
		return redact.Apply(raw, level).Text
	}
	return string(b)
}

func redactValue(v any, level redact.Level) any {
	switch t := v.(type) {
	case string:
		return redact.Apply(t, level).Text
	case []any:
		for i := range t {
			t[i] = redactValue(t[i], level)
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = redactValue(t[k], level)
		}
		return t
	default:
		return v
	}
}
