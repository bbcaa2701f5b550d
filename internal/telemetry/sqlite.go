package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions, the event log and mastery aggregates in a
// single SQLite database. Tables are namespaced with a conv_ prefix so the
// telemetry database can be backed up or exported independently of the
// primary item catalog.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	entropy *rand.Rand
	now     func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *SQLiteStore) nowMS() int64 {
	return s.now().UnixMilli()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conv_sessions (
		id          TEXT PRIMARY KEY,
		deck_ids    TEXT NOT NULL,
		topic_id    TEXT,
		started_ms  INTEGER NOT NULL,
		ended_ms    INTEGER,
		summary_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_conv_sessions_started ON conv_sessions(started_ms DESC);

	CREATE TABLE IF NOT EXISTS conv_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL REFERENCES conv_sessions(id),
		turn_index   INTEGER NOT NULL,
		event_type   TEXT NOT NULL,
		ts_ms        INTEGER NOT NULL,
		payload_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conv_events_session ON conv_events(session_id);

	CREATE TABLE IF NOT EXISTS conv_items (
		item_id      TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		value        TEXT NOT NULL,
		mastery_json TEXT NOT NULL,
		updated_ms   INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StartSession inserts a session row and returns its id.
func (s *SQLiteStore) StartSession(ctx context.Context, deckIDs []string, topicID string) (string, error) {
	id := s.newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conv_sessions (id, deck_ids, topic_id, started_ms) VALUES (?, ?, ?, ?)`,
		id, strings.Join(deckIDs, ","), topicID, s.nowMS())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session row with its end time and wrap summary.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, summary any) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conv_sessions SET ended_ms = ?, summary_json = ? WHERE id = ?`,
		s.nowMS(), string(payload), sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// LogEvent appends one event. The log is append-only; past entries are never
// mutated.
func (s *SQLiteStore) LogEvent(ctx context.Context, sessionID string, turnIndex int, eventType string, payload any) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conv_events (session_id, turn_index, event_type, ts_ms, payload_json)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, turnIndex, eventType, s.nowMS(), string(b))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// LoadMastery reads the aggregates for the given item ids into a fresh cache.
// Items without rows are simply absent; Cache.Get treats them as zero history.
func (s *SQLiteStore) LoadMastery(ctx context.Context, itemIDs []string) (Cache, error) {
	cache := make(Cache, len(itemIDs))
	if len(itemIDs) == 0 {
		return cache, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, mastery_json FROM conv_items WHERE item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, blob string
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		var agg Aggregate
		if err := json.Unmarshal([]byte(blob), &agg); err != nil {
			// Corrupt rows degrade to zero history rather than failing the session.
			continue
		}
		cache[id] = &agg
	}
	return cache, rows.Err()
}

// BumpItem applies mutate to the cached aggregate for itemID (creating it if
// new) and upserts the row, keeping the cache and disk in sync.
func (s *SQLiteStore) BumpItem(ctx context.Context, cache Cache, itemID, kind, value string, mutate func(*Aggregate)) error {
	agg, ok := cache[itemID]
	if !ok {
		agg = &Aggregate{}
		cache[itemID] = agg
	}
	mutate(agg)

	blob, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conv_items (item_id, kind, value, mastery_json, updated_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   mastery_json = excluded.mastery_json,
		   updated_ms = excluded.updated_ms`,
		itemID, kind, value, string(blob), s.nowMS())
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", itemID, err)
	}
	return nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
