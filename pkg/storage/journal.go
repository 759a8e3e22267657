// Package storage records gateway events to an embedded SQLite journal so a
// session can be replayed into a fresh state store.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

// ErrNotInitialized is returned by every operation before Init.
var ErrNotInitialized = errors.New("storage: journal not initialized")

// Entry is one recorded gateway event.
type Entry struct {
	Seq        int64
	SessionID  string
	GatewaySeq int64
	Name       string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// Journal is an append-only event log backed by modernc.org/sqlite, so
// builds stay CGO-free. A READY event starts a new journal session.
type Journal struct {
	path string
	db   *sql.DB

	mu        sync.Mutex
	sessionID string
}

// NewJournal points a journal at path. Call Init before using it.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Init opens the database, configures pragmas and ensures the schema.
func (j *Journal) Init() error {
	if j.db != nil {
		return nil
	}
	if j.path == "" {
		return fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", j.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	j.db = db
	log.DatabaseLogger().Info("Event journal opened", "path", j.path)
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	const createEvents = `
CREATE TABLE IF NOT EXISTS events (
  seq         INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id  TEXT NOT NULL,
  gateway_seq INTEGER NOT NULL DEFAULT 0,
  name        TEXT NOT NULL,
  payload     BLOB NOT NULL,
  recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  TIMESTAMP NOT NULL
);`

	for _, stmt := range []string{createEvents, createRuntimeMeta} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Session returns the journal session events are currently recorded under.
func (j *Journal) Session() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

// Record appends one event. READY, or the first event recorded, opens a new
// session.
func (j *Journal) Record(ctx context.Context, name string, gatewaySeq int64, payload json.RawMessage) error {
	if j.db == nil {
		return ErrNotInitialized
	}
	j.mu.Lock()
	if j.sessionID == "" || name == "READY" {
		j.sessionID = uuid.NewString()
	}
	session := j.sessionID
	j.mu.Unlock()

	now := time.Now().UTC()
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, gateway_seq, name, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		session, gatewaySeq, name, []byte(payload), now,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		"last_event", now,
	); err != nil {
		return fmt.Errorf("update last_event: %w", err)
	}
	return tx.Commit()
}

// LastEvent returns when the last event was recorded, if any.
func (j *Journal) LastEvent(ctx context.Context) (time.Time, bool, error) {
	if j.db == nil {
		return time.Time{}, false, ErrNotInitialized
	}
	row := j.db.QueryRowContext(ctx, `SELECT ts FROM runtime_meta WHERE key=?`, "last_event")
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// Entries returns up to limit events with a sequence above after, in
// recording order.
func (j *Journal) Entries(ctx context.Context, after int64, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, session_id, gateway_seq, name, payload, recorded_at
         FROM events WHERE seq > ? ORDER BY seq LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.Seq, &e.SessionID, &e.GatewaySeq, &e.Name, &payload, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Replay calls fn for every recorded event in order. It stops at the first
// error fn returns.
func (j *Journal) Replay(ctx context.Context, fn func(Entry) error) error {
	var after int64
	for {
		batch, err := j.Entries(ctx, after, 500)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, e := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(e); err != nil {
				return err
			}
			after = e.Seq
		}
	}
}

// Count returns the number of recorded events.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	if j.db == nil {
		return 0, ErrNotInitialized
	}
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Prune deletes events recorded before cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if j.db == nil {
		return 0, ErrNotInitialized
	}
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
