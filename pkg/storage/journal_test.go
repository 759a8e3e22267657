package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTempJournal(t *testing.T) *Journal {
	t.Helper()
	j := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err := j.Init(); err != nil {
		t.Fatalf("init journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestSchemaInitialized(t *testing.T) {
	j := newTempJournal(t)
	rows, err := j.db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	defer rows.Close()

	required := map[string]bool{"events": false, "runtime_meta": false}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, ok := required[name]; ok {
			required[name] = true
		}
	}
	for k, ok := range required {
		if !ok {
			t.Fatalf("expected table %s to exist", k)
		}
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err := j.Record(context.Background(), "READY", 1, json.RawMessage(`{}`)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := j.Replay(context.Background(), func(Entry) error { return nil }); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from Replay, got %v", err)
	}
}

func TestRecordReplayKeepsOrder(t *testing.T) {
	j := newTempJournal(t)
	ctx := context.Background()
	events := []string{"READY", "GUILD_CREATE", "GUILD_MEMBER_ADD", "GUILD_MEMBER_REMOVE"}
	for i, name := range events {
		if err := j.Record(ctx, name, int64(i+1), json.RawMessage(`{"n":`+string(rune('0'+i))+`}`)); err != nil {
			t.Fatalf("record %s: %v", name, err)
		}
	}

	var got []Entry
	if err := j.Replay(ctx, func(e Entry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d entries, got %d", len(events), len(got))
	}
	for i, e := range got {
		if e.Name != events[i] || e.GatewaySeq != int64(i+1) {
			t.Fatalf("entry %d: got %s/%d", i, e.Name, e.GatewaySeq)
		}
		if e.SessionID != got[0].SessionID {
			t.Fatalf("expected one session for the run")
		}
	}
	if string(got[2].Payload) != `{"n":2}` {
		t.Fatalf("unexpected payload %s", got[2].Payload)
	}

	n, err := j.Count(ctx)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 events, got %d (%v)", n, err)
	}
	if _, ok, err := j.LastEvent(ctx); err != nil || !ok {
		t.Fatalf("expected last_event to be recorded: ok=%v err=%v", ok, err)
	}
}

func TestReadyStartsNewSession(t *testing.T) {
	j := newTempJournal(t)
	ctx := context.Background()
	_ = j.Record(ctx, "READY", 1, json.RawMessage(`{}`))
	first := j.Session()
	_ = j.Record(ctx, "RESUMED", 2, json.RawMessage(`{}`))
	if j.Session() != first {
		t.Fatalf("expected RESUMED to stay in the session")
	}
	_ = j.Record(ctx, "READY", 1, json.RawMessage(`{}`))
	if j.Session() == first {
		t.Fatalf("expected READY to open a new session")
	}
}

func TestReplayStopsOnError(t *testing.T) {
	j := newTempJournal(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = j.Record(ctx, "TYPING_START", int64(i), json.RawMessage(`{}`))
	}
	stop := errors.New("stop")
	calls := 0
	err := j.Replay(ctx, func(Entry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected replay to stop after the first error, calls=%d err=%v", calls, err)
	}
}

func TestPrune(t *testing.T) {
	j := newTempJournal(t)
	ctx := context.Background()
	_ = j.Record(ctx, "READY", 1, json.RawMessage(`{}`))
	n, err := j.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned event, got %d (%v)", n, err)
	}
}
