package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/small-frappuccino/discordstate/pkg/storage"
)

func TestChanSourceDrainsBeforeClosing(t *testing.T) {
	src := NewChanSource(4)
	ctx := context.Background()
	src.Push(ctx, Event{Name: "READY"})
	src.Push(ctx, Event{Name: "RESUMED"})
	src.Close()

	if src.Push(ctx, Event{Name: "LATE"}) {
		t.Fatalf("expected Push after Close to be refused")
	}
	for _, want := range []string{"READY", "RESUMED"} {
		ev, err := src.Next(ctx)
		if err != nil || ev.Name != want {
			t.Fatalf("expected %s, got %s (%v)", want, ev.Name, err)
		}
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}

func TestChanSourceHonoursContext(t *testing.T) {
	src := NewChanSource(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWebsocketSourceYieldsDispatches(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"op":10,"d":{"heartbeat_interval":41250}}`,
			`{"op":0,"s":1,"t":"READY","d":{"session_id":"abc"}}`,
			`not json`,
			`{"op":11}`,
			`{"op":0,"s":2,"t":"GUILD_CREATE","d":{"id":"1"}}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ctx := context.Background()
	src, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer src.Close()

	ev, err := src.Next(ctx)
	if err != nil || ev.Name != "READY" || ev.Seq != 1 {
		t.Fatalf("expected READY seq 1, got %+v (%v)", ev, err)
	}
	var ready struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(ev.Data, &ready); err != nil || ready.SessionID != "abc" {
		t.Fatalf("unexpected READY payload %s", ev.Data)
	}
	ev, err = src.Next(ctx)
	if err != nil || ev.Name != "GUILD_CREATE" || ev.Seq != 2 {
		t.Fatalf("expected GUILD_CREATE seq 2, got %+v (%v)", ev, err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed on normal closure, got %v", err)
	}
}

func TestJournalSourceReplaysInOrder(t *testing.T) {
	j := storage.NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err := j.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	names := []string{"READY", "GUILD_CREATE", "MESSAGE_CREATE"}
	for i, name := range names {
		if err := j.Record(ctx, name, int64(i+1), json.RawMessage(`{}`)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	src := NewJournalSource(j)
	for i, want := range names {
		ev, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if ev.Name != want || ev.Seq != int64(i+1) {
			t.Fatalf("expected %s/%d, got %s/%d", want, i+1, ev.Name, ev.Seq)
		}
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed at the end of the journal, got %v", err)
	}
}
