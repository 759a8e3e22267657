package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

const opDispatch = 0

type frame struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s"`
	Type *string         `json:"t"`
}

// WebsocketSource reads JSON gateway frames from a websocket and yields the
// op 0 dispatches. Other opcodes are logged and skipped.
type WebsocketSource struct {
	conn *websocket.Conn
	log  *slog.Logger
	seq  int64
}

// Dial connects to url and wraps the connection.
func Dial(ctx context.Context, url string, header http.Header) (*WebsocketSource, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial gateway %s: %w", url, err)
	}
	return NewWebsocketSource(conn), nil
}

func NewWebsocketSource(conn *websocket.Conn) *WebsocketSource {
	return &WebsocketSource{conn: conn, log: log.GatewayLogger()}
}

// Seq returns the last sequence number seen.
func (s *WebsocketSource) Seq() int64 { return s.seq }

func (s *WebsocketSource) Next(ctx context.Context) (Event, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Event{}, ErrSourceClosed
			}
			return Event{}, fmt.Errorf("read gateway frame: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("Skipping undecodable gateway frame", "err", err, "size", len(data))
			continue
		}
		if f.Seq != nil {
			s.seq = *f.Seq
		}
		if f.Op != opDispatch || f.Type == nil {
			s.log.Debug("Skipping non-dispatch gateway frame", "op", f.Op)
			continue
		}
		return Event{Name: *f.Type, Data: f.Data, Seq: s.seq}, nil
	}
}

// Close sends a normal closure and closes the connection.
func (s *WebsocketSource) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	cerr := s.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return werr
	}
	return cerr
}
