package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/small-frappuccino/discordstate/pkg/gateway"
	"github.com/small-frappuccino/discordstate/pkg/log"
)

var (
	// ErrClosed is returned for requests on a closed transport.
	ErrClosed = errors.New("ipc: transport closed")
	// ErrHandshake is returned when the handshake cannot be sent.
	ErrHandshake = errors.New("ipc: handshake failed")
)

// closeTimeout bounds the close frame write in Close.
const closeTimeout = time.Second

// Error is a failure reported by the client, either for one request or for
// the connection as a whole.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ipc error %d: %s", e.Code, e.Message)
}

type handshake struct {
	Version  int    `json:"v"`
	ClientID string `json:"client_id"`
}

type result struct {
	data json.RawMessage
	err  error
}

// Transport owns one IPC connection. Run must be running for requests to
// complete; DISPATCH frames are pushed to the events source.
type Transport struct {
	conn   net.Conn
	events *gateway.ChanSource
	log    *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan result
	closed  bool

	done chan struct{}
	once sync.Once
}

// New wraps conn. events may be nil when the caller only issues requests.
func New(conn net.Conn, events *gateway.ChanSource) *Transport {
	return &Transport{
		conn:    conn,
		events:  events,
		log:     log.GatewayLogger().With("transport", "ipc"),
		pending: make(map[string]chan result),
		done:    make(chan struct{}),
	}
}

// Connect finds the client socket, dials it and sends the handshake.
func Connect(ctx context.Context, pipe int, clientID string, events *gateway.ChanSource) (*Transport, error) {
	conn, err := DialSocket(ctx, pipe)
	if err != nil {
		return nil, err
	}
	t := New(conn, events)
	if err := t.Handshake(clientID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	t.log.Info("IPC connected", "addr", conn.RemoteAddr().String())
	return t, nil
}

// Handshake sends the version 1 handshake for clientID.
func (t *Transport) Handshake(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", ErrHandshake)
	}
	body, err := json.Marshal(handshake{Version: 1, ClientID: clientID})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := t.send(OpHandshake, body); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return nil
}

func (t *Transport) send(op Opcode, body []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.log.Debug("Sending IPC frame", "op", op.String(), "size", len(body))
	return WriteFrame(t.conn, op, body)
}

// Request sends cmd with args and waits for the response carrying the same
// nonce. evt is only set for SUBSCRIBE and UNSUBSCRIBE.
func (t *Transport) Request(ctx context.Context, cmd string, args any, evt string) (json.RawMessage, error) {
	nonce := uuid.NewString()
	body, err := json.Marshal(struct {
		Cmd  string `json:"cmd"`
		Args any    `json:"args"`
	}{cmd, args})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd, err)
	}
	if body, err = sjson.SetBytes(body, "nonce", nonce); err != nil {
		return nil, fmt.Errorf("stamp nonce: %w", err)
	}
	if evt != "" {
		if body, err = sjson.SetBytes(body, "evt", evt); err != nil {
			return nil, fmt.Errorf("set evt: %w", err)
		}
	}

	ch := make(chan result, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.pending[nonce] = ch
	t.mu.Unlock()

	if err := t.send(OpFrame, body); err != nil {
		t.forget(nonce)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		t.forget(nonce)
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrClosed
	}
}

func (t *Transport) forget(nonce string) {
	t.mu.Lock()
	delete(t.pending, nonce)
	t.mu.Unlock()
}

func (t *Transport) resolve(nonce string, r result) bool {
	t.mu.Lock()
	ch, ok := t.pending[nonce]
	delete(t.pending, nonce)
	t.mu.Unlock()
	if ok {
		ch <- r
	}
	return ok
}

// Run reads frames until the peer closes, ctx ends or a connection-level
// error arrives. A close frame or EOF returns nil.
func (t *Transport) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = t.conn.Close() })
	defer stop()
	defer t.shutdown()

	for {
		op, body, err := ReadFrame(t.conn)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read ipc frame: %w", err)
		}
		keep, err := t.handle(ctx, op, body)
		if err != nil {
			return err
		}
		if !keep {
			return nil
		}
	}
}

func (t *Transport) handle(ctx context.Context, op Opcode, body []byte) (bool, error) {
	switch op {
	case OpFrame:
		return true, t.handleFrame(ctx, body)
	case OpClose:
		t.log.Info("IPC peer closed the connection", "reason", gjson.GetBytes(body, "message").String())
		return false, nil
	case OpPing:
		return true, t.send(OpPong, body)
	case OpPong:
		return true, nil
	default:
		t.log.Warn("Unknown IPC opcode", "op", uint32(op), "size", len(body))
		return true, nil
	}
}

func (t *Transport) handleFrame(ctx context.Context, body []byte) error {
	if !gjson.ValidBytes(body) {
		t.log.Warn("Skipping invalid IPC frame", "size", len(body))
		return nil
	}
	f := gjson.ParseBytes(body)
	cmd := f.Get("cmd").String()
	evt := f.Get("evt").String()
	nonce := f.Get("nonce").String()
	data := json.RawMessage(f.Get("data").Raw)

	switch {
	case evt == "ERROR":
		e := &Error{
			Code:    int(f.Get("data.code").Int()),
			Message: f.Get("data.message").String(),
		}
		if nonce == "" {
			return e
		}
		if !t.resolve(nonce, result{err: e}) {
			t.log.Debug("IPC error for unknown nonce", "nonce", nonce, "code", e.Code)
		}
	case cmd == "DISPATCH":
		if t.events == nil {
			return nil
		}
		t.events.Push(ctx, gateway.Event{Name: evt, Data: data})
	default:
		if nonce == "" {
			t.log.Warn("IPC response without nonce", "cmd", cmd)
			return nil
		}
		t.resolve(nonce, result{data: data})
	}
	return nil
}

func (t *Transport) shutdown() {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.pending = make(map[string]chan result)
		t.mu.Unlock()
		close(t.done)
		if t.events != nil {
			t.events.Close()
		}
	})
}

// Close sends a close frame and closes the connection. Pending requests
// fail with ErrClosed.
func (t *Transport) Close() error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
	_ = t.send(OpClose, []byte(`{}`))
	err := t.conn.Close()
	t.shutdown()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
