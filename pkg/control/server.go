// Package control serves the status endpoints of a running engine.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/perf"
	"github.com/small-frappuccino/discordstate/pkg/state"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

const (
	defaultMaxBodyBytes = 64 * 1024
)

// State is the read side of the store needed by the status endpoint.
type State interface {
	View(fn func())
	Summary() state.Summary
}

// Server exposes metrics, a cache summary and runtime tunables.
type Server struct {
	addr       string
	state      State
	httpServer *http.Server
	listener   net.Listener
}

// NewServer returns nil if addr is empty.
func NewServer(addr string, st State, reg *prometheus.Registry) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}

	s := &Server{
		addr:  addr,
		state: st,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/state", s.handleState)
	mux.HandleFunc("/v1/runtime", s.handleRuntime)
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return mux
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.httpServer.Handler
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start opens the listening socket and serves in the background.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ApplicationLogger().Error("Failed to encode control response", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "version": util.Version})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.state == nil {
		http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		return
	}
	var sum state.Summary
	s.state.View(func() { sum = s.state.Summary() })
	writeJSON(w, sum)
}

// Runtime holds the tunables that can change without a restart.
type Runtime struct {
	SlowEventThresholdMS int    `json:"slow_event_threshold_ms"`
	LogLevel             string `json:"log_level"`
}

func currentRuntime() Runtime {
	return Runtime{
		SlowEventThresholdMS: int(perf.Threshold() / time.Millisecond),
		LogLevel:             strings.ToLower(log.Level().String()),
	}
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, currentRuntime())
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if len(patch) == 0 {
		http.Error(w, "payload must contain at least one field", http.StatusBadRequest)
		return
	}

	// Validate every field before applying any of them.
	apply := make([]func(), 0, len(patch))
	for field, raw := range patch {
		setter, ok := runtimeFieldSetters[field]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown field %q", field), http.StatusBadRequest)
			return
		}
		fn, err := setter(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("field %s: %v", field, err), http.StatusBadRequest)
			return
		}
		apply = append(apply, fn)
	}
	for _, fn := range apply {
		fn()
	}

	writeJSON(w, map[string]any{
		"status":  "ok",
		"runtime": currentRuntime(),
	})
}

type setterFunc func(json.RawMessage) (func(), error)

var runtimeFieldSetters = map[string]setterFunc{
	"slow_event_threshold_ms": func(raw json.RawMessage) (func(), error) {
		ms, err := decodeInt(raw)
		if err != nil {
			return nil, err
		}
		if ms < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return func() { perf.SetThreshold(time.Duration(ms) * time.Millisecond) }, nil
	},
	"log_level": func(raw json.RawMessage) (func(), error) {
		v, err := decodeString(raw)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return nil, fmt.Errorf("unknown level %q", v)
		}
		return func() { log.SetLevel(v) }, nil
	},
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty string value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return v, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty int value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
