// Package authority is a reference remote authority for sync engines. It
// holds the authoritative copy of the table state and acknowledges or rejects
// sync requests against it.
//
// A sync request is accepted when every pending change either starts from
// the authoritative value or already produced it. Otherwise it is rejected
// with one conflict per diverging path, resolved to the authoritative value.
// Requests without pending changes are heartbeats and are always
// acknowledged.
package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/network"
	"github.com/luca-patrignani/mental-poker-sync/state"
	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

const maxBodySize = 1 << 20

// ErrUnknownEvent is returned for events the authority does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Event is a received telemetry event.
type Event struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Snapshot is the authoritative state served on GET /state.
type Snapshot struct {
	Version  int            `json:"version"`
	Checksum string         `json:"checksum"`
	Data     map[string]any `json:"data"`
}

type Server struct {
	mu        sync.Mutex
	version   int
	data      map[string]any
	applied   map[string]bool
	telemetry []Event

	checksum state.Checksummer
	clock    state.Clock
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithClock(c state.Clock) Option {
	return func(s *Server) { s.clock = c }
}

func WithChecksum(c state.Checksummer) Option {
	return func(s *Server) { s.checksum = c }
}

// WithState seeds the authoritative state.
func WithState(version int, data map[string]any) Option {
	return func(s *Server) {
		s.version = version
		s.data = delta.CloneState(data)
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		data:     map[string]any{},
		applied:  map[string]bool{},
		checksum: state.NewKyberChecksum(),
		clock:    state.SystemClock{},
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/state", s.serveSnapshot)
	r.Post(network.EventsPath+"{event}", s.serveEvent)
	r.Get(network.WebSocketPath, s.serveWebSocket)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handle processes one event.
func (s *Server) Handle(event string, payload json.RawMessage) (syncer.Ack, error) {
	switch event {
	case syncer.EventSyncRequest:
		var req syncer.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return syncer.Ack{}, fmt.Errorf("decoding %s: %w", event, err)
		}
		return s.sync(req), nil
	case syncer.EventSyncAttempt, syncer.EventSyncFailed:
		s.mu.Lock()
		s.telemetry = append(s.telemetry, Event{Name: event, Payload: append(json.RawMessage(nil), payload...), At: s.clock.Now()})
		s.mu.Unlock()
		s.logger.Info("telemetry received", "event", event)
		return syncer.Ack{OK: true}, nil
	}
	return syncer.Ack{}, fmt.Errorf("%w %q", ErrUnknownEvent, event)
}

func (s *Server) sync(req syncer.Request) syncer.Ack {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicts []state.Conflict
	var fresh []state.StateChange
	for _, c := range req.PendingChanges {
		if c.ID != "" && s.applied[c.ID] {
			continue
		}
		current, _ := delta.Get(s.data, c.Path)
		if delta.Equal(current, c.OldValue) || delta.Equal(current, c.NewValue) {
			fresh = append(fresh, c)
			continue
		}
		conflicts = append(conflicts, state.Conflict{
			ClientVersion: req.Version,
			ServerVersion: s.version,
			Kind:          state.ConflictOverride,
			Policy:        state.PolicyRemote,
			Path:          append([]string(nil), c.Path...),
			ClientValue:   delta.Clone(c.NewValue),
			ServerValue:   delta.Clone(current),
			ResolvedValue: delta.Clone(current),
			Resolved:      true,
		})
	}
	if len(conflicts) > 0 {
		s.logger.Info("sync rejected", "clientVersion", req.Version, "version", s.version, "conflicts", len(conflicts))
		return syncer.Ack{OK: false, Version: s.version, Conflicts: conflicts}
	}

	changed := false
	for _, c := range fresh {
		current, _ := delta.Get(s.data, c.Path)
		if c.Kind == delta.KindDelete {
			if _, ok := delta.Get(s.data, c.Path); ok {
				delta.Delete(s.data, c.Path)
				changed = true
			}
		} else if !delta.Equal(current, c.NewValue) {
			delta.Set(s.data, c.Path, delta.Clone(c.NewValue))
			changed = true
		}
		if c.ID != "" {
			s.applied[c.ID] = true
		}
	}
	if changed {
		s.version++
	}
	if len(fresh) > 0 {
		s.logger.Info("sync accepted", "clientVersion", req.Version, "version", s.version, "changes", len(fresh))
	}
	return syncer.Ack{OK: true, Version: s.version}
}

// Apply writes partial over the authoritative state as the authority's own
// update and returns the resulting delta for clients to reconcile.
func (s *Server) Apply(partial map[string]any) delta.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := delta.Overlay(s.data, partial)
	d := delta.Calculate(s.data, next, s.clock.Now())
	d.From = s.version
	if !d.Empty() {
		s.data = next
		s.version++
	}
	d.To = s.version
	return d
}

// Snapshot returns a copy of the authoritative state.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Version:  s.version,
		Checksum: s.checksum.Checksum(s.data),
		Data:     delta.CloneState(s.data),
	}
}

// Telemetry returns the received telemetry events named name, or all of them
// for an empty name.
func (s *Server) Telemetry(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.telemetry {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		s.logger.Warn("writing snapshot", "error", err)
	}
}

func (s *Server) serveEvent(w http.ResponseWriter, r *http.Request) {
	clock := r.Header.Get(network.HeaderClock)
	if clock == "" {
		http.Error(w, "Clock field is not present in request", http.StatusNotAcceptable)
		return
	}
	if _, err := strconv.ParseUint(clock, 10, 64); err != nil {
		http.Error(w, "Clock field is not a number", http.StatusNotAcceptable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	encoding := r.Header.Get("Content-Encoding")
	var payload json.RawMessage
	if err := network.DecodeBody(body, encoding, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	event := chi.URLParam(r, "event")
	ack, err := s.Handle(event, payload)
	if errors.Is(err, ErrUnknownEvent) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	compress := encoding == network.EncodingSnappy
	out, err := network.EncodeBody(ack, compress)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if compress {
		w.Header().Set("Content-Encoding", network.EncodingSnappy)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		var env network.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		reply := network.Reply{ID: env.ID}
		reply.Ack, err = s.Handle(env.Event, env.Payload)
		if err != nil {
			reply.Error = err.Error()
		}
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}
