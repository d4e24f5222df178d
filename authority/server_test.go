package authority

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/mental-poker-sync/config"
	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/engine"
	"github.com/luca-patrignani/mental-poker-sync/network"
	"github.com/luca-patrignani/mental-poker-sync/state"
	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

func request(t *testing.T, req syncer.Request) json.RawMessage {
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func change(id, path string, old, new any) state.StateChange {
	return state.StateChange{ID: id, Kind: delta.KindUpdate, Path: delta.ParsePath(path), OldValue: old, NewValue: new}
}

func TestAcceptsChangesFromTheAuthoritativeValue(t *testing.T) {
	s := New(WithState(1, map[string]any{"pot": 100}))

	ack, err := s.Handle(syncer.EventSyncRequest, request(t, syncer.Request{
		Version:        1,
		PendingChanges: []state.StateChange{change("a", "pot", 100, 150), change("b", "phase", nil, "flop")},
	}))
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Equal(t, 2, ack.Version)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Version)
	assert.True(t, delta.Equal(150, snap.Data["pot"]))
	assert.Equal(t, "flop", snap.Data["phase"])
	assert.Equal(t, state.NewKyberChecksum().Checksum(snap.Data), snap.Checksum)
}

func TestRejectsDriftedChanges(t *testing.T) {
	s := New(WithState(3, map[string]any{"pot": 500, "phase": "turn"}))

	ack, err := s.Handle(syncer.EventSyncRequest, request(t, syncer.Request{
		Version:        2,
		PendingChanges: []state.StateChange{change("a", "pot", 100, 150), change("b", "phase", "turn", "river")},
	}))
	require.NoError(t, err)
	assert.False(t, ack.OK)
	require.Len(t, ack.Conflicts, 1)
	c := ack.Conflicts[0]
	assert.Equal(t, []string{"pot"}, c.Path)
	assert.Equal(t, 2, c.ClientVersion)
	assert.Equal(t, 3, c.ServerVersion)
	assert.True(t, c.Resolved)
	assert.True(t, delta.Equal(500, c.ResolvedValue))

	assert.Equal(t, "turn", s.Snapshot().Data["phase"])
	assert.Equal(t, 3, s.Snapshot().Version)
}

func TestHeartbeatAndReplayAreAcknowledged(t *testing.T) {
	s := New()

	ack, err := s.Handle(syncer.EventSyncRequest, request(t, syncer.Request{Version: 9}))
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Zero(t, ack.Version)

	req := request(t, syncer.Request{PendingChanges: []state.StateChange{change("a", "pot", nil, 10)}})
	for i := 0; i < 2; i++ {
		ack, err = s.Handle(syncer.EventSyncRequest, req)
		require.NoError(t, err)
		assert.True(t, ack.OK)
		assert.Equal(t, 1, ack.Version)
	}
}

func TestTelemetryAndUnknownEvents(t *testing.T) {
	s := New()
	payload, _ := json.Marshal(syncer.Attempt{Version: 1, Attempt: 2})
	ack, err := s.Handle(syncer.EventSyncAttempt, payload)
	require.NoError(t, err)
	assert.True(t, ack.OK)
	require.Len(t, s.Telemetry(syncer.EventSyncAttempt), 1)
	assert.Empty(t, s.Telemetry(syncer.EventSyncFailed))

	_, err = s.Handle("deal", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestApplyProducesReconcilableDelta(t *testing.T) {
	s := New(WithState(1, map[string]any{"pot": 100}))

	d := s.Apply(map[string]any{"phase": "flop"})
	assert.Equal(t, 1, d.From)
	assert.Equal(t, 2, d.To)
	require.Len(t, d.Changes, 1)

	same := s.Apply(map[string]any{"phase": "flop"})
	assert.True(t, same.Empty())
	assert.Equal(t, 2, same.To)
}

func TestHTTPRoutes(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/events/sync_request", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)

	_, err = network.NewHTTPTransport(srv.URL).Send(context.Background(), "deal", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func fastConfig() config.Options {
	o := config.Default()
	o.SyncInterval = 0
	o.RetryDelay = time.Millisecond
	return o
}

func TestEngineOverHTTP(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	tr := network.NewHTTPTransport(srv.URL, network.WithCompression())
	e := engine.New(tr, engine.WithConfig(fastConfig()))
	defer e.Destroy()

	_, err := e.UpdateState(context.Background(), map[string]any{"pot": 100})
	require.NoError(t, err)
	_, err = e.UpdateState(context.Background(), map[string]any{"phase": "preflop"})
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Version)
	assert.True(t, delta.Equal(100, snap.Data["pot"]))
	assert.Equal(t, snap.Checksum, e.Versioned().Checksum)

	d := s.Apply(map[string]any{"phase": "flop"})
	conflicts, err := e.Reconcile(d)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, "flop", e.GetState()["phase"])
	assert.Equal(t, 3, e.GetVersion())
}

func TestEngineRejectionThenSnapshot(t *testing.T) {
	s := New(WithState(3, map[string]any{"pot": 500}))
	srv := httptest.NewServer(s)
	defer srv.Close()

	tr := network.NewHTTPTransport(srv.URL)
	e := engine.New(tr, engine.WithConfig(fastConfig()))
	defer e.Destroy()

	_, err := e.UpdateState(context.Background(), map[string]any{"pot": 100})
	var rejected *syncer.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 0, e.GetVersion())
	assert.NotContains(t, e.GetState(), "pot")

	version, data, err := tr.FetchState(context.Background())
	require.NoError(t, err)
	_, err = e.ReconcileSnapshot(version, data)
	require.NoError(t, err)
	assert.Equal(t, 3, e.GetVersion())
	assert.True(t, delta.Equal(500, e.GetState()["pot"]))

	_, err = e.UpdateState(context.Background(), map[string]any{"pot": 650})
	require.NoError(t, err)
	assert.True(t, delta.Equal(650, s.Snapshot().Data["pot"]))
}

func TestEngineOverWebSocket(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	tr, err := network.DialWebSocket(context.Background(), strings.TrimPrefix(srv.URL, "http://"), nil, nil)
	require.NoError(t, err)
	defer tr.Close()

	e := engine.New(tr, engine.WithConfig(fastConfig()))
	defer e.Destroy()
	for _, pot := range []int{10, 20, 30} {
		_, err := e.UpdateState(context.Background(), map[string]any{"pot": pot})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, e.GetVersion())
	assert.Equal(t, 3, s.Snapshot().Version)
	assert.True(t, delta.Equal(30, s.Snapshot().Data["pot"]))
}
