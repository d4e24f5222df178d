package optimistic

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/state"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("change-%d", n)
	}
}

func newState(data map[string]any) *state.VersionedState {
	return &state.VersionedState{Data: data}
}

func TestApplyTagsChangesAndBumpsVersion(t *testing.T) {
	tr := NewTracker(WithIDs(sequentialIDs()))
	vs := newState(map[string]any{"pot": 0})
	d := delta.Calculate(vs.Data, map[string]any{"pot": 100}, t0)

	tok := tr.Apply(vs, d, t0)

	assert.Equal(t, 1, vs.Version)
	assert.Equal(t, 100, vs.Data["pot"])
	require.Len(t, vs.Changes, 1)
	assert.Equal(t, tok, vs.Changes[0].OptimisticKey)
	assert.Equal(t, state.OriginLocal, vs.Changes[0].Origin)
	assert.Equal(t, "change-1", vs.Changes[0].ID)
	assert.Equal(t, 1, tr.Pending())

	rec, ok := tr.Get(tok)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Before["pot"])
}

func TestTokensAreUniqueUnderRapidCalls(t *testing.T) {
	tr := NewTracker()
	vs := newState(map[string]any{})
	seen := map[state.Token]bool{}
	for i := 0; i < 100; i++ {
		d := delta.Calculate(vs.Data, delta.Overlay(vs.Data, map[string]any{"n": i + 1}), t0)
		tok := tr.Apply(vs, d, t0)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
	assert.Equal(t, 100, vs.Version)
}

func TestRollbackRestoresState(t *testing.T) {
	tr := NewTracker()
	vs := newState(map[string]any{"pot": 100, "phase": "flop"})
	d := delta.Calculate(vs.Data, map[string]any{"pot": 200, "winner": "bob", "phase": "flop"}, t0)
	tr.Apply(vs, d, t0)
	vs.Version = 2

	require.True(t, tr.Rollback(vs, d))

	assert.Equal(t, 1, vs.Version)
	assert.True(t, delta.Equal(map[string]any{"pot": 100, "phase": "flop"}, vs.Data))
	assert.Empty(t, vs.Changes)
	assert.Equal(t, 0, tr.Pending())
	assert.False(t, tr.Rollback(vs, d), "second rollback must find nothing")
}

func TestRollbackIsolation(t *testing.T) {
	tr := NewTracker()
	vs := newState(map[string]any{"pot": 0, "dealer": 0})

	d1 := delta.Calculate(vs.Data, delta.Overlay(vs.Data, map[string]any{"pot": 50}), t0)
	tok1 := tr.Apply(vs, d1, t0)
	d2 := delta.Calculate(vs.Data, delta.Overlay(vs.Data, map[string]any{"dealer": 3}), t0)
	tok2 := tr.Apply(vs, d2, t0)
	require.Equal(t, 2, vs.Version)

	require.True(t, tr.RollbackToken(vs, tok1))
	assert.Equal(t, 0, vs.Data["pot"])
	assert.Equal(t, 3, vs.Data["dealer"])
	assert.Equal(t, 1, vs.Version)
	require.Len(t, vs.Changes, 1)
	assert.Equal(t, tok2, vs.Changes[0].OptimisticKey)

	require.True(t, tr.RollbackToken(vs, tok2))
	assert.Equal(t, 0, vs.Data["dealer"])
	assert.Equal(t, 0, vs.Version)
	assert.Empty(t, vs.Changes)
}

func TestRollbackKeepsForeignChangesOnSamePath(t *testing.T) {
	tr := NewTracker()
	vs := newState(map[string]any{"pot": 0})
	vs.Changes = append(vs.Changes, state.StateChange{Path: []string{"pot"}, Origin: state.OriginRemote})

	d := delta.Calculate(vs.Data, map[string]any{"pot": 10}, t0)
	tr.Apply(vs, d, t0)
	require.True(t, tr.Rollback(vs, d))

	require.Len(t, vs.Changes, 1)
	assert.Equal(t, state.OriginRemote, vs.Changes[0].Origin)
}

func TestHandleRejectionDeduplicates(t *testing.T) {
	tr := NewTracker()
	vs := newState(map[string]any{"pot": 100})
	d := delta.Calculate(vs.Data, map[string]any{"pot": 200}, t0)
	tr.Apply(vs, d, t0)

	conflicts := []state.Conflict{
		{Kind: state.ConflictOverride, Path: []string{"pot"}, ClientValue: 200, ServerValue: 150, ResolvedValue: 150, Resolved: true},
		{Kind: state.ConflictOverride, Path: []string{"pot"}, ClientValue: 200, ServerValue: 150, ResolvedValue: 150, Resolved: true},
	}
	require.True(t, tr.HandleRejection(vs, d, conflicts, t0))

	assert.Equal(t, 100, vs.Data["pot"])
	assert.Equal(t, 0, vs.Version)
	require.Len(t, vs.Changes, 1)
	assert.Equal(t, state.OriginRemote, vs.Changes[0].Origin)
	assert.Equal(t, 150, vs.Changes[0].NewValue)

	tr.HandleRejection(vs, d, conflicts[:1], t0)
	assert.Len(t, vs.Changes, 1)
}

func TestConfirmDiscardsRecord(t *testing.T) {
	tr := NewTracker()
	vs := newState(map[string]any{})
	d := delta.Calculate(vs.Data, map[string]any{"pot": 1}, t0)
	tok := tr.Apply(vs, d, t0)

	assert.True(t, tr.Confirm(tok))
	assert.False(t, tr.Confirm(tok))
	assert.False(t, tr.Rollback(vs, d))
	assert.Equal(t, 1, vs.Version)
}
