package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/mental-poker-sync/delta"
	"github.com/luca-patrignani/mental-poker-sync/state"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() state.Clock {
	return state.ClockFunc(func() time.Time { return t0 })
}

func TestDetectVersionMismatch(t *testing.T) {
	r := NewResolver(state.PolicyRemote)
	vs := &state.VersionedState{Version: 3, Data: map[string]any{"pot": 10}}
	d := delta.Delta{From: 2, To: 4, Changes: []delta.Change{
		{Path: []string{"pot"}, Kind: delta.KindUpdate, OldValue: 10, NewValue: 20},
	}}

	conflicts := r.Detect(vs, d)
	require.Len(t, conflicts, 1)
	assert.Equal(t, state.ConflictMerge, conflicts[0].Kind)
	assert.Equal(t, state.PolicyRemote, conflicts[0].Policy)
	assert.Equal(t, 3, conflicts[0].ClientVersion)
	assert.Equal(t, 4, conflicts[0].ServerVersion)
	assert.Empty(t, conflicts[0].Path)
}

func TestDetectPathDrift(t *testing.T) {
	r := NewResolver(state.PolicyMerge)
	vs := &state.VersionedState{Version: 2, Data: map[string]any{"pot": 150, "dealer": 1}}
	d := delta.Delta{From: 2, To: 3, Changes: []delta.Change{
		{Path: []string{"pot"}, Kind: delta.KindUpdate, OldValue: 100, NewValue: 300},
		{Path: []string{"dealer"}, Kind: delta.KindUpdate, OldValue: 1, NewValue: 2},
	}}

	conflicts := r.Detect(vs, d)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, state.ConflictOverride, c.Kind)
	assert.Equal(t, []string{"pot"}, c.Path)
	assert.Equal(t, 150, c.ClientValue)
	assert.Equal(t, 300, c.ServerValue)
}

func TestDetectRecordsChangeTimes(t *testing.T) {
	r := NewResolver(state.PolicyMerge)
	vs := &state.VersionedState{Version: 2, Data: map[string]any{"chat": "hi", "pot": 5}, Changes: []state.StateChange{
		{Path: []string{"chat"}, NewValue: "hey", Timestamp: t0},
		{Path: []string{"pot"}, NewValue: 5, Timestamp: t0.Add(time.Second)},
		{Path: []string{"chat"}, NewValue: "hi", Timestamp: t0.Add(2 * time.Second)},
	}}
	d := delta.Delta{From: 2, To: 3, Changes: []delta.Change{
		{Path: []string{"chat"}, Kind: delta.KindUpdate, OldValue: "hey", NewValue: "yo", Timestamp: t0.Add(time.Minute)},
		{Path: []string{"note"}, Kind: delta.KindUpdate, OldValue: "x", NewValue: "y", Timestamp: t0},
	}}

	conflicts := r.Detect(vs, d)
	require.Len(t, conflicts, 2)
	assert.Equal(t, t0.Add(2*time.Second), conflicts[0].ClientTimestamp)
	assert.Equal(t, t0.Add(time.Minute), conflicts[0].ServerTimestamp)
	assert.True(t, conflicts[1].ClientTimestamp.IsZero())
}

func TestDetectAbsentEqualsNilOldValue(t *testing.T) {
	r := NewResolver(state.PolicyMerge)
	vs := &state.VersionedState{Data: map[string]any{}}
	d := delta.Delta{Changes: []delta.Change{{Path: []string{"winner"}, Kind: delta.KindCreate, NewValue: "alice"}}}
	assert.Empty(t, r.Detect(vs, d))
}

func TestCriticalPathAlwaysRemote(t *testing.T) {
	for _, policy := range []state.Policy{state.PolicyLocal, state.PolicyRemote, state.PolicyMerge} {
		r := NewResolver(policy)
		for _, p := range DefaultCriticalPaths() {
			c := r.Resolve(state.Conflict{
				Kind:        state.ConflictOverride,
				Policy:      policy,
				Path:        delta.ParsePath(p),
				ClientValue: "local",
				ServerValue: "remote",
			})
			assert.Equal(t, "remote", c.ResolvedValue, "policy %s path %s", policy, p)
			assert.Equal(t, state.PolicyRemote, c.Policy)
		}
		c := r.Resolve(state.Conflict{Kind: state.ConflictOverride, Policy: policy,
			Path: []string{"communityCards", "2"}, ClientValue: "Ah", ServerValue: "Kd"})
		assert.Equal(t, "Kd", c.ResolvedValue)
	}
}

func TestPolicyOnNonCriticalPath(t *testing.T) {
	base := state.Conflict{Kind: state.ConflictOverride, Path: []string{"players", "1", "note"}, ClientValue: "mine", ServerValue: "theirs"}

	local := base
	local.Policy = state.PolicyLocal
	assert.Equal(t, "mine", NewResolver(state.PolicyLocal).Resolve(local).ResolvedValue)

	remote := base
	remote.Policy = state.PolicyRemote
	assert.Equal(t, "theirs", NewResolver(state.PolicyRemote).Resolve(remote).ResolvedValue)

	merge := base
	merge.Policy = state.PolicyMerge
	assert.Equal(t, "theirs", NewResolver(state.PolicyMerge).Resolve(merge).ResolvedValue)
}

func TestMergeKeepsLaterLocalChange(t *testing.T) {
	r := NewResolver(state.PolicyMerge)
	base := state.Conflict{Kind: state.ConflictOverride, Policy: state.PolicyMerge,
		Path: []string{"chat"}, ClientValue: "mine", ServerValue: "theirs"}

	later := base
	later.ClientTimestamp, later.ServerTimestamp = t0.Add(time.Minute), t0
	assert.Equal(t, "mine", r.Resolve(later).ResolvedValue)

	earlier := base
	earlier.ClientTimestamp, earlier.ServerTimestamp = t0, t0.Add(time.Minute)
	assert.Equal(t, "theirs", r.Resolve(earlier).ResolvedValue)

	tie := base
	tie.ClientTimestamp, tie.ServerTimestamp = t0, t0
	assert.Equal(t, "theirs", r.Resolve(tie).ResolvedValue)

	remote := later
	remote.Policy = state.PolicyRemote
	assert.Equal(t, "theirs", r.Resolve(remote).ResolvedValue)
}

func TestCriticalPathIgnoresChangeTimes(t *testing.T) {
	r := NewResolver(state.PolicyMerge)
	c := r.Resolve(state.Conflict{Kind: state.ConflictOverride, Policy: state.PolicyMerge,
		Path: []string{"pot"}, ClientValue: 150, ServerValue: 300,
		ClientTimestamp: t0.Add(time.Minute), ServerTimestamp: t0})
	assert.Equal(t, 300, c.ResolvedValue)
	assert.Equal(t, state.PolicyRemote, c.Policy)
}

func TestMergeLaws(t *testing.T) {
	critical := map[string]bool{"pot": true}

	assert.Equal(t, 5, Merge(nil, 5, critical))
	assert.Equal(t, 5, Merge(5, nil, critical))
	assert.Equal(t, "b", Merge("a", "b", critical))
	assert.Equal(t, t0, Merge(t0.Add(-time.Hour), t0, critical))

	remote := []any{"Ah", "Kd"}
	got := Merge([]any{"2c"}, remote, critical).([]any)
	assert.Equal(t, remote, got)
	got[0] = "mutated"
	assert.Equal(t, "Ah", remote[0], "merge must copy the remote slice")

	local := map[string]any{"pot": 10, "note": "keep", "nested": map[string]any{"a": 1}}
	merged := Merge(local, map[string]any{"pot": 50, "note": "drop", "nested": map[string]any{"b": 2}}, critical).(map[string]any)
	assert.Equal(t, 50, merged["pot"])
	assert.Equal(t, "keep", merged["note"])
	assert.Equal(t, map[string]any{"a": 1}, merged["nested"], "merge is shallow")
	assert.Equal(t, 10, local["pot"])
}

func TestHandleRemoteWritesAndAdvancesVersion(t *testing.T) {
	r := NewResolver(state.PolicyRemote, WithClock(fixedClock()))
	vs := &state.VersionedState{Version: 2, Data: map[string]any{"players": map[string]any{"1": map[string]any{"bet": 5}}}}

	c := r.Handle(vs, state.Conflict{
		ServerVersion: 7,
		Kind:          state.ConflictOverride,
		Policy:        state.PolicyRemote,
		Path:          []string{"players", "1", "bet"},
		ClientValue:   5,
		ServerValue:   40,
	})

	assert.True(t, c.Resolved)
	assert.Equal(t, 7, vs.Version)
	v, _ := delta.Get(vs.Data, []string{"players", "1", "bet"})
	assert.Equal(t, 40, v)
	require.Len(t, vs.Changes, 1)
	audit := vs.Changes[0]
	assert.Equal(t, state.OriginRemote, audit.Origin)
	assert.Equal(t, 5, audit.OldValue)
	assert.Equal(t, 40, audit.NewValue)
	assert.Equal(t, t0, audit.Timestamp)
}

func TestHandleLocalKeepsDataButAudits(t *testing.T) {
	r := NewResolver(state.PolicyLocal)
	vs := &state.VersionedState{Version: 2, Data: map[string]any{"note": "mine"}}

	r.Handle(vs, state.Conflict{ServerVersion: 9, Kind: state.ConflictOverride, Policy: state.PolicyLocal,
		Path: []string{"note"}, ClientValue: "mine", ServerValue: "theirs"})

	assert.Equal(t, 2, vs.Version)
	assert.Equal(t, "mine", vs.Data["note"])
	require.Len(t, vs.Changes, 1)
	assert.Equal(t, "mine", vs.Changes[0].NewValue)
}

func TestHandleWholeStateMerge(t *testing.T) {
	r := NewResolver(state.PolicyMerge)
	vs := &state.VersionedState{Version: 1, Data: map[string]any{"pot": 10, "note": "mine"}}
	d := delta.Delta{From: 3, To: 4, Changes: []delta.Change{
		{Path: []string{"pot"}, Kind: delta.KindUpdate, OldValue: 10, NewValue: 90},
		{Path: []string{"note"}, Kind: delta.KindUpdate, OldValue: "mine", NewValue: "theirs"},
	}}

	conflicts := r.Detect(vs, d)
	require.Len(t, conflicts, 1)
	r.Handle(vs, conflicts[0])

	assert.Equal(t, 4, vs.Version)
	assert.Equal(t, 90, vs.Data["pot"])
	assert.Equal(t, "mine", vs.Data["note"])
}

func TestCustomResolverOverridesBuiltIn(t *testing.T) {
	r := NewResolver(state.PolicyLocal)
	r.Register(state.ConflictOverride, func(c state.Conflict) state.Conflict {
		c.ResolvedValue = "forced"
		c.Policy = state.PolicyRemote
		return c
	})
	vs := &state.VersionedState{Data: map[string]any{"pot": 1}}

	c := r.Handle(vs, state.Conflict{Kind: state.ConflictOverride, Policy: state.PolicyLocal,
		Path: []string{"pot"}, ClientValue: 1, ServerValue: 2})

	assert.Equal(t, "forced", c.ResolvedValue)
	assert.Equal(t, "forced", vs.Data["pot"])

	r.Register(state.ConflictOverride, nil)
	c = r.Resolve(state.Conflict{Kind: state.ConflictOverride, Path: []string{"pot"}, ClientValue: 1, ServerValue: 2})
	assert.Equal(t, 2, c.ResolvedValue)
}

func TestWithCriticalPaths(t *testing.T) {
	r := NewResolver(state.PolicyLocal, WithCriticalPaths("blinds.small"))
	assert.True(t, r.IsCritical([]string{"blinds", "small"}))
	assert.False(t, r.IsCritical([]string{"pot"}))
	assert.False(t, r.IsCritical(nil))
}
