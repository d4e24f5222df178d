package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKyberChecksumDeterministic(t *testing.T) {
	k := NewKyberChecksum()
	a := map[string]any{"pot": 100, "phase": "flop", "players": map[string]any{"1": 5, "2": 7}}
	b := map[string]any{"players": map[string]any{"2": 7, "1": 5}, "phase": "flop", "pot": 100}

	assert.Equal(t, k.Checksum(a), k.Checksum(b))
	assert.NotEqual(t, k.Checksum(a), k.Checksum(map[string]any{"pot": 101}))
	assert.NotEmpty(t, k.Checksum(map[string]any{}))
}

func TestStoreChecksumTracksCommit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(nil, ClockFunc(func() time.Time { return now }))
	empty := s.Snapshot()
	assert.Equal(t, 0, empty.Version)
	assert.Equal(t, NewKyberChecksum().Checksum(map[string]any{}), empty.Checksum)

	s.Mutate(func(vs *VersionedState) {
		vs.Data["pot"] = 100
		vs.Version++
	})
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, NewKyberChecksum().Checksum(map[string]any{"pot": 100}), snap.Checksum)
	assert.Equal(t, now, snap.Timestamp)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore(nil, nil)
	s.Mutate(func(vs *VersionedState) {
		vs.Data["players"] = map[string]any{"1": map[string]any{"bet": 1}}
		vs.Changes = append(vs.Changes, StateChange{Path: []string{"players"}})
	})

	snap := s.Snapshot()
	snap.Data["players"].(map[string]any)["1"].(map[string]any)["bet"] = 99
	snap.Changes[0].Path[0] = "mutated"

	again := s.Snapshot()
	assert.Equal(t, 1, again.Data["players"].(map[string]any)["1"].(map[string]any)["bet"])
	assert.Equal(t, "players", again.Changes[0].Path[0])
}

func TestNegativeVersionPanics(t *testing.T) {
	s := NewStore(nil, nil)
	require.Panics(t, func() {
		s.Mutate(func(vs *VersionedState) { vs.Version-- })
	})
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"local": PolicyLocal, "client": PolicyLocal,
		"remote": PolicyRemote, "server": PolicyRemote,
		"merge": PolicyMerge,
	} {
		got, ok := ParsePolicy(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParsePolicy("coinflip")
	assert.False(t, ok)
	assert.False(t, Policy("coinflip").Valid())
}

func TestEquivalentChanges(t *testing.T) {
	a := StateChange{Path: []string{"pot"}, OldValue: 1, NewValue: 2, Origin: OriginLocal}
	b := StateChange{Path: []string{"pot"}, OldValue: float64(1), NewValue: float64(2), Origin: OriginRemote}
	c := StateChange{Path: []string{"pot"}, OldValue: 1, NewValue: 3}
	assert.True(t, a.Equivalent(b))
	assert.False(t, a.Equivalent(c))
}

func TestSequenceCounter(t *testing.T) {
	var c SequenceCounter
	assert.Equal(t, 1, c.Next())
	assert.Equal(t, 2, c.Next())
}
