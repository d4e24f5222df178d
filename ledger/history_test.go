package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/mental-poker-sync/state"
)

func deterministicHistory(maxLength int) *History {
	tick := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := state.ClockFunc(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})
	sum := state.ChecksumFunc(func(data map[string]any) string {
		if v, ok := data["pot"]; ok {
			return fmt.Sprint("pot-", v)
		}
		return "empty"
	})
	return NewHistory(WithMaxLength(maxLength), WithClock(clock), WithChecksum(sum))
}

func TestCreateVersionUsesProviders(t *testing.T) {
	h := deterministicHistory(10)
	changes := []state.StateChange{{ID: "c1", Path: []string{"pot"}, NewValue: 5}}

	vs := h.CreateVersion(map[string]any{"pot": 5}, changes)

	assert.Equal(t, 1, vs.Version)
	assert.Equal(t, "pot-5", vs.Checksum)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), vs.Timestamp)
	assert.Equal(t, changes, vs.Changes)
	assert.NoError(t, h.Verify())
}

func TestBoundedHistoryEvictsOldestFirst(t *testing.T) {
	const maxLength, extra = 5, 3
	h := deterministicHistory(maxLength)
	for i := 0; i < maxLength+extra; i++ {
		h.CreateVersion(map[string]any{"pot": i}, nil)
	}

	assert.Equal(t, maxLength, h.Len())
	assert.Equal(t, []int{4, 5, 6, 7, 8}, h.Versions())
	for v := 1; v <= extra; v++ {
		_, ok := h.GetVersion(v)
		assert.False(t, ok, "version %d should be evicted", v)
	}
	require.NoError(t, h.Verify(), "the retained window re-roots after eviction")
}

func TestGetVersionAndLookup(t *testing.T) {
	h := deterministicHistory(10)
	h.CreateVersion(map[string]any{"pot": 1}, nil)
	h.CreateVersion(map[string]any{"pot": 2}, nil)

	vs, ok := h.GetVersion(2)
	require.True(t, ok)
	assert.Equal(t, 2, vs.Data["pot"])

	_, ok = h.GetVersion(42)
	assert.False(t, ok)

	_, err := h.Lookup(42)
	assert.True(t, errors.Is(err, ErrVersionNotFound))
}

func TestRangeIsInclusive(t *testing.T) {
	h := deterministicHistory(10)
	for i := 0; i < 6; i++ {
		h.CreateVersion(map[string]any{"pot": i}, nil)
	}

	got := h.Range(2, 4)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, 4, got[2].Version)
	assert.Empty(t, h.Range(7, 9))
}

func TestCompareReturnsChangeLogOfSecondVersion(t *testing.T) {
	h := deterministicHistory(10)
	h.CreateVersion(map[string]any{"pot": 1}, []state.StateChange{{ID: "a"}})
	h.CreateVersion(map[string]any{"pot": 2}, []state.StateChange{{ID: "b1"}, {ID: "b2"}})

	changes, err := h.Compare(1, 2)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "b1", changes[0].ID)

	_, err = h.Compare(1, 9)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, err = h.Compare(9, 1)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestVerifyDetectsTampering(t *testing.T) {
	h := deterministicHistory(10)
	h.CreateVersion(map[string]any{"pot": 1}, nil)
	h.CreateVersion(map[string]any{"pot": 2}, nil)
	h.CreateVersion(map[string]any{"pot": 3}, nil)
	require.NoError(t, h.Verify())

	h.entries[1].Data["pot"] = 9
	assert.Error(t, h.Verify())

	h.entries[1].Data["pot"] = 2
	require.NoError(t, h.Verify())
	h.entries[2].PrevHash = "forged"
	assert.Error(t, h.Verify())
}

func TestReturnedSnapshotsAreCopies(t *testing.T) {
	h := deterministicHistory(10)
	data := map[string]any{"pot": 1}
	h.CreateVersion(data, nil)
	data["pot"] = 7

	vs, _ := h.Latest()
	assert.Equal(t, 1, vs.Data["pot"])
	vs.Data["pot"] = 8
	again, _ := h.GetVersion(1)
	assert.Equal(t, 1, again.Data["pot"])
}

func TestCounterProvider(t *testing.T) {
	n := 40
	h := NewHistory(WithCounter(state.CounterFunc(func() int { n += 2; return n })))
	assert.Equal(t, 42, h.CreateVersion(nil, nil).Version)
	assert.Equal(t, 44, h.CreateVersion(nil, nil).Version)
}
