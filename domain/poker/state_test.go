package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCarriesTableFields(t *testing.T) {
	s := NewSession([]string{"alice", "bob"}, 100)
	require.NoError(t, s.SetHand(0, card(t, Spade, Ace), card(t, Heart, Ace)))
	_, err := s.Act(Action{PlayerID: 1, Type: ActionBet, Amount: 10})
	require.NoError(t, err)
	state, err := s.RevealBoard(card(t, Club, 2))
	require.NoError(t, err)

	for _, key := range []string{"currentTurn", "phase", "pot", "dealer", "communityCards"} {
		assert.Contains(t, state, key)
	}
	assert.Equal(t, []any{float64(2)}, state["communityCards"])
	bob := state["players"].(map[string]any)["1"].(map[string]any)
	assert.Equal(t, float64(90), bob["chips"])
	assert.Equal(t, float64(10), bob["bet"])
	assert.NotContains(t, state["players"].(map[string]any)["0"], "hand")
}

func TestFromStateRestoresTheSharedView(t *testing.T) {
	s := NewSession([]string{"alice", "bob", "carol"}, 100)
	_, err := s.Act(Action{PlayerID: 1, Type: ActionBet, Amount: 10})
	require.NoError(t, err)
	_, err = s.Act(Action{PlayerID: 2, Type: ActionFold})
	require.NoError(t, err)
	_, err = s.RevealBoard(card(t, Heart, 5))
	require.NoError(t, err)

	restored, err := FromState(s.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), restored.Snapshot())
	assert.Equal(t, s.Pots, restored.Pots)
	assert.True(t, restored.Players[2].HasFolded)

	_, err = restored.Act(Action{PlayerID: 0, Type: ActionCall})
	assert.NoError(t, err)
}

func TestFromStateRejectsBadSeats(t *testing.T) {
	_, err := FromState(map[string]any{"players": map[string]any{"x": map[string]any{}}})
	assert.Error(t, err)
	_, err = FromState(map[string]any{"communityCards": []any{99}})
	assert.Error(t, err)
}
