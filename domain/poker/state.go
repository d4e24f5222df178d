package poker

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type tableState struct {
	CurrentTurn    int                    `json:"currentTurn"`
	Phase          Round                  `json:"phase"`
	Pot            uint                   `json:"pot"`
	Dealer         int                    `json:"dealer"`
	CommunityCards []int                  `json:"communityCards"`
	HighestBet     uint                   `json:"highestBet"`
	ToAct          int                    `json:"toAct"`
	Players        map[string]playerState `json:"players"`
}

type playerState struct {
	Name   string `json:"name"`
	ID     int    `json:"id"`
	Chips  uint   `json:"chips"`
	Bet    uint   `json:"bet"`
	Folded bool   `json:"folded"`
}

// Snapshot returns the shared state of the table as plain JSON-like values.
// Players are keyed by seat index so a single seat diffs on its own. Hole
// cards are left out.
func (s *Session) Snapshot() map[string]any {
	ts := tableState{
		CurrentTurn:    s.CurrentTurn,
		Phase:          s.Round,
		Pot:            s.PotTotal(),
		Dealer:         s.Dealer,
		CommunityCards: []int{},
		HighestBet:     s.HighestBet,
		ToAct:          s.ToAct,
		Players:        make(map[string]playerState, len(s.Players)),
	}
	for _, c := range s.Board {
		if !c.FaceDown() {
			ts.CommunityCards = append(ts.CommunityCards, CardToInt(c))
		}
	}
	for i, p := range s.Players {
		ts.Players[strconv.Itoa(i)] = playerState{Name: p.Name, ID: p.ID, Chips: p.Chips, Bet: p.Bet, Folded: p.HasFolded}
	}

	b, err := json.Marshal(ts)
	if err != nil {
		panic(fmt.Sprintf("poker: encoding table state: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("poker: decoding table state: %v", err))
	}
	return out
}

// FromState rebuilds a Session from the shared state. Hole cards are face
// down; pots are recomputed from the bets.
func FromState(data map[string]any) (Session, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Session{}, fmt.Errorf("encoding state: %w", err)
	}
	var ts tableState
	if err := json.Unmarshal(b, &ts); err != nil {
		return Session{}, fmt.Errorf("decoding table state: %w", err)
	}

	s := Session{
		CurrentTurn: ts.CurrentTurn,
		Round:       ts.Phase,
		Dealer:      ts.Dealer,
		HighestBet:  ts.HighestBet,
		ToAct:       ts.ToAct,
		Players:     make([]Player, len(ts.Players)),
	}
	if len(ts.CommunityCards) > len(s.Board) {
		return Session{}, fmt.Errorf("%d community cards", len(ts.CommunityCards))
	}
	for i, n := range ts.CommunityCards {
		c, err := IntToCard(n)
		if err != nil {
			return Session{}, err
		}
		s.Board[i] = c
	}
	for key, p := range ts.Players {
		seat, err := strconv.Atoi(key)
		if err != nil || seat < 0 || seat >= len(s.Players) {
			return Session{}, fmt.Errorf("invalid seat %q", key)
		}
		s.Players[seat] = Player{Name: p.Name, ID: p.ID, Chips: p.Chips, Bet: p.Bet, HasFolded: p.Folded}
	}
	s.recalculatePots()
	return s, nil
}
