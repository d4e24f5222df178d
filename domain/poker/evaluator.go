package poker

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulhankin/poker"
)

// Winners returns the winnings of each player id at showdown. A hand where
// every other player folded goes to the last one without evaluation;
// otherwise each pot goes to the best 7-card hands among its eligible
// players, split equally on ties.
func (s *Session) Winners() (map[int]uint, error) {
	results := make(map[int]uint)
	if s.remaining() == 1 {
		for _, p := range s.Players {
			if !p.HasFolded {
				results[p.ID] = s.PotTotal()
			}
		}
		return results, nil
	}

	for _, pot := range s.Pots {
		type scored struct {
			idx   int
			score int16
		}
		var scoredPlayers []scored
		for _, idx := range pot.Eligible {
			if s.Players[idx].HasFolded {
				continue
			}
			hand, err := s.makeFinalHand(idx)
			if err != nil {
				return nil, err
			}
			scoredPlayers = append(scoredPlayers, scored{idx: idx, score: poker.Eval7(&hand)})
		}
		if len(scoredPlayers) == 0 {
			continue
		}

		sort.Slice(scoredPlayers, func(i, j int) bool {
			return scoredPlayers[i].score > scoredPlayers[j].score
		})
		best := scoredPlayers[0].score
		winners := []int{scoredPlayers[0].idx}
		for _, sp := range scoredPlayers[1:] {
			if sp.score != best {
				break
			}
			winners = append(winners, sp.idx)
		}

		share := pot.Amount / uint(len(winners))
		for _, w := range winners {
			results[s.Players[w].ID] += share
		}
	}
	return results, nil
}

// DescribeHand names the best hand of the player at index idx.
func (s *Session) DescribeHand(idx int) (string, error) {
	c, err := s.makeFinalHand(idx)
	if err != nil {
		return "", err
	}
	return poker.Describe(c[:])
}

func (s *Session) makeFinalHand(idx int) ([7]poker.Card, error) {
	var hand [7]poker.Card
	for i, c := range s.Board {
		if c.FaceDown() {
			return hand, errors.New("board is not complete")
		}
		card, err := poker.MakeCard(poker.Suit(c.suit), poker.Rank(c.rank))
		if err != nil {
			return hand, fmt.Errorf("invalid board card at idx %d: %w", i, err)
		}
		hand[i] = card
	}
	for i, c := range s.Players[idx].Hand {
		if c.FaceDown() {
			return hand, fmt.Errorf("hand of %s is unknown", s.Players[idx].Name)
		}
		card, err := poker.MakeCard(poker.Suit(c.suit), poker.Rank(c.rank))
		if err != nil {
			return hand, fmt.Errorf("invalid player card: %w", err)
		}
		hand[5+i] = card
	}
	return hand, nil
}
