package poker

// recalculatePots rebuilds the main pot and the side pots from the players'
// bets. A pot is shared by the non-folded players who contributed to it.
func (s *Session) recalculatePots() {
	s.Pots = nil

	bets := make([]uint, len(s.Players))
	for i, p := range s.Players {
		bets[i] = p.Bet
	}

	for {
		contributors := []int{}
		for i, b := range bets {
			if b > 0 {
				contributors = append(contributors, i)
			}
		}
		if len(contributors) == 0 {
			break
		}

		minBet := bets[contributors[0]]
		for _, idx := range contributors {
			if bets[idx] < minBet {
				minBet = bets[idx]
			}
		}

		amount := uint(0)
		eligible := []int{}
		for _, idx := range contributors {
			amount += minBet
			bets[idx] -= minBet
			if !s.Players[idx].HasFolded {
				eligible = append(eligible, idx)
			}
		}

		if n := len(s.Pots); n > 0 && sameSeats(s.Pots[n-1].Eligible, eligible) {
			s.Pots[n-1].Amount += amount
			continue
		}
		s.Pots = append(s.Pots, Pot{Amount: amount, Eligible: eligible})
	}

	if onePlayerRemained(s.Pots) {
		var total uint
		for _, p := range s.Pots {
			total += p.Amount
		}
		s.Pots = []Pot{{Amount: total, Eligible: []int{s.Pots[0].Eligible[0]}}}
	}
}

// onePlayerRemained reports whether every pot has the same single eligible
// player.
func onePlayerRemained(pots []Pot) bool {
	if len(pots) == 0 {
		return false
	}
	for _, pot := range pots {
		if len(pot.Eligible) != 1 || pot.Eligible[0] != pots[0].Eligible[0] {
			return false
		}
	}
	return true
}

func sameSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
