package poker

import (
	"errors"
	"fmt"
)

type Round string

const (
	PreFlop  Round = "preflop"
	Flop     Round = "flop"
	Turn     Round = "turn"
	River    Round = "river"
	Showdown Round = "showdown"
)

type ActionType string

const (
	ActionBet   ActionType = "bet"
	ActionCall  ActionType = "call"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "allin"
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
)

// Action is a move of the player with PlayerID. Amount is only read for bets
// and raises.
type Action struct {
	PlayerID int        `json:"playerId"`
	Type     ActionType `json:"type"`
	Amount   uint       `json:"amount"`
}

var (
	ErrNotYourTurn   = errors.New("not player's turn")
	ErrIllegalAction = errors.New("illegal action")
	ErrHandOver      = errors.New("hand is over")
)

type Player struct {
	Name      string
	ID        int
	Hand      [2]Card
	HasFolded bool
	Bet       uint // chips committed in the current hand
	Chips     uint
}

type Pot struct {
	Amount   uint
	Eligible []int // player indices
}

// Session is one hand at a table.
type Session struct {
	Board       [5]Card
	Players     []Player
	Pots        []Pot
	HighestBet  uint
	Dealer      int
	CurrentTurn int
	Round       Round
	ToAct       int // players still to act before the round ends
}

// NewSession seats names in order, each with chips, and starts the first
// hand with the dealer marker on seat 0.
func NewSession(names []string, chips uint) Session {
	s := Session{Round: PreFlop}
	for i, name := range names {
		s.Players = append(s.Players, Player{Name: name, ID: i, Chips: chips})
	}
	s.startRound()
	return s
}

// Act validates and applies a. It returns the new shared state.
func (s *Session) Act(a Action) (map[string]any, error) {
	if s.Round == Showdown {
		return nil, ErrHandOver
	}
	idx := s.FindPlayerIndex(a.PlayerID)
	if idx == -1 {
		return nil, fmt.Errorf("player %d not in session", a.PlayerID)
	}
	if idx != s.CurrentTurn {
		return nil, fmt.Errorf("%w: current turn %d, player index %d", ErrNotYourTurn, s.CurrentTurn, idx)
	}
	if err := s.checkPokerLogic(a, idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIllegalAction, a.Type, err)
	}
	s.applyAction(a, idx)
	return s.Snapshot(), nil
}

func (s *Session) checkPokerLogic(a Action, idx int) error {
	p := s.Players[idx]
	switch a.Type {
	case ActionFold:
	case ActionBet:
		if a.Amount == 0 {
			return errors.New("bet must be positive")
		}
		if p.Chips < a.Amount {
			return errors.New("insufficient funds")
		}
		if p.Bet+a.Amount < s.HighestBet {
			return errors.New("bet must at least match highest bet")
		}
	case ActionRaise:
		if p.Chips < a.Amount {
			return errors.New("insufficient funds")
		}
		if p.Bet+a.Amount <= s.HighestBet {
			return errors.New("raise must exceed highest bet")
		}
	case ActionCall:
		if s.HighestBet-p.Bet > p.Chips {
			return errors.New("insufficient funds to call")
		}
	case ActionAllIn:
		if p.Chips == 0 {
			return errors.New("no chips left")
		}
	case ActionCheck:
		if p.Bet != s.HighestBet {
			return errors.New("cannot check, must call, raise or fold")
		}
	default:
		return errors.New("unknown action")
	}
	return nil
}

func (s *Session) applyAction(a Action, idx int) {
	p := &s.Players[idx]
	switch a.Type {
	case ActionFold:
		p.HasFolded = true
	case ActionBet, ActionRaise:
		p.Bet += a.Amount
		p.Chips -= a.Amount
	case ActionCall:
		diff := s.HighestBet - p.Bet
		p.Bet += diff
		p.Chips -= diff
	case ActionAllIn:
		p.Bet += p.Chips
		p.Chips = 0
	}

	if p.Bet > s.HighestBet {
		s.HighestBet = p.Bet
		s.ToAct = 0
		for j := range s.Players {
			if j != idx && s.acting(j) {
				s.ToAct++
			}
		}
	} else {
		s.ToAct--
	}
	s.recalculatePots()

	if s.remaining() == 1 {
		s.Round = Showdown
		return
	}
	if s.ToAct <= 0 {
		s.advanceRound()
		return
	}
	s.advanceTurn()
}

func (s *Session) acting(i int) bool {
	return !s.Players[i].HasFolded && s.Players[i].Chips > 0
}

func (s *Session) remaining() int {
	n := 0
	for _, p := range s.Players {
		if !p.HasFolded {
			n++
		}
	}
	return n
}

func (s *Session) countActing() int {
	n := 0
	for i := range s.Players {
		if s.acting(i) {
			n++
		}
	}
	return n
}

// nextActive returns the first acting seat after from, or -1.
func (s *Session) nextActive(from int) int {
	n := len(s.Players)
	for i := 1; i <= n; i++ {
		next := (from + i) % n
		if s.acting(next) {
			return next
		}
	}
	return -1
}

func (s *Session) advanceTurn() {
	if next := s.nextActive(s.CurrentTurn); next != -1 {
		s.CurrentTurn = next
	}
}

// advanceRound moves to the next betting round, skipping rounds nobody can
// bet in.
func (s *Session) advanceRound() {
	s.Round = nextRound(s.Round)
	for s.Round != Showdown && s.countActing() < 2 {
		s.Round = nextRound(s.Round)
	}
	if s.Round != Showdown {
		s.startRound()
	}
}

func (s *Session) startRound() {
	if len(s.Players) == 0 {
		return
	}
	if next := s.nextActive(s.Dealer); next != -1 {
		s.CurrentTurn = next
	}
	s.ToAct = s.countActing()
}

func nextRound(current Round) Round {
	rounds := []Round{PreFlop, Flop, Turn, River, Showdown}
	for i, r := range rounds {
		if r == current && i < len(rounds)-1 {
			return rounds[i+1]
		}
	}
	return Showdown
}

// RevealBoard puts cards on the next free board slots.
func (s *Session) RevealBoard(cards ...Card) (map[string]any, error) {
	free := 0
	for free < len(s.Board) && !s.Board[free].FaceDown() {
		free++
	}
	if free+len(cards) > len(s.Board) {
		return nil, fmt.Errorf("board has room for %d cards, %d given", len(s.Board)-free, len(cards))
	}
	for i, c := range cards {
		if c.FaceDown() {
			return nil, errors.New("cannot reveal a face down card")
		}
		s.Board[free+i] = c
	}
	return s.Snapshot(), nil
}

// SetHand deals the hole cards of playerID.
func (s *Session) SetHand(playerID int, a, b Card) error {
	idx := s.FindPlayerIndex(playerID)
	if idx == -1 {
		return fmt.Errorf("player %d not in session", playerID)
	}
	s.Players[idx].Hand = [2]Card{a, b}
	return nil
}

// Settle pays the pots out to the winners and starts the next hand with
// the dealer marker moved one seat. It returns the winnings by player id.
func (s *Session) Settle() (map[int]uint, error) {
	winnings, err := s.Winners()
	if err != nil {
		return nil, err
	}
	for i := range s.Players {
		p := &s.Players[i]
		p.Chips += winnings[p.ID]
		p.Bet = 0
		p.HasFolded = false
		p.Hand = [2]Card{}
	}
	s.Board = [5]Card{}
	s.Pots = nil
	s.HighestBet = 0
	s.Round = PreFlop
	s.Dealer = (s.Dealer + 1) % len(s.Players)
	s.startRound()
	return winnings, nil
}

func (s *Session) FindPlayerIndex(playerID int) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// PotTotal is the sum of every pot.
func (s *Session) PotTotal() uint {
	var total uint
	for _, p := range s.Pots {
		total += p.Amount
	}
	return total
}
