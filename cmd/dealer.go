package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/luca-patrignani/mental-poker-sync/authority"
	"github.com/luca-patrignani/mental-poker-sync/domain/poker"
)

// keyLastHand holds the outcome of the previous hand in the table state.
const keyLastHand = "lastHand"

// boardCards is the number of community cards showing in each round.
var boardCards = map[poker.Round]int{
	poker.PreFlop:  0,
	poker.Flop:     3,
	poker.Turn:     4,
	poker.River:    5,
	poker.Showdown: 5,
}

// dealer deals the table held by an authority: it reveals the board as the
// betting rounds advance and settles the hand at showdown. Hole cards stay
// with the dealer until showdown and are handed to their seat on request.
type dealer struct {
	srv    *authority.Server
	rand   *rand.Rand
	logger *slog.Logger

	mu    sync.Mutex
	deck  []int
	hands map[int][2]int // by seat
	hand  int
}

func newDealer(srv *authority.Server, seats int, r *rand.Rand, logger *slog.Logger) *dealer {
	d := &dealer{srv: srv, rand: r, logger: logger}
	d.shuffle(seats)
	return d
}

func (d *dealer) shuffle(seats int) {
	perm := d.rand.Perm(52)
	d.deck = make([]int, len(perm))
	for i, n := range perm {
		d.deck[i] = n + 1
	}
	d.hands = make(map[int][2]int, seats)
	for seat := range seats {
		d.hands[seat] = [2]int{d.draw(), d.draw()}
	}
	d.hand++
}

func (d *dealer) draw() int {
	n := d.deck[0]
	d.deck = d.deck[1:]
	return n
}

// step reveals the community cards the current round calls for and settles
// the hand once it reached showdown.
func (d *dealer) step() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := poker.FromState(d.srv.Snapshot().Data)
	if err != nil {
		return err
	}
	want := boardCards[s.Round]
	if s.Round == poker.Showdown && activePlayers(s) < 2 {
		want = 0
	}
	if missing := want - faceUp(s.Board); missing > 0 {
		cards := make([]poker.Card, missing)
		for i := range cards {
			if cards[i], err = poker.IntToCard(d.draw()); err != nil {
				return err
			}
		}
		partial, err := s.RevealBoard(cards...)
		if err != nil {
			return err
		}
		applied := d.srv.Apply(partial)
		d.logger.Info("board revealed", "round", string(s.Round), "cards", missing, "version", applied.To)
	}
	if s.Round != poker.Showdown {
		return nil
	}
	return d.settle(&s)
}

func (d *dealer) settle(s *poker.Session) error {
	showdown := activePlayers(*s) > 1
	descriptions := make(map[int]string, len(s.Players))
	for seat, p := range s.Players {
		h := d.hands[seat]
		a, err := poker.IntToCard(h[0])
		if err != nil {
			return err
		}
		b, err := poker.IntToCard(h[1])
		if err != nil {
			return err
		}
		if err := s.SetHand(p.ID, a, b); err != nil {
			return err
		}
		if showdown && !p.HasFolded {
			if descriptions[seat], err = s.DescribeHand(seat); err != nil {
				return err
			}
		}
	}

	winnings, err := s.Settle()
	if err != nil {
		return fmt.Errorf("settling hand %d: %w", d.hand, err)
	}
	results := []any{}
	for seat, p := range s.Players {
		w, ok := winnings[p.ID]
		if !ok || w == 0 {
			continue
		}
		h := d.hands[seat]
		results = append(results, map[string]any{
			"seat":   seat,
			"name":   p.Name,
			"amount": w,
			"hand":   descriptions[seat],
			"cards":  []any{h[0], h[1]},
		})
	}

	number := d.hand
	d.shuffle(len(s.Players))
	partial := s.Snapshot()
	partial[keyLastHand] = map[string]any{"number": number, "results": results}
	applied := d.srv.Apply(partial)
	d.logger.Info("hand settled", "hand", number, "winners", len(results), "version", applied.To)
	return nil
}

// serveHand writes the hole cards of the seat in the URL.
func (d *dealer) serveHand(w http.ResponseWriter, r *http.Request) {
	seat, err := strconv.Atoi(chi.URLParam(r, "seat"))
	if err != nil {
		http.Error(w, "invalid seat", http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	h, ok := d.hands[seat]
	number := d.hand
	d.mu.Unlock()
	if !ok {
		http.Error(w, "unknown seat", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(holeCards{Hand: number, Cards: h})
}

type holeCards struct {
	Hand  int    `json:"hand"`
	Cards [2]int `json:"cards"`
}

func activePlayers(s poker.Session) int {
	n := 0
	for _, p := range s.Players {
		if !p.HasFolded {
			n++
		}
	}
	return n
}

func faceUp(board [5]poker.Card) int {
	n := 0
	for _, c := range board {
		if !c.FaceDown() {
			n++
		}
	}
	return n
}
