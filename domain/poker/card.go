package poker

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
)

// Card suits.
const (
	Club    = 0
	Diamond = 1
	Heart   = 2
	Spade   = 3
)

// Face card and ace ranks.
const (
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 1
)

// FaceDown is the display of a hidden card.
const FaceDown = "▓"

// Card is a playing card. The zero Card is face down.
type Card struct {
	suit uint8
	rank uint8
}

// NewCard validates suit (0-3) and rank (1-13).
func NewCard(suit uint8, rank uint8) (Card, error) {
	if suit > 3 || rank == 0 || rank > 13 {
		return Card{}, fmt.Errorf("invalid card %d, %d", suit, rank)
	}
	return Card{suit: suit, rank: rank}, nil
}

func (c Card) Suit() uint8 { return c.suit }

func (c Card) Rank() uint8 { return c.rank }

// FaceDown reports whether the card is hidden.
func (c Card) FaceDown() bool { return c.rank == 0 }

func (c Card) String() string {
	if c.rank == 0 {
		return FaceDown
	}
	var suit string
	switch c.suit {
	case Club:
		suit = pterm.Black("♣")
	case Diamond:
		suit = pterm.LightRed("♦")
	case Heart:
		suit = pterm.LightRed("♥")
	case Spade:
		suit = pterm.Black("♠")
	default:
		suit = "?"
	}
	switch c.rank {
	case Ace:
		return "A" + suit
	case Jack:
		return "J" + suit
	case Queen:
		return "Q" + suit
	case King:
		return "K" + suit
	}
	return fmt.Sprintf("%d%s", c.rank, suit)
}

// IntToCard converts a card number to a Card: 1-13 are clubs, 14-26
// diamonds, 27-39 hearts and 40-52 spades, ace through king. 0 is a face down
// card.
func IntToCard(n int) (Card, error) {
	if n == 0 {
		return Card{}, nil
	}
	if n > 52 || n < 0 {
		return Card{}, errors.New("the card to convert has an invalid value")
	}
	return NewCard(uint8((n-1)/13), uint8((n-1)%13+1))
}

// CardToInt is the inverse of IntToCard.
func CardToInt(c Card) int {
	if c.rank == 0 {
		return 0
	}
	return int(c.suit)*13 + int(c.rank)
}
