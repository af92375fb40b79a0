package deck

import (
	"fmt"
	"math/rand"
)

type Suit string

const (
	Spades   Suit = "S"
	Hearts   Suit = "H"
	Diamonds Suit = "D"
	Clubs    Suit = "C"
)

var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Card is an immutable playing card, identified by suit and rank.
// Rank runs 1 (ace) through 13 (king).
type Card struct {
	Suit Suit `json:"suit"`
	Rank int  `json:"rank"`
}

const (
	DeckSize = 52
	AceLow   = 1
	AceHigh  = 14
)

var rankNames = map[int]string{1: "A", 11: "J", 12: "Q", 13: "K"}

// Code returns the short identifier used on the wire, e.g. "AS", "10D".
func (c Card) Code() string {
	if name, ok := rankNames[c.Rank]; ok {
		return name + string(c.Suit)
	}
	return fmt.Sprintf("%d%s", c.Rank, c.Suit)
}

// Values returns the numeric values the card may legally stand for in
// build and capture matching. Every rank has exactly one value except the
// ace, which also counts as 14 when the ace-high house rule is on.
func (c Card) Values(aceHigh bool) []int {
	if c.Rank == AceLow && aceHigh {
		return []int{AceLow, AceHigh}
	}
	return []int{c.Rank}
}

// MatchesValue reports whether the card may stand for v.
func (c Card) MatchesValue(v int, aceHigh bool) bool {
	for _, cv := range c.Values(aceHigh) {
		if cv == v {
			return true
		}
	}
	return false
}

// New returns a full 52-card deck in suit-then-rank order.
func New() []Card {
	cards := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for r := 1; r <= 13; r++ {
			cards = append(cards, Card{Suit: s, Rank: r})
		}
	}
	return cards
}

// Shuffle permutes cards in place with a Fisher-Yates shuffle driven by rng.
func Shuffle(cards []Card, rng *rand.Rand) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Deal removes the first n cards from the deck and returns them along with
// the remainder. Deals fewer than n when the deck runs short.
func Deal(cards []Card, n int) (hand, rest []Card) {
	if n > len(cards) {
		n = len(cards)
	}
	hand = append([]Card(nil), cards[:n]...)
	rest = cards[n:]
	return hand, rest
}

// Find locates a card by wire code in a pile, returning its index or -1.
func Find(pile []Card, code string) int {
	for i, c := range pile {
		if c.Code() == code {
			return i
		}
	}
	return -1
}

// Remove deletes the card at index i, preserving order.
func Remove(pile []Card, i int) []Card {
	out := append([]Card(nil), pile[:i]...)
	return append(out, pile[i+1:]...)
}
