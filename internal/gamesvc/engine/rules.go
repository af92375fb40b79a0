package engine

import "github.com/cassino-games/cassino-services/internal/gamesvc/deck"

// Scoring is the point table applied at the end of each round. House rules
// for these values vary, so they are configuration rather than constants.
type Scoring struct {
	AcePoints           int       `json:"ace_points"`
	HighCard            deck.Card `json:"high_card"` // "big cassino"
	HighCardPoints      int       `json:"high_card_points"`
	LowCard             deck.Card `json:"low_card"` // "little cassino"
	LowCardPoints       int       `json:"low_card_points"`
	CardsMajorityPoints int       `json:"cards_majority_points"`
	MajoritySuit        deck.Suit `json:"majority_suit"`
	SuitMajorityPoints  int       `json:"suit_majority_points"`
}

// Rules carries the full game-time configuration for a room.
type Rules struct {
	HandSize  int `json:"hand_size"`
	TableSize int `json:"table_size"` // cards dealt face up on the initial deal
	Rounds    int `json:"rounds"`

	// AceHigh lets an ace stand for 14 as well as 1 in build/capture matching.
	AceHigh bool `json:"ace_high"`

	// OpponentBuildCapture allows capturing an opponent's build on an exact
	// value match. When off, builds may only be taken by their owner.
	OpponentBuildCapture bool `json:"opponent_build_capture"`

	// TrailWithOwnBuild allows trailing while the player still owns a build
	// on the table. Off in the standard rule set.
	TrailWithOwnBuild bool `json:"trail_with_own_build"`

	Scoring Scoring `json:"scoring"`
}

// DefaultRules returns the standard two-player Cassino configuration.
func DefaultRules() Rules {
	return Rules{
		HandSize:             4,
		TableSize:            4,
		Rounds:               2,
		AceHigh:              true,
		OpponentBuildCapture: true,
		TrailWithOwnBuild:    false,
		Scoring: Scoring{
			AcePoints:           1,
			HighCard:            deck.Card{Suit: deck.Diamonds, Rank: 10},
			HighCardPoints:      2,
			LowCard:             deck.Card{Suit: deck.Spades, Rank: 2},
			LowCardPoints:       1,
			CardsMajorityPoints: 3,
			MajoritySuit:        deck.Spades,
			SuitMajorityPoints:  1,
		},
	}
}
