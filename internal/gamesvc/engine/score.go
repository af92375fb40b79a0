package engine

import "github.com/cassino-games/cassino-services/internal/gamesvc/deck"

// ComputeScore tallies one round from the captured piles. Majority bonuses
// need a strict majority; an even split awards neither player.
func ComputeScore(st *State, sc Scoring) [2]int {
	var points [2]int
	var cards, suited [2]int

	for i := range st.Players {
		for _, c := range st.Players[i].Captured {
			cards[i]++
			if c.Suit == sc.MajoritySuit {
				suited[i]++
			}
			if c.Rank == deck.AceLow {
				points[i] += sc.AcePoints
			}
			if c == sc.HighCard {
				points[i] += sc.HighCardPoints
			}
			if c == sc.LowCard {
				points[i] += sc.LowCardPoints
			}
		}
	}

	switch {
	case cards[0] > cards[1]:
		points[0] += sc.CardsMajorityPoints
	case cards[1] > cards[0]:
		points[1] += sc.CardsMajorityPoints
	}

	switch {
	case suited[0] > suited[1]:
		points[0] += sc.SuitMajorityPoints
	case suited[1] > suited[0]:
		points[1] += sc.SuitMajorityPoints
	}

	return points
}

// DetermineWinner compares accumulated scores. A tie is a draw, not an error.
func DetermineWinner(st *State) int {
	switch {
	case st.Players[0].Score > st.Players[1].Score:
		return 0
	case st.Players[1].Score > st.Players[0].Score:
		return 1
	}
	return Draw
}
