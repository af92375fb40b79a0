package engine

import (
	"fmt"

	"github.com/cassino-games/cassino-services/internal/gamesvc/deck"
)

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseDealing   Phase = "dealing"
	PhaseRound1    Phase = "round1"
	PhaseRound2    Phase = "round2"
	PhaseFinished  Phase = "finished"
	PhaseAbandoned Phase = "abandoned"
)

const (
	NoPlayer = -1
	Draw     = -1
)

// Build is a stack of table cards combined under a declared capture value,
// owned by the player who created it.
type Build struct {
	Id    string      `json:"id"`
	Owner int         `json:"owner"` // player index
	Value int         `json:"value"`
	Cards []deck.Card `json:"cards"`
}

type PlayerState struct {
	Id       string      `json:"id"`
	Name     string      `json:"name"`
	Ready    bool        `json:"ready"`
	Hand     []deck.Card `json:"hand"`
	Captured []deck.Card `json:"captured"`
	Score    int         `json:"score"` // accumulated across rounds
}

// State is the authoritative game state of one room. It is mutated only
// through the room's serialized submit path.
type State struct {
	Players [2]PlayerState `json:"players"`
	Deck    []deck.Card    `json:"deck"`
	Table   []deck.Card    `json:"table"` // loose cards
	Builds  []*Build       `json:"builds"`
	Turn    int            `json:"turn"`
	Round   int            `json:"round"`
	Phase   Phase          `json:"phase"`

	// LastCapturer takes the leftover table cards when a round runs out.
	LastCapturer int    `json:"last_capturer"`
	LastAction   string `json:"last_action"`
	Winner       int    `json:"winner"` // player index, or Draw on a tie
	Version      uint64 `json:"version"`

	nextBuildId int
}

func NewState() *State {
	return &State{
		Turn:         0,
		Round:        0,
		Phase:        PhaseWaiting,
		LastCapturer: NoPlayer,
		Winner:       NoPlayer,
	}
}

// Clone returns a deep copy, used for consistent snapshots outside the
// serialized mutation path.
func (st *State) Clone() *State {
	cp := *st
	cp.Deck = append([]deck.Card(nil), st.Deck...)
	cp.Table = append([]deck.Card(nil), st.Table...)
	cp.Builds = nil
	for _, b := range st.Builds {
		nb := *b
		nb.Cards = append([]deck.Card(nil), b.Cards...)
		cp.Builds = append(cp.Builds, &nb)
	}
	for i := range st.Players {
		cp.Players[i].Hand = append([]deck.Card(nil), st.Players[i].Hand...)
		cp.Players[i].Captured = append([]deck.Card(nil), st.Players[i].Captured...)
	}
	return &cp
}

// CardCount sums every card collection in the state. It must equal 52 for
// any reachable state once play has started.
func (st *State) CardCount() int {
	n := len(st.Deck) + len(st.Table)
	for _, b := range st.Builds {
		n += len(b.Cards)
	}
	for i := range st.Players {
		n += len(st.Players[i].Hand) + len(st.Players[i].Captured)
	}
	return n
}

func (st *State) InRound() bool {
	return st.Phase == PhaseRound1 || st.Phase == PhaseRound2
}

func (st *State) findBuild(id string) (*Build, int) {
	for i, b := range st.Builds {
		if b.Id == id {
			return b, i
		}
	}
	return nil, -1
}

func (st *State) newBuildId() string {
	st.nextBuildId++
	return fmt.Sprintf("b%d", st.nextBuildId)
}

func roundPhase(round int) Phase {
	if round <= 1 {
		return PhaseRound1
	}
	return PhaseRound2
}
