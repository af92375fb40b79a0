package engine

import (
	"math/rand"
	"strconv"

	"github.com/cassino-games/cassino-services/internal/gamesvc/deck"
)

// Outcome describes an accepted move for logging and broadcast.
type Outcome struct {
	Summary    string `json:"summary"`
	TurnEnded  bool   `json:"turn_ended"`
	RoundEnded bool   `json:"round_ended"`
	GameEnded  bool   `json:"game_ended"`
}

// DealInitial shuffles a fresh deck and deals the opening hands and table.
// The room calls it once both players are ready, with the room's seeded rng
// so that replays shuffle identically.
func DealInitial(st *State, rules Rules, rng *rand.Rand) {
	st.Phase = PhaseDealing
	st.Round = 1
	startRound(st, rules, rng)
}

func startRound(st *State, rules Rules, rng *rand.Rand) {
	cards := deck.New()
	deck.Shuffle(cards, rng)

	for i := range st.Players {
		st.Players[i].Hand, cards = deck.Deal(cards, rules.HandSize)
		st.Players[i].Captured = nil
	}
	st.Table, cards = deck.Deal(cards, rules.TableSize)
	st.Deck = cards
	st.Builds = nil
	st.LastCapturer = NoPlayer
	st.Turn = (st.Round - 1) % 2 // the non-dealing player leads each round
	st.Phase = roundPhase(st.Round)
}

// Apply validates mv for player against st and, only if every check passes,
// mutates st accordingly. A *RejectError leaves st completely untouched.
func Apply(st *State, player int, mv Move, rules Rules, rng *rand.Rand) (*Outcome, error) {
	if !st.InRound() {
		return nil, reject("no active round in phase %q", st.Phase)
	}
	if st.Turn != player {
		return nil, reject("not your turn")
	}

	switch mv.Type {
	case MoveCapture:
		return applyCapture(st, player, mv, rules, rng)
	case MoveBuild:
		return applyBuild(st, player, mv, rules, rng)
	case MoveTrail:
		return applyTrail(st, player, mv, rules, rng)
	}
	return nil, reject("unknown move type %q", mv.Type)
}

func applyCapture(st *State, player int, mv Move, rules Rules, rng *rand.Rand) (*Outcome, error) {
	hand := st.Players[player].Hand
	hi := deck.Find(hand, mv.Card)
	if hi < 0 {
		return nil, reject("card %s is not in your hand", mv.Card)
	}
	played := hand[hi]

	loose, err := selectLoose(st, mv.Targets)
	if err != nil {
		return nil, err
	}

	var builds []*Build
	seenBuilds := make(map[string]bool, len(mv.TargetBuilds))
	for _, id := range mv.TargetBuilds {
		if seenBuilds[id] {
			return nil, reject("build %s selected twice", id)
		}
		seenBuilds[id] = true
		b, _ := st.findBuild(id)
		if b == nil {
			return nil, reject("build %s is not on the table", id)
		}
		if b.Owner != player && !rules.OpponentBuildCapture {
			return nil, reject("build %s belongs to your opponent", id)
		}
		builds = append(builds, b)
	}

	// The played card must stand for one value that satisfies every
	// component: each targeted build declared at that value and the loose
	// selection partitionable into groups combining to it.
	matched := false
	for _, v := range played.Values(rules.AceHigh) {
		ok := true
		for _, b := range builds {
			if b.Value != v {
				ok = false
				break
			}
		}
		if ok && canPartition(loose, v, rules.AceHigh) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, reject("selection does not match the value of %s", mv.Card)
	}

	// Checks passed, mutate.
	st.Players[player].Hand = deck.Remove(hand, hi)
	pile := append(st.Players[player].Captured, played)
	pile = append(pile, loose...)
	st.Table = removeLoose(st.Table, mv.Targets)
	for _, b := range builds {
		pile = append(pile, b.Cards...)
		_, bi := st.findBuild(b.Id)
		st.Builds = append(st.Builds[:bi], st.Builds[bi+1:]...)
	}
	st.Players[player].Captured = pile
	st.LastCapturer = player
	st.LastAction = st.Players[player].Name + " captured " +
		strconv.Itoa(1+len(loose)+buildCardCount(builds)) + " cards with " + played.Code()
	st.Turn = 1 - player

	out := &Outcome{Summary: st.LastAction, TurnEnded: true}
	finishHand(st, rules, rng, out)
	return out, nil
}

func applyBuild(st *State, player int, mv Move, rules Rules, rng *rand.Rand) (*Outcome, error) {
	hand := st.Players[player].Hand

	var played *deck.Card
	hi := -1
	if mv.Card != "" {
		hi = deck.Find(hand, mv.Card)
		if hi < 0 {
			return nil, reject("card %s is not in your hand", mv.Card)
		}
		played = &hand[hi]
	}

	loose, err := selectLoose(st, mv.TableCards)
	if err != nil {
		return nil, err
	}

	added := append([]deck.Card(nil), loose...)
	if played != nil {
		added = append(added, *played)
	}
	if len(added) == 0 {
		return nil, reject("build adds no cards")
	}

	var target *Build
	if mv.BuildId != "" {
		target, _ = st.findBuild(mv.BuildId)
		if target == nil {
			return nil, reject("build %s is not on the table", mv.BuildId)
		}
		if target.Owner != player {
			return nil, reject("only the owner may extend a build")
		}
		if mv.Value < target.Value {
			return nil, reject("a build's declared value may not decrease")
		}
		// Either duplicate the declared value or raise it by exactly what
		// the added cards combine to.
		if mv.Value == target.Value {
			if !canCombine(added, target.Value, rules.AceHigh) {
				return nil, reject("added cards do not combine to %d", target.Value)
			}
		} else if !canCombine(added, mv.Value-target.Value, rules.AceHigh) {
			return nil, reject("added cards do not raise the build to %d", mv.Value)
		}
	} else {
		if !canCombine(added, mv.Value, rules.AceHigh) {
			return nil, reject("cards do not combine to %d", mv.Value)
		}
	}

	// The builder must keep a card able to take the build, otherwise the
	// build could never be captured by its creator.
	if !holdsCapturingCard(hand, hi, mv.Value, rules.AceHigh) {
		return nil, reject("no capturing card in hand")
	}

	// Checks passed, mutate.
	if played != nil {
		st.Players[player].Hand = deck.Remove(hand, hi)
	}
	st.Table = removeLoose(st.Table, mv.TableCards)

	if target != nil {
		target.Cards = append(target.Cards, added...)
		target.Value = mv.Value
		st.LastAction = st.Players[player].Name + " raised a build to " + strconv.Itoa(mv.Value)
	} else {
		st.Builds = append(st.Builds, &Build{
			Id:    st.newBuildId(),
			Owner: player,
			Value: mv.Value,
			Cards: added,
		})
		st.LastAction = st.Players[player].Name + " built " + strconv.Itoa(mv.Value)
	}

	// A build assembled purely from loose table cards keeps the turn; the
	// hand card it reserves is played later. Playing a hand card into the
	// build ends the turn like any other move.
	out := &Outcome{Summary: st.LastAction, TurnEnded: played != nil}
	if played != nil {
		st.Turn = 1 - player
		finishHand(st, rules, rng, out)
	}
	return out, nil
}

func applyTrail(st *State, player int, mv Move, rules Rules, rng *rand.Rand) (*Outcome, error) {
	hand := st.Players[player].Hand
	hi := deck.Find(hand, mv.Card)
	if hi < 0 {
		return nil, reject("card %s is not in your hand", mv.Card)
	}
	if !rules.TrailWithOwnBuild {
		for _, b := range st.Builds {
			if b.Owner == player {
				return nil, reject("cannot trail while owning a build")
			}
		}
	}

	played := hand[hi]
	st.Players[player].Hand = deck.Remove(hand, hi)
	st.Table = append(st.Table, played)
	st.LastAction = st.Players[player].Name + " trailed " + played.Code()
	st.Turn = 1 - player

	out := &Outcome{Summary: st.LastAction, TurnEnded: true}
	finishHand(st, rules, rng, out)
	return out, nil
}

// finishHand redeals or closes the round once both hands are empty.
func finishHand(st *State, rules Rules, rng *rand.Rand, out *Outcome) {
	if len(st.Players[0].Hand) > 0 || len(st.Players[1].Hand) > 0 {
		return
	}

	if len(st.Deck) > 0 {
		for i := range st.Players {
			st.Players[i].Hand, st.Deck = deck.Deal(st.Deck, rules.HandSize)
		}
		return
	}

	// Round over: leftover table cards go to whoever captured last.
	if st.LastCapturer != NoPlayer {
		pile := st.Players[st.LastCapturer].Captured
		pile = append(pile, st.Table...)
		for _, b := range st.Builds {
			pile = append(pile, b.Cards...)
		}
		st.Players[st.LastCapturer].Captured = pile
		st.Table = nil
		st.Builds = nil
	}

	round := ComputeScore(st, rules.Scoring)
	for i := range st.Players {
		st.Players[i].Score += round[i]
	}
	out.RoundEnded = true

	if st.Round >= rules.Rounds {
		st.Phase = PhaseFinished
		st.Winner = DetermineWinner(st)
		out.GameEnded = true
		return
	}

	st.Round++
	startRound(st, rules, rng)
}

func selectLoose(st *State, codes []string) ([]deck.Card, error) {
	seen := make(map[string]bool, len(codes))
	out := make([]deck.Card, 0, len(codes))
	for _, code := range codes {
		if seen[code] {
			return nil, reject("card %s selected twice", code)
		}
		seen[code] = true
		i := deck.Find(st.Table, code)
		if i < 0 {
			return nil, reject("card %s is not on the table", code)
		}
		out = append(out, st.Table[i])
	}
	return out, nil
}

func removeLoose(table []deck.Card, codes []string) []deck.Card {
	for _, code := range codes {
		if i := deck.Find(table, code); i >= 0 {
			table = deck.Remove(table, i)
		}
	}
	return table
}

func holdsCapturingCard(hand []deck.Card, playedIdx int, value int, aceHigh bool) bool {
	for i, c := range hand {
		if i == playedIdx {
			continue
		}
		if c.MatchesValue(value, aceHigh) {
			return true
		}
	}
	return false
}

func buildCardCount(builds []*Build) int {
	n := 0
	for _, b := range builds {
		n += len(b.Cards)
	}
	return n
}

// canCombine reports whether some choice of card values sums exactly to v.
func canCombine(cards []deck.Card, v int, aceHigh bool) bool {
	if len(cards) == 0 {
		return v == 0
	}
	for _, val := range cards[0].Values(aceHigh) {
		if val <= v && canCombine(cards[1:], v-val, aceHigh) {
			return true
		}
	}
	return false
}

// canPartition reports whether cards split into disjoint groups that each
// combine to exactly v, covering a multi-part capture like 3+4 and 7
// against a played 7.
func canPartition(cards []deck.Card, v int, aceHigh bool) bool {
	if len(cards) == 0 {
		return true
	}
	used := make([]bool, len(cards))

	var newGroup func(unused int) bool
	var extend func(target, from, unused int) bool

	// Each group is anchored at the lowest-index unused card, so groups are
	// tried in one canonical order.
	newGroup = func(unused int) bool {
		if unused == 0 {
			return true
		}
		i := 0
		for used[i] {
			i++
		}
		used[i] = true
		for _, fv := range cards[i].Values(aceHigh) {
			if fv <= v && extend(v-fv, i+1, unused-1) {
				used[i] = false
				return true
			}
		}
		used[i] = false
		return false
	}

	extend = func(target, from, unused int) bool {
		if target == 0 {
			return newGroup(unused)
		}
		for j := from; j < len(cards); j++ {
			if used[j] {
				continue
			}
			used[j] = true
			for _, jv := range cards[j].Values(aceHigh) {
				if jv <= target && extend(target-jv, j+1, unused-1) {
					used[j] = false
					return true
				}
			}
			used[j] = false
		}
		return false
	}

	return newGroup(len(cards))
}
