package room

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/cassino-games/cassino-services/internal/gamesvc/actionlog"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
)

var (
	ErrRoomFull     = errors.New("room already has two players")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("player is not in this room")
)

// Publisher is the broadcast hub seen from the room's side.
type Publisher interface {
	Publish(roomId string, msg *comm.WSMessage)
}

// Persister receives durable writes after the in-memory commit. It must
// never block or fail the move; implementations queue and retry.
// DeleteRoom clears the room's durable rows once it has been archived or
// dropped from memory.
type Persister interface {
	SaveRoom(roomId string, phase engine.Phase, version uint64, state []byte)
	AppendAction(entry *actionlog.Entry)
	DeleteRoom(roomId string)
}

// Accepted is the result handed back for a committed action.
type Accepted struct {
	RoomId   string          `json:"room_id"`
	Sequence uint64          `json:"sequence"`
	Version  uint64          `json:"version"`
	Outcome  *engine.Outcome `json:"outcome"`
	State    *engine.State   `json:"state"`
}

// dealRecord is the payload of the log's first entry. The shuffle seed is
// recorded so replaying the log reproduces every deal of the game.
type dealRecord struct {
	Seed int64 `json:"seed"`
}

type moveRecord struct {
	Player  int         `json:"player"`
	Move    engine.Move `json:"move"`
	Summary string      `json:"summary"`
}

// Room owns one authoritative game state. Every mutation goes through mu,
// so at most one action is being evaluated per room at any instant.
type Room struct {
	Id        string
	CreatedAt time.Time

	mu    sync.Mutex
	st    *engine.State
	rules engine.Rules
	log   *actionlog.Log
	seed  int64
	rng   *rand.Rand

	hub     Publisher
	persist Persister
	clock   func() time.Time
	doneAt  time.Time
}

func newRoom(id string, rules engine.Rules, seed int64, hub Publisher, persist Persister, clock func() time.Time) *Room {
	return &Room{
		Id:        id,
		CreatedAt: clock(),
		st:        engine.NewState(),
		rules:     rules,
		log:       actionlog.New(id),
		seed:      seed,
		rng:       rand.New(rand.NewSource(seed)),
		hub:       hub,
		persist:   persist,
		clock:     clock,
	}
}

// Snapshot returns a consistent deep copy of the current state.
func (r *Room) Snapshot() *engine.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.Clone()
}

// Since exposes the action log for reconnection replay.
func (r *Room) Since(lastSeen uint64) ([]*actionlog.Entry, error) {
	return r.log.Since(lastSeen)
}

func (r *Room) playerIndex(playerId string) int {
	for i := range r.st.Players {
		if r.st.Players[i].Id == playerId {
			return i
		}
	}
	return engine.NoPlayer
}

// addPlayer fills the first free slot. Rejoining players keep their slot.
func (r *Room) addPlayer(playerId, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := r.playerIndex(playerId); idx != engine.NoPlayer {
		r.st.Players[idx].Name = name
		return nil
	}
	for i := range r.st.Players {
		if r.st.Players[i].Id == "" {
			r.st.Players[i].Id = playerId
			r.st.Players[i].Name = name
			return nil
		}
	}
	return ErrRoomFull
}

// setReady flips the readiness flag and deals once both players are ready.
func (r *Room) setReady(playerId string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.playerIndex(playerId)
	if idx == engine.NoPlayer {
		return ErrNotInRoom
	}
	r.st.Players[idx].Ready = ready

	r.publishLocked(&comm.WSMessage{
		Type:   comm.EventPlayerReady,
		RoomId: r.Id,
		Data:   mustMarshal(map[string]interface{}{"player_id": playerId, "ready": ready}),
	})

	if r.st.Phase == engine.PhaseWaiting && r.bothReadyLocked() {
		r.dealLocked()
	}
	return nil
}

func (r *Room) bothReadyLocked() bool {
	for i := range r.st.Players {
		if r.st.Players[i].Id == "" || !r.st.Players[i].Ready {
			return false
		}
	}
	return true
}

// dealLocked runs the initial deal, logs it as the first entry, and
// broadcasts the opening snapshot.
func (r *Room) dealLocked() {
	engine.DealInitial(r.st, r.rules, r.rng)
	r.st.Version++

	seq := r.log.Append("deal", mustMarshal(dealRecord{Seed: r.seed}), r.st.Version, r.clock())
	snapshot := r.st.Clone()

	r.persistLocked(seq, "deal", mustMarshal(dealRecord{Seed: r.seed}), snapshot)
	r.publishLocked(&comm.WSMessage{
		Type:     comm.EventStateSnapshot,
		RoomId:   r.Id,
		Sequence: seq,
		Data:     mustMarshal(snapshot),
	})
}

// SubmitAction validates and applies one move for playerId. On acceptance
// the version increments exactly once and exactly one log entry is
// appended before the broadcast goes out; on rejection nothing changes.
func (r *Room) SubmitAction(playerId string, mv engine.Move) (*Accepted, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.playerIndex(playerId)
	if idx == engine.NoPlayer {
		return nil, ErrNotInRoom
	}

	outcome, err := engine.Apply(r.st, idx, mv, r.rules, r.rng)
	if err != nil {
		return nil, err
	}

	r.st.Version++
	payload := mustMarshal(moveRecord{Player: idx, Move: mv, Summary: outcome.Summary})
	seq := r.log.Append("move", payload, r.st.Version, r.clock())
	snapshot := r.st.Clone()

	res := &Accepted{
		RoomId:   r.Id,
		Sequence: seq,
		Version:  r.st.Version,
		Outcome:  outcome,
		State:    snapshot,
	}
	if outcome.GameEnded {
		r.doneAt = r.clock()
	}

	r.persistLocked(seq, "move", payload, snapshot)
	r.publishLocked(&comm.WSMessage{
		Type:     comm.EventActionAccepted,
		RoomId:   r.Id,
		Sequence: seq,
		Data:     mustMarshal(res),
	})
	return res, nil
}

// abandon moves the room to its terminal abandoned phase. Legal from any
// phase except finished.
func (r *Room) abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st.Phase == engine.PhaseFinished || r.st.Phase == engine.PhaseAbandoned {
		return
	}
	r.st.Phase = engine.PhaseAbandoned
	r.st.Version++
	r.doneAt = r.clock()

	snapshot := r.st.Clone()
	r.persistLocked(0, "", nil, snapshot)
	r.publishLocked(&comm.WSMessage{
		Type:   comm.EventStateSnapshot,
		RoomId: r.Id,
		Data:   mustMarshal(snapshot),
	})
}

// persistLocked hands the durable write to the collaborator after the
// in-memory commit. Losing the very last action across a crash is the
// documented bounded-loss window.
func (r *Room) persistLocked(seq uint64, actionType string, payload json.RawMessage, snapshot *engine.State) {
	if r.persist == nil {
		return
	}
	r.persist.SaveRoom(r.Id, snapshot.Phase, snapshot.Version, mustMarshal(snapshot))
	if actionType != "" {
		r.persist.AppendAction(&actionlog.Entry{
			RoomId:     r.Id,
			Sequence:   seq,
			ActionType: actionType,
			Payload:    payload,
			Version:    snapshot.Version,
			Timestamp:  r.clock(),
		})
	}
}

func (r *Room) publishLocked(msg *comm.WSMessage) {
	if r.hub != nil {
		r.hub.Publish(r.Id, msg)
	}
}

// finishedSince reports when the room reached a terminal phase, zero while
// it is still live.
func (r *Room) finishedSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneAt
}

// Replay rebuilds the state by reapplying the full action log from the
// recorded deal. The result matches the live state entry by entry.
func (r *Room) Replay() (*engine.State, error) {
	entries, err := r.log.Since(0)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	players := [2]struct{ id, name string }{}
	for i := range r.st.Players {
		players[i].id = r.st.Players[i].Id
		players[i].name = r.st.Players[i].Name
	}
	rules := r.rules
	r.mu.Unlock()

	st := engine.NewState()
	for i := range st.Players {
		st.Players[i].Id = players[i].id
		st.Players[i].Name = players[i].name
		st.Players[i].Ready = true
	}

	var rng *rand.Rand
	for _, e := range entries {
		switch e.ActionType {
		case "deal":
			var rec dealRecord
			if err := json.Unmarshal(e.Payload, &rec); err != nil {
				return nil, err
			}
			rng = rand.New(rand.NewSource(rec.Seed))
			engine.DealInitial(st, rules, rng)
		case "move":
			var rec moveRecord
			if err := json.Unmarshal(e.Payload, &rec); err != nil {
				return nil, err
			}
			if _, err := engine.Apply(st, rec.Player, rec.Move, rules, rng); err != nil {
				return nil, err
			}
		}
		st.Version = e.Version
	}
	return st, nil
}

func mustMarshal(v interface{}) json.RawMessage {
	bytes, err := json.Marshal(v)
	if err != nil {
		// all marshaled types are plain structs; this cannot fail at runtime
		panic(err)
	}
	return bytes
}
