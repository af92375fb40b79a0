package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/cassino-games/cassino-services/internal/gamesvc/actionlog"
	"github.com/cassino-games/cassino-services/internal/gamesvc/deck"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
	"github.com/cassino-games/cassino-services/internal/gamesvc/session"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingHub struct {
	mu   sync.Mutex
	msgs map[string][]*comm.WSMessage
}

func newRecordingHub() *recordingHub {
	return &recordingHub{msgs: make(map[string][]*comm.WSMessage)}
}

func (h *recordingHub) Publish(roomId string, msg *comm.WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs[roomId] = append(h.msgs[roomId], msg)
}

func (h *recordingHub) room(roomId string) []*comm.WSMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*comm.WSMessage(nil), h.msgs[roomId]...)
}

type recordingPersister struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
}

func (p *recordingPersister) SaveRoom(roomId string, phase engine.Phase, version uint64, state []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, roomId)
}

func (p *recordingPersister) AppendAction(e *actionlog.Entry) {}

func (p *recordingPersister) DeleteRoom(roomId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, roomId)
}

func (p *recordingPersister) deletedRooms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

type fixture struct {
	reg    *Registry
	hub    *recordingHub
	clock  *fakeClock
	sm     *session.Manager
	roomId string
	tokenA string
	tokenB string
}

func setup(t *testing.T) *fixture {
	clock := newFakeClock()
	h := newRecordingHub()
	sm := session.NewManager(session.DefaultTTL, clock.Now)

	reg := NewRegistry(engine.DefaultRules(), h, nil, sm)
	reg.SetClock(clock.Now)
	reg.SetSeed(func() int64 { return 11 })

	roomId, sessA, err := reg.CreateRoom("alice", "Alice")
	require.NoError(t, err)
	sessB, err := reg.JoinRoom(roomId, "bob", "Bob")
	require.NoError(t, err)

	return &fixture{
		reg:    reg,
		hub:    h,
		clock:  clock,
		sm:     sm,
		roomId: roomId,
		tokenA: sessA.Token,
		tokenB: sessB.Token,
	}
}

func (f *fixture) ready(t *testing.T) {
	require.NoError(t, f.reg.SetReady(f.tokenA, true))
	require.NoError(t, f.reg.SetReady(f.tokenB, true))
}

// token returns the session token of the player whose turn it is.
func (f *fixture) token(st *engine.State) string {
	if st.Players[st.Turn].Id == "alice" {
		return f.tokenA
	}
	return f.tokenB
}

// trailCurrent plays the current player's first hand card as a trail.
func (f *fixture) trailCurrent(t *testing.T) *Accepted {
	st, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)

	raw := fmt.Sprintf(`{"type":"trail","card":"%s"}`, st.Players[st.Turn].Hand[0].Code())
	res, err := f.reg.SubmitMove(f.token(st), json.RawMessage(raw))
	require.NoError(t, err)
	return res
}

func TestJoinFullRoomRejected(t *testing.T) {
	f := setup(t)

	_, err := f.reg.JoinRoom(f.roomId, "carol", "Carol")
	require.ErrorIs(t, err, ErrRoomFull)

	_, err = f.reg.JoinRoom("no-such-room", "carol", "Carol")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestBothReadyTriggersDeal(t *testing.T) {
	f := setup(t)

	st, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)
	require.Equal(t, engine.PhaseWaiting, st.Phase)

	f.ready(t)

	st, err = f.reg.GetState(f.roomId)
	require.NoError(t, err)
	require.Equal(t, engine.PhaseRound1, st.Phase)
	require.Equal(t, uint64(1), st.Version)
	require.Equal(t, deck.DeckSize, st.CardCount())
	require.Len(t, st.Players[0].Hand, 4)
	require.Len(t, st.Players[1].Hand, 4)
	require.Len(t, st.Table, 4)

	// the deal is the log's first entry, before any move
	entries, snapshot, err := f.reg.Reconnect(f.tokenA, 0)
	require.NoError(t, err)
	require.Nil(t, snapshot)
	require.Len(t, entries, 1)
	require.Equal(t, "deal", entries[0].ActionType)
}

func TestAcceptedMovesIncrementVersionAndAlternateTurn(t *testing.T) {
	f := setup(t)
	f.ready(t)

	res := f.trailCurrent(t)
	require.Equal(t, uint64(2), res.Sequence, "first move follows the deal entry")
	require.Equal(t, uint64(2), res.Version)
	require.Equal(t, 1, res.State.Turn)

	res = f.trailCurrent(t)
	require.Equal(t, uint64(3), res.Sequence)
	require.Equal(t, 0, res.State.Turn)
}

func TestRejectedMoveChangesNothing(t *testing.T) {
	f := setup(t)
	f.ready(t)

	before, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)

	// the waiting player moves out of turn
	waiting := f.tokenB
	if before.Players[before.Turn].Id == "bob" {
		waiting = f.tokenA
	}
	idle := 1 - before.Turn
	raw := fmt.Sprintf(`{"type":"trail","card":"%s"}`, before.Players[idle].Hand[0].Code())
	_, err = f.reg.SubmitMove(waiting, json.RawMessage(raw))

	var rej *engine.RejectError
	require.ErrorAs(t, err, &rej)

	after, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)
	require.Equal(t, before, after, "a rejected move leaves state and version unchanged")
}

func TestReplayReproducesLiveState(t *testing.T) {
	f := setup(t)
	f.ready(t)

	for i := 0; i < 7; i++ {
		f.trailCurrent(t)
	}

	live, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)
	replayed, err := f.reg.Replay(f.roomId)
	require.NoError(t, err)
	require.Equal(t, live, replayed)
	require.Equal(t, live.Version, replayed.Version)
}

func TestReconnectReturnsExactTail(t *testing.T) {
	f := setup(t)
	f.ready(t)

	for i := 0; i < 4; i++ {
		f.trailCurrent(t)
	}

	// last seen the deal and the first two moves
	entries, snapshot, err := f.reg.Reconnect(f.tokenA, 3)
	require.NoError(t, err)
	require.Nil(t, snapshot)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(4), entries[0].Sequence)
	require.Equal(t, uint64(5), entries[1].Sequence)

	// fully caught up
	entries, snapshot, err = f.reg.Reconnect(f.tokenA, 5)
	require.NoError(t, err)
	require.Nil(t, snapshot)
	require.Empty(t, entries)
}

func TestExpiredSessionRejectedButRoomSurvives(t *testing.T) {
	f := setup(t)
	f.ready(t)

	// alice leads and moves once, then goes idle; bob keeps heartbeating
	st, _ := f.reg.GetState(f.roomId)
	require.Equal(t, "alice", st.Players[st.Turn].Id)
	f.trailCurrent(t)

	f.clock.Advance(23 * time.Hour)
	require.NoError(t, f.sm.Heartbeat(f.tokenB))
	f.clock.Advance(2 * time.Hour)

	st, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)
	raw := fmt.Sprintf(`{"type":"trail","card":"%s"}`, st.Players[0].Hand[0].Code())
	_, err = f.reg.SubmitMove(f.tokenA, json.RawMessage(raw))
	require.ErrorIs(t, err, session.ErrSessionExpired)

	// bob plays on in the same room
	res := f.trailCurrent(t)
	require.Equal(t, f.roomId, res.RoomId)
}

func TestBothSessionsExpiredAbandonsRoom(t *testing.T) {
	f := setup(t)
	f.ready(t)

	f.clock.Advance(session.DefaultTTL + time.Minute)
	f.sm.Reap()

	st, err := f.reg.GetState(f.roomId)
	require.NoError(t, err)
	require.Equal(t, engine.PhaseAbandoned, st.Phase)

	// the sweeper drops the abandoned room after the grace period
	f.clock.Advance(time.Hour)
	swept := f.reg.SweepFinished(context.Background(), nil, 30*time.Minute)
	require.Equal(t, 1, swept)
	_, err = f.reg.GetState(f.roomId)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSweepClearsDurableRows(t *testing.T) {
	clock := newFakeClock()
	sm := session.NewManager(session.DefaultTTL, clock.Now)
	persist := &recordingPersister{}

	reg := NewRegistry(engine.DefaultRules(), newRecordingHub(), persist, sm)
	reg.SetClock(clock.Now)
	reg.SetSeed(func() int64 { return 11 })

	roomId, _, err := reg.CreateRoom("alice", "Alice")
	require.NoError(t, err)
	_, err = reg.JoinRoom(roomId, "bob", "Bob")
	require.NoError(t, err)

	clock.Advance(session.DefaultTTL + time.Minute)
	sm.Reap()
	clock.Advance(time.Hour)

	require.Equal(t, 1, reg.SweepFinished(context.Background(), nil, 30*time.Minute))
	require.Equal(t, []string{roomId}, persist.deletedRooms(), "sweeping a room clears its durable rows")
}

func TestRejoinSupersedesOldSession(t *testing.T) {
	f := setup(t)

	sess, err := f.reg.JoinRoom(f.roomId, "alice", "Alice")
	require.NoError(t, err)
	require.NotEqual(t, f.tokenA, sess.Token)

	_, err = f.reg.GetStateByToken(f.tokenA)
	require.ErrorIs(t, err, session.ErrSessionExpired)
	_, err = f.reg.GetStateByToken(sess.Token)
	require.NoError(t, err)
}

func TestBroadcastOrderMatchesLogOrder(t *testing.T) {
	f := setup(t)
	f.ready(t)

	for i := 0; i < 5; i++ {
		f.trailCurrent(t)
	}

	var sequences []uint64
	for _, msg := range f.hub.room(f.roomId) {
		if msg.Type == comm.EventActionAccepted || msg.Type == comm.EventStateSnapshot {
			if msg.Sequence > 0 {
				sequences = append(sequences, msg.Sequence)
			}
		}
	}

	entries, _, err := f.reg.Reconnect(f.tokenA, 0)
	require.NoError(t, err)
	require.Len(t, sequences, len(entries))
	for i, e := range entries {
		require.Equal(t, e.Sequence, sequences[i], "delivery order equals log order")
	}
}
