package room

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/cassino-games/cassino-services/internal/gamesvc/actionlog"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
	"github.com/cassino-games/cassino-services/internal/gamesvc/session"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Registry maps room ids to their serialized room instances and exposes
// the operations the routing layer calls. Contention is bounded to a
// single room; the registry lock only guards the map itself.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	rules    engine.Rules
	hub      Publisher
	persist  Persister
	sessions *session.Manager
	clock    func() time.Time
	seedFn   func() int64
}

func NewRegistry(rules engine.Rules, hub Publisher, persist Persister, sessions *session.Manager) *Registry {
	reg := &Registry{
		rooms:    make(map[string]*Room),
		rules:    rules,
		hub:      hub,
		persist:  persist,
		sessions: sessions,
		clock:    time.Now,
		seedFn:   func() int64 { return rand.Int63() },
	}
	sessions.OnAbandon(reg.Abandon)
	return reg
}

// SetClock and SetSeed inject deterministic time and shuffle seeds in tests.
func (reg *Registry) SetClock(clock func() time.Time) { reg.clock = clock }
func (reg *Registry) SetSeed(seedFn func() int64)     { reg.seedFn = seedFn }

func (reg *Registry) get(roomId string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[roomId]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// CreateRoom opens a new room with the caller as its first player and
// issues a session for it.
func (reg *Registry) CreateRoom(playerId, name string) (string, *session.Session, error) {
	r := newRoom(uuid.New().String(), reg.rules, reg.seedFn(), reg.hub, reg.persist, reg.clock)
	if err := r.addPlayer(playerId, name); err != nil {
		return "", nil, err
	}

	reg.mu.Lock()
	reg.rooms[r.Id] = r
	reg.mu.Unlock()

	sess := reg.sessions.Create(playerId, r.Id)
	log.Infof("room %s created by player %s", r.Id, playerId)
	reg.publishJoined(r, playerId, name)
	return r.Id, sess, nil
}

// JoinRoom adds a second player. Fails with ErrRoomFull when both slots
// are taken by other players; a returning player gets a fresh session.
func (reg *Registry) JoinRoom(roomId, playerId, name string) (*session.Session, error) {
	r, err := reg.get(roomId)
	if err != nil {
		return nil, err
	}
	if err := r.addPlayer(playerId, name); err != nil {
		return nil, err
	}

	sess := reg.sessions.Create(playerId, roomId)
	log.Infof("player %s joined room %s", playerId, roomId)
	reg.publishJoined(r, playerId, name)
	return sess, nil
}

func (reg *Registry) publishJoined(r *Room, playerId, name string) {
	if reg.hub == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"player_id": playerId, "name": name})
	reg.hub.Publish(r.Id, &comm.WSMessage{
		Type:   comm.EventPlayerJoined,
		RoomId: r.Id,
		Data:   data,
	})
}

// SetReady resolves the token and flips readiness; the room deals itself
// once both players are ready.
func (reg *Registry) SetReady(token string, ready bool) error {
	playerId, roomId, err := reg.sessions.Resolve(token)
	if err != nil {
		return err
	}
	r, err := reg.get(roomId)
	if err != nil {
		return err
	}
	return r.setReady(playerId, ready)
}

// SubmitMove resolves the token and pushes the move through the room's
// serialized path. Rule rejections come back as *engine.RejectError.
func (reg *Registry) SubmitMove(token string, raw json.RawMessage) (*Accepted, error) {
	playerId, roomId, err := reg.sessions.Resolve(token)
	if err != nil {
		return nil, err
	}
	r, err := reg.get(roomId)
	if err != nil {
		return nil, err
	}

	mv, err := engine.ParseMove(raw)
	if err != nil {
		return nil, err
	}
	return r.SubmitAction(playerId, mv)
}

// GetState returns a consistent snapshot of the room.
func (reg *Registry) GetState(roomId string) (*engine.State, error) {
	r, err := reg.get(roomId)
	if err != nil {
		return nil, err
	}
	return r.Snapshot(), nil
}

// GetStateByToken is GetState keyed by session token.
func (reg *Registry) GetStateByToken(token string) (*engine.State, error) {
	_, roomId, err := reg.sessions.Resolve(token)
	if err != nil {
		return nil, err
	}
	return reg.GetState(roomId)
}

// Reconnect returns the log entries after lastSeen, or a full snapshot
// when that range has been truncated.
func (reg *Registry) Reconnect(token string, lastSeen uint64) ([]*actionlog.Entry, *engine.State, error) {
	_, roomId, err := reg.sessions.Resolve(token)
	if err != nil {
		return nil, nil, err
	}
	r, err := reg.get(roomId)
	if err != nil {
		return nil, nil, err
	}

	entries, err := r.Since(lastSeen)
	if err == actionlog.ErrSnapshotRequired {
		return nil, r.Snapshot(), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return entries, nil, nil
}

// Abandon transitions a room to its abandoned terminal phase. Wired as the
// session reaper's callback for rooms whose last session expired.
func (reg *Registry) Abandon(roomId string) {
	r, err := reg.get(roomId)
	if err != nil {
		return
	}
	log.Infof("room %s abandoned, all sessions expired", roomId)
	r.abandon()
}

// Archiver receives terminal rooms before they are dropped from memory.
type Archiver interface {
	ArchiveRoom(ctx context.Context, roomId string, state []byte, entries []*actionlog.Entry) error
}

// SweepFinished archives and removes rooms that have been in a terminal
// phase for longer than olderThan. With a nil archiver they are just
// dropped. Returns how many rooms went.
func (reg *Registry) SweepFinished(ctx context.Context, arch Archiver, olderThan time.Duration) int {
	reg.mu.RLock()
	candidates := make([]*Room, 0)
	for _, r := range reg.rooms {
		candidates = append(candidates, r)
	}
	reg.mu.RUnlock()

	swept := 0
	now := reg.clock()
	for _, r := range candidates {
		doneAt := r.finishedSince()
		if doneAt.IsZero() || now.Sub(doneAt) < olderThan {
			continue
		}

		if arch != nil {
			entries, err := r.Since(0)
			if err != nil {
				entries = nil
			}
			state, _ := json.Marshal(r.Snapshot())
			if err := arch.ArchiveRoom(ctx, r.Id, state, entries); err != nil {
				log.Warnf("unable to archive room %s, keeping it in memory: %v", r.Id, err)
				continue
			}
		}

		reg.mu.Lock()
		delete(reg.rooms, r.Id)
		reg.mu.Unlock()
		if reg.persist != nil {
			reg.persist.DeleteRoom(r.Id)
		}
		swept++
		log.Infof("room %s archived and removed", r.Id)
	}
	return swept
}

// RunSweeper drives SweepFinished until ctx is done.
func (reg *Registry) RunSweeper(ctx context.Context, arch Archiver, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.SweepFinished(ctx, arch, olderThan)
		}
	}
}

// Replay rebuilds a room's state from its action log, used to verify
// log integrity and by recovery.
func (reg *Registry) Replay(roomId string) (*engine.State, error) {
	r, err := reg.get(roomId)
	if err != nil {
		return nil, err
	}
	return r.Replay()
}
