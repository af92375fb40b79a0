package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL is how long a session survives without a heartbeat.
const DefaultTTL = 24 * time.Hour

var (
	ErrSessionExpired      = errors.New("session expired")
	ErrDuplicateConnection = errors.New("superseded by a newer connection")
)

// Clock is injectable so expiry is testable without wall-clock waits.
type Clock func() time.Time

// Session binds an opaque token to one (player, room) pair.
type Session struct {
	Token         string    `json:"token"`
	PlayerId      string    `json:"player_id"`
	RoomId        string    `json:"room_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

type slotKey struct {
	playerId string
	roomId   string
}

// Manager owns every session record. A token is only ever refreshed or
// invalidated here; no other component touches session state.
type Manager struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	byToken map[string]*Session
	bySlot  map[slotKey]string

	// onSupersede is told about tokens invalidated by a duplicate
	// connection so the stale connection can be closed immediately.
	onSupersede func(oldToken string)

	// onAbandon fires when the last live session of a room expires.
	onAbandon func(roomId string)
}

func NewManager(ttl time.Duration, clock Clock) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		ttl:     ttl,
		clock:   clock,
		byToken: make(map[string]*Session),
		bySlot:  make(map[slotKey]string),
	}
}

func (m *Manager) OnSupersede(fn func(oldToken string)) {
	m.onSupersede = fn
}

func (m *Manager) OnAbandon(fn func(roomId string)) {
	m.onAbandon = fn
}

// Create issues a fresh token for (playerId, roomId). Any prior token for
// the same pair is invalidated and reported as a duplicate connection;
// reconnection supersedes, never duplicates.
func (m *Manager) Create(playerId, roomId string) *Session {
	m.mu.Lock()

	key := slotKey{playerId: playerId, roomId: roomId}
	var superseded string
	if old, ok := m.bySlot[key]; ok {
		delete(m.byToken, old)
		superseded = old
	}

	now := m.clock()
	s := &Session{
		Token:         uuid.New().String(),
		PlayerId:      playerId,
		RoomId:        roomId,
		CreatedAt:     now,
		LastHeartbeat: now,
	}
	m.byToken[s.Token] = s
	m.bySlot[key] = s.Token
	m.mu.Unlock()

	if superseded != "" {
		log.Infof("session for player %s in room %s superseded by a new connection", playerId, roomId)
		if m.onSupersede != nil {
			m.onSupersede(superseded)
		}
	}
	return s
}

// Heartbeat refreshes the session's expiry clock.
func (m *Manager) Heartbeat(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.liveLocked(token)
	if err != nil {
		return err
	}
	s.LastHeartbeat = m.clock()
	return nil
}

// Resolve maps a token to its (player, room) pair.
func (m *Manager) Resolve(token string) (playerId, roomId string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.liveLocked(token)
	if err != nil {
		return "", "", err
	}
	return s.PlayerId, s.RoomId, nil
}

// liveLocked returns the session if it is still inside its TTL; an expired
// record is dropped on sight.
func (m *Manager) liveLocked(token string) (*Session, error) {
	s, ok := m.byToken[token]
	if !ok {
		return nil, ErrSessionExpired
	}
	if m.clock().Sub(s.LastHeartbeat) > m.ttl {
		m.dropLocked(s)
		return nil, ErrSessionExpired
	}
	return s, nil
}

func (m *Manager) dropLocked(s *Session) {
	delete(m.byToken, s.Token)
	key := slotKey{playerId: s.PlayerId, roomId: s.RoomId}
	if m.bySlot[key] == s.Token {
		delete(m.bySlot, key)
	}
}

// Drop removes a session explicitly (player left the room).
func (m *Manager) Drop(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byToken[token]; ok {
		m.dropLocked(s)
	}
}

// Reap expires every session past its TTL and reports rooms whose last
// live session just went away so they can be abandoned. Returns the number
// of sessions expired.
func (m *Manager) Reap() int {
	m.mu.Lock()

	now := m.clock()
	touched := make(map[string]bool)
	expired := 0
	for _, s := range m.byToken {
		if now.Sub(s.LastHeartbeat) > m.ttl {
			m.dropLocked(s)
			touched[s.RoomId] = true
			expired++
		}
	}

	var abandoned []string
	for roomId := range touched {
		if !m.roomAliveLocked(roomId) {
			abandoned = append(abandoned, roomId)
		}
	}
	m.mu.Unlock()

	if expired > 0 {
		log.Infof("session reaper expired %d session(s)", expired)
	}
	if m.onAbandon != nil {
		for _, roomId := range abandoned {
			m.onAbandon(roomId)
		}
	}
	return expired
}

func (m *Manager) roomAliveLocked(roomId string) bool {
	for _, s := range m.byToken {
		if s.RoomId == roomId {
			return true
		}
	}
	return false
}

// Run drives the reaper until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}
