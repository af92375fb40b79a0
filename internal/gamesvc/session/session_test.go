package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock makes TTL expiry testable without wall-clock waits.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestCreateAndResolve(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(DefaultTTL, clock.Now)

	s := m.Create("player-a", "room-1")
	require.NotEmpty(t, s.Token)

	playerId, roomId, err := m.Resolve(s.Token)
	require.NoError(t, err)
	require.Equal(t, "player-a", playerId)
	require.Equal(t, "room-1", roomId)
}

func TestHeartbeatExtendsTTL(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(DefaultTTL, clock.Now)
	s := m.Create("player-a", "room-1")

	clock.Advance(23 * time.Hour)
	require.NoError(t, m.Heartbeat(s.Token))

	clock.Advance(23 * time.Hour)
	_, _, err := m.Resolve(s.Token)
	require.NoError(t, err, "heartbeat must have reset the expiry clock")
}

func TestExpiredTokenIsRejected(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(DefaultTTL, clock.Now)
	s := m.Create("player-a", "room-1")

	clock.Advance(DefaultTTL + time.Minute)

	require.ErrorIs(t, m.Heartbeat(s.Token), ErrSessionExpired)
	_, _, err := m.Resolve(s.Token)
	require.ErrorIs(t, err, ErrSessionExpired)

	require.ErrorIs(t, m.Heartbeat("no-such-token"), ErrSessionExpired)
}

func TestDuplicateConnectionSupersedes(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(DefaultTTL, clock.Now)

	var superseded []string
	m.OnSupersede(func(old string) { superseded = append(superseded, old) })

	first := m.Create("player-a", "room-1")
	second := m.Create("player-a", "room-1")
	require.NotEqual(t, first.Token, second.Token)
	require.Equal(t, []string{first.Token}, superseded)

	_, _, err := m.Resolve(first.Token)
	require.ErrorIs(t, err, ErrSessionExpired, "the old token must be invalid immediately")
	_, _, err = m.Resolve(second.Token)
	require.NoError(t, err)

	// a session in another room is its own slot, not a duplicate
	m.Create("player-a", "room-2")
	require.Len(t, superseded, 1)
}

func TestReapAbandonsRoomOnceBothSessionsExpire(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(DefaultTTL, clock.Now)

	var abandoned []string
	m.OnAbandon(func(roomId string) { abandoned = append(abandoned, roomId) })

	m.Create("player-a", "room-1")
	b := m.Create("player-b", "room-1")

	// only A goes idle; B keeps heartbeating
	clock.Advance(23 * time.Hour)
	require.NoError(t, m.Heartbeat(b.Token))
	clock.Advance(2 * time.Hour)

	require.Equal(t, 1, m.Reap())
	require.Empty(t, abandoned, "one live session keeps the room alive")

	clock.Advance(DefaultTTL + time.Minute)
	require.Equal(t, 1, m.Reap())
	require.Equal(t, []string{"room-1"}, abandoned)
}

func TestDrop(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(DefaultTTL, clock.Now)
	s := m.Create("player-a", "room-1")

	m.Drop(s.Token)
	_, _, err := m.Resolve(s.Token)
	require.ErrorIs(t, err, ErrSessionExpired)
}
