package actionlog

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrSnapshotRequired signals that the requested range was truncated or
// archived; the caller must fall back to a full state snapshot.
var ErrSnapshotRequired = errors.New("log range truncated, snapshot required")

// Entry is one accepted action. Entries are append-only and never mutated
// while the room is active.
type Entry struct {
	RoomId     string          `json:"room_id"`
	Sequence   uint64          `json:"sequence"`
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload"`
	Version    uint64          `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Log is the per-room append-only action log. Appends happen only from the
// room's serialized mutation path, which owns the sequence counter; reads
// may come from any connection handler.
type Log struct {
	mu      sync.RWMutex
	roomId  string
	first   uint64 // sequence of entries[0], 1 when never truncated
	entries []*Entry
}

func New(roomId string) *Log {
	return &Log{roomId: roomId, first: 1}
}

// Append records an accepted action and returns its sequence number.
// Sequence numbers per room are gapless and strictly increasing.
func (l *Log) Append(actionType string, payload json.RawMessage, version uint64, now time.Time) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.first + uint64(len(l.entries))
	l.entries = append(l.entries, &Entry{
		RoomId:     l.roomId,
		Sequence:   seq,
		ActionType: actionType,
		Payload:    payload,
		Version:    version,
		Timestamp:  now,
	})
	return seq
}

// Since returns every committed entry with sequence greater than lastSeen,
// in order. ErrSnapshotRequired if that range is no longer held.
func (l *Log) Since(lastSeen uint64) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if lastSeen+1 < l.first {
		return nil, ErrSnapshotRequired
	}
	start := int(lastSeen + 1 - l.first)
	if start >= len(l.entries) {
		return nil, nil
	}
	return append([]*Entry(nil), l.entries[start:]...), nil
}

// Last returns the highest committed sequence number, 0 when empty.
func (l *Log) Last() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.first + uint64(len(l.entries)) - 1
}

// TruncateThrough drops entries up to and including seq, used when older
// entries have been archived.
func (l *Log) TruncateThrough(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq < l.first {
		return
	}
	drop := int(seq + 1 - l.first)
	if drop > len(l.entries) {
		drop = len(l.entries)
	}
	l.entries = append([]*Entry(nil), l.entries[drop:]...)
	l.first += uint64(drop)
}
