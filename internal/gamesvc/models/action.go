package models

import "time"

// ActionLogEntry is one committed action of a room's append-only log.
type ActionLogEntry struct {
	RoomId     string    `json:"room_id"`
	Sequence   uint64    `json:"sequence"`
	ActionType string    `json:"action_type"`
	Payload    []byte    `json:"payload"`
	Version    uint64    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}
