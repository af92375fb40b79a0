package models

import "time"

// Room is the persisted row for a room: its phase, version and the full
// state blob, written after each in-memory commit.
type Room struct {
	Id        string    `json:"id"`
	Phase     string    `json:"phase"`
	Version   uint64    `json:"version"`
	State     []byte    `json:"state"` // JSON state blob
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
