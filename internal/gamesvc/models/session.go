package models

import "time"

type Session struct {
	Token         string    `json:"token"`
	PlayerId      string    `json:"player_id"`
	RoomId        string    `json:"room_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ExpiresAt     time.Time `json:"expires_at"`
}
