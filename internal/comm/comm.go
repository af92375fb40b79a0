package comm

import (
	"encoding/json"
)

// WSMessage is the envelope for every message exchanged with web clients
// and republished over the bus between service instances.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "submit-move", "action_accepted"
	RoomId   string          `json:"room_id,omitempty"`
	Sequence uint64          `json:"sequence,omitempty"`
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// Server-to-client event types.
const (
	EventPlayerJoined   = "player_joined"
	EventPlayerReady    = "player_ready"
	EventActionAccepted = "action_accepted"
	EventActionRejected = "action_rejected"
	EventStateSnapshot  = "game_state_snapshot"
	EventHeartbeatAck   = "heartbeat_ack"
)

// Client-to-server request types.
const (
	ReqCreateRoom = "create-room"
	ReqJoinRoom   = "join-room"
	ReqSetReady   = "set-ready"
	ReqSubmitMove = "submit-move"
	ReqGetState   = "get-state"
	ReqHeartbeat  = "heartbeat"
	ReqReconnect  = "reconnect"
)

type CreateRoomRequest struct {
	PlayerId string `json:"player_id"`
	Name     string `json:"name"`
}

type JoinRoomRequest struct {
	RoomId   string `json:"room_id"`
	PlayerId string `json:"player_id"`
	Name     string `json:"name"`
}

type ReadyRequest struct {
	Token string `json:"token"`
	Ready bool   `json:"ready"`
}

type MoveRequest struct {
	Token string          `json:"token"`
	Move  json.RawMessage `json:"move"`
}

type HeartbeatRequest struct {
	Token string `json:"token"`
}

type StateRequest struct {
	Token string `json:"token"`
}

type ReconnectRequest struct {
	Token            string `json:"token"`
	LastSeenSequence uint64 `json:"last_seen_sequence"`
}

type SessionResponse struct {
	RoomId   string `json:"room_id"`
	PlayerId string `json:"player_id"`
	Token    string `json:"token"`
}

type RejectResponse struct {
	RoomId string `json:"room_id"`
	Reason string `json:"reason"`
}
