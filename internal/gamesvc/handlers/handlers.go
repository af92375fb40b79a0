package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
	"github.com/cassino-games/cassino-services/internal/gamesvc/hub"
	"github.com/cassino-games/cassino-services/internal/gamesvc/models"
	"github.com/cassino-games/cassino-services/internal/gamesvc/room"
	"github.com/cassino-games/cassino-services/internal/gamesvc/service"
	"github.com/cassino-games/cassino-services/internal/gamesvc/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	upgrader websocket.Upgrader
	registry *room.Registry
	sessions *session.Manager
	hub      *hub.Hub

	// sessionSvc is optional; nil in memory-only mode.
	sessionSvc *service.SessionService

	mu      sync.Mutex
	byToken map[string]*client
}

// client is one live websocket connection bound to a session.
type client struct {
	sub    *hub.ConnSubscriber
	roomId string
	token  string
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler(registry *room.Registry, sessions *session.Manager, h *hub.Hub, sessionSvc *service.SessionService) *Handler {
	handler := &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		registry:   registry,
		sessions:   sessions,
		hub:        h,
		sessionSvc: sessionSvc,
		byToken:    make(map[string]*client),
	}
	sessions.OnSupersede(handler.closeToken)
	return handler
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// the upgrader has already written its own HTTP error on failure
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	log.Infof("New WebSocket connection established: %s", socketId)

	go h.handleConnection(conn, socketId)
}

func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	sub := hub.NewConnSubscriber(conn)

	defer func() {
		log.Infof("Closing WebSocket connection: %s", socketId)
		h.detach(sub)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			} else {
				log.Infof("WebSocket connection closed normally for socket: %s", socketId)
			}
			break
		}

		message := &comm.WSMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			log.Errorf("Failed to unmarshal message from socket %s: %v", socketId, err)
			h.sendError(sub, "", "invalid message format")
			continue
		}
		message.SocketId = socketId

		h.dispatch(sub, message)
	}
}

// dispatch maps one inbound websocket message onto a core operation.
func (h *Handler) dispatch(sub *hub.ConnSubscriber, msg *comm.WSMessage) {
	switch msg.Type {
	case comm.ReqCreateRoom:
		var req comm.CreateRoomRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.PlayerId == "" {
			h.sendError(sub, "", "malformed create-room payload")
			return
		}
		roomId, sess, err := h.registry.CreateRoom(req.PlayerId, req.Name)
		if err != nil {
			h.sendError(sub, "", err.Error())
			return
		}
		h.attach(sub, sess.Token, roomId)
		h.persistSession(sess)
		h.sendSession(sub, sess)

	case comm.ReqJoinRoom:
		var req comm.JoinRoomRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.PlayerId == "" || req.RoomId == "" {
			h.sendError(sub, "", "malformed join-room payload")
			return
		}
		sess, err := h.registry.JoinRoom(req.RoomId, req.PlayerId, req.Name)
		if err != nil {
			h.sendError(sub, req.RoomId, err.Error())
			return
		}
		h.attach(sub, sess.Token, req.RoomId)
		h.persistSession(sess)
		h.sendSession(sub, sess)

	case comm.ReqSetReady:
		var req comm.ReadyRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(sub, "", "malformed set-ready payload")
			return
		}
		if err := h.registry.SetReady(req.Token, req.Ready); err != nil {
			h.sendError(sub, "", err.Error())
		}

	case comm.ReqSubmitMove:
		var req comm.MoveRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(sub, "", "malformed submit-move payload")
			return
		}
		_, err := h.registry.SubmitMove(req.Token, req.Move)
		if err != nil {
			h.sendRejection(sub, req.Token, err)
		}
		// accepted moves reach every observer through the hub broadcast

	case comm.ReqGetState:
		var req comm.StateRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(sub, "", "malformed get-state payload")
			return
		}
		st, err := h.registry.GetStateByToken(req.Token)
		if err != nil {
			h.sendError(sub, "", err.Error())
			return
		}
		data, _ := json.Marshal(st)
		h.send(sub, &comm.WSMessage{
			Type: comm.EventStateSnapshot,
			Data: data,
		})

	case comm.ReqHeartbeat:
		var req comm.HeartbeatRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(sub, "", "malformed heartbeat payload")
			return
		}
		if err := h.sessions.Heartbeat(req.Token); err != nil {
			h.sendError(sub, "", err.Error())
			return
		}
		h.send(sub, &comm.WSMessage{Type: comm.EventHeartbeatAck})

	case comm.ReqReconnect:
		h.handleReconnect(sub, msg)

	default:
		log.Warnf("unknown event received: %s", msg.Type)
	}
}

func (h *Handler) handleReconnect(sub *hub.ConnSubscriber, msg *comm.WSMessage) {
	var req comm.ReconnectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(sub, "", "malformed reconnect payload")
		return
	}

	_, roomId, err := h.sessions.Resolve(req.Token)
	if err != nil {
		h.sendError(sub, "", err.Error())
		return
	}

	// Subscribe before reading the tail: an action committed in between then
	// arrives on the live stream, and clients drop duplicates by sequence.
	h.attach(sub, req.Token, roomId)

	entries, snapshot, err := h.registry.Reconnect(req.Token, req.LastSeenSequence)
	if err != nil {
		h.detach(sub)
		h.sendError(sub, "", err.Error())
		return
	}

	if snapshot != nil {
		// the requested range was truncated, send the whole state instead
		data, _ := json.Marshal(snapshot)
		h.send(sub, &comm.WSMessage{
			Type:   comm.EventStateSnapshot,
			RoomId: roomId,
			Data:   data,
		})
		return
	}
	for _, e := range entries {
		data, _ := json.Marshal(e)
		h.send(sub, &comm.WSMessage{
			Type:     comm.EventActionAccepted,
			RoomId:   roomId,
			Sequence: e.Sequence,
			Data:     data,
		})
	}
}

// attach binds the connection to a session token and subscribes it to the
// room's broadcasts, replacing any previous binding of this connection.
func (h *Handler) attach(sub *hub.ConnSubscriber, token, roomId string) {
	h.detach(sub)

	h.mu.Lock()
	h.byToken[token] = &client{sub: sub, roomId: roomId, token: token}
	h.mu.Unlock()

	h.hub.Subscribe(roomId, sub)
}

// detach drops whatever binding the connection currently holds.
func (h *Handler) detach(sub *hub.ConnSubscriber) {
	h.mu.Lock()
	var found *client
	for token, c := range h.byToken {
		if c.sub == sub {
			found = c
			delete(h.byToken, token)
			break
		}
	}
	h.mu.Unlock()

	if found != nil {
		h.hub.Unsubscribe(found.roomId, sub)
	}
}

// closeToken closes the connection of a superseded session immediately,
// the duplicate connection path.
func (h *Handler) closeToken(token string) {
	h.mu.Lock()
	c, ok := h.byToken[token]
	if ok {
		delete(h.byToken, token)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.hub.Unsubscribe(c.roomId, c.sub)
	h.sendError(c.sub, c.roomId, session.ErrDuplicateConnection.Error())
	c.sub.Close()
	log.Infof("closed superseded connection for room %s", c.roomId)
}

func (h *Handler) sendSession(sub *hub.ConnSubscriber, sess *session.Session) {
	data, _ := json.Marshal(comm.SessionResponse{
		RoomId:   sess.RoomId,
		PlayerId: sess.PlayerId,
		Token:    sess.Token,
	})
	h.send(sub, &comm.WSMessage{Type: "session", RoomId: sess.RoomId, Data: data})
}

// sendRejection surfaces a rejected move with its specific reason; only
// rule rejections use the action_rejected event type.
func (h *Handler) sendRejection(sub *hub.ConnSubscriber, token string, err error) {
	var rej *engine.RejectError
	if !errors.As(err, &rej) {
		h.sendError(sub, "", err.Error())
		return
	}

	_, roomId, rerr := h.sessions.Resolve(token)
	if rerr != nil {
		roomId = ""
	}
	data, _ := json.Marshal(comm.RejectResponse{RoomId: roomId, Reason: rej.Reason})
	h.send(sub, &comm.WSMessage{Type: comm.EventActionRejected, RoomId: roomId, Data: data})
}

func (h *Handler) sendError(sub *hub.ConnSubscriber, roomId, reason string) {
	data, _ := json.Marshal(map[string]string{"error": reason})
	h.send(sub, &comm.WSMessage{Type: "error", RoomId: roomId, Data: data})
}

func (h *Handler) send(sub *hub.ConnSubscriber, msg *comm.WSMessage) {
	if err := sub.Send(msg); err != nil {
		log.Errorf("failed to send %s message to client: %v", msg.Type, err)
	}
}

// persistSession mirrors the session row so tokens survive a restart
// within their TTL.
func (h *Handler) persistSession(sess *session.Session) {
	if h.sessionSvc == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := h.sessionSvc.Upsert(ctx, &models.Session{
			Token:         sess.Token,
			PlayerId:      sess.PlayerId,
			RoomId:        sess.RoomId,
			LastHeartbeat: sess.LastHeartbeat,
			ExpiresAt:     sess.LastHeartbeat.Add(session.DefaultTTL),
		})
		if err != nil {
			log.Warnf("unable to persist session for room %s: %v", sess.RoomId, err)
		}
	}()
}
