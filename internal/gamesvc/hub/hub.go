package hub

import (
	"encoding/json"
	"sync"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Subscriber is a local observer of a room, normally a websocket connection.
type Subscriber interface {
	Send(msg *comm.WSMessage) error
	Close()
}

// Transport republishes room events to other service instances. A nil
// Transport means the deployment is single-instance and delivery is
// local-only.
type Transport interface {
	Publish(roomId string, payload []byte) error
}

// Hub fans out room events to local subscribers, in publish order per room,
// and forwards them through the bus transport when one is configured. A bus
// failure degrades to local-only delivery; it never fails the move that
// triggered the event.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string][]Subscriber
	transport Transport
}

func NewHub(transport Transport) *Hub {
	return &Hub{
		rooms:     make(map[string][]Subscriber),
		transport: transport,
	}
}

func (h *Hub) Subscribe(roomId string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[roomId] = append(h.rooms[roomId], s)
}

func (h *Hub) Unsubscribe(roomId string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.rooms[roomId]
	for i, cur := range subs {
		if cur == s {
			h.rooms[roomId] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.rooms[roomId]) == 0 {
		delete(h.rooms, roomId)
	}
}

// Publish delivers msg to every local subscriber of the room and then
// attempts the bus republish. Callers invoke it synchronously from the
// room's serialized mutation path, which is what keeps local delivery order
// equal to action log order.
func (h *Hub) Publish(roomId string, msg *comm.WSMessage) {
	h.Deliver(roomId, msg)

	if h.transport == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("unable to marshal event for room %s: %v", roomId, err)
		return
	}
	if err := h.transport.Publish(roomId, payload); err != nil {
		log.Warnf("broadcast degraded for room %s, local delivery only: %v", roomId, err)
	}
}

// Deliver fans out to local subscribers only. Remote events arriving over
// the bus come in through here so they are not republished.
func (h *Hub) Deliver(roomId string, msg *comm.WSMessage) {
	h.mu.RLock()
	subs := append([]Subscriber(nil), h.rooms[roomId]...)
	h.mu.RUnlock()

	for _, s := range subs {
		if err := s.Send(msg); err != nil {
			log.Errorf("failed to deliver %s event to a subscriber of room %s: %v", msg.Type, roomId, err)
		}
	}
}

// ConnSubscriber adapts a gorilla websocket connection to the Subscriber
// interface. The mutex keeps concurrent writers off the connection.
type ConnSubscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewConnSubscriber(conn *websocket.Conn) *ConnSubscriber {
	return &ConnSubscriber{conn: conn}
}

func (c *ConnSubscriber) Send(msg *comm.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *ConnSubscriber) Close() {
	c.conn.Close()
}
