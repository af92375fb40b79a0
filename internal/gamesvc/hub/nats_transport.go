package hub

import (
	"encoding/json"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const busTopic = "cassino.rooms"

// busEvent wraps a room event for the bus, tagged with the publishing
// instance so a service never re-delivers its own events.
type busEvent struct {
	Instance string          `json:"instance"`
	RoomId   string          `json:"room_id"`
	Message  *comm.WSMessage `json:"message"`
}

// NatsTransport republishes room events over NATS for multi-instance
// deployments.
type NatsTransport struct {
	conn       *nats.Conn
	instanceId string
}

func NewNatsTransport(conn *nats.Conn, instanceId string) *NatsTransport {
	return &NatsTransport{conn: conn, instanceId: instanceId}
}

func (t *NatsTransport) Publish(roomId string, payload []byte) error {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(payload, msg); err != nil {
		return err
	}

	ev := busEvent{
		Instance: t.instanceId,
		RoomId:   roomId,
		Message:  msg,
	}
	bytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.conn.Publish(busTopic, bytes)
}

// SubscribeRemote feeds events published by other instances into the local
// hub fan-out.
func (t *NatsTransport) SubscribeRemote(h *Hub) (*nats.Subscription, error) {
	return t.conn.Subscribe(busTopic, func(msgNats *nats.Msg) {
		ev := busEvent{}
		if err := json.Unmarshal(msgNats.Data, &ev); err != nil {
			log.Errorf("Error nats message %s", err)
			return
		}
		if ev.Instance == t.instanceId || ev.Message == nil {
			return
		}
		h.Deliver(ev.RoomId, ev.Message)
	})
}
