package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cassino-games/cassino-services/internal/comm"
	"github.com/cassino-games/cassino-services/internal/gamesvc/engine"
	"github.com/cassino-games/cassino-services/internal/gamesvc/hub"
	"github.com/cassino-games/cassino-services/internal/gamesvc/room"
	"github.com/cassino-games/cassino-services/internal/gamesvc/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *room.Registry) {
	sessions := session.NewManager(session.DefaultTTL, time.Now)
	broadcast := hub.NewHub(nil)
	registry := room.NewRegistry(engine.DefaultRules(), broadcast, nil, sessions)
	registry.SetSeed(func() int64 { return 7 })

	h := NewHandler(registry, sessions, broadcast, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", h.HandleWebSocket)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendReq(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(&comm.WSMessage{Type: msgType, Data: data}))
}

// readType reads messages until one of the wanted type arrives, skipping
// the broadcasts a test does not care about.
func readType(t *testing.T, conn *websocket.Conn, want string) *comm.WSMessage {
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		msg := &comm.WSMessage{}
		require.NoError(t, conn.ReadJSON(msg), "waiting for a %s message", want)
		if msg.Type == want {
			return msg
		}
	}
}

func startGame(t *testing.T, srv *httptest.Server) (connA, connB *websocket.Conn, sessA, sessB comm.SessionResponse) {
	connA = dialWS(t, srv)
	sendReq(t, connA, comm.ReqCreateRoom, comm.CreateRoomRequest{PlayerId: "alice", Name: "Alice"})
	require.NoError(t, json.Unmarshal(readType(t, connA, "session").Data, &sessA))

	connB = dialWS(t, srv)
	sendReq(t, connB, comm.ReqJoinRoom, comm.JoinRoomRequest{RoomId: sessA.RoomId, PlayerId: "bob", Name: "Bob"})
	require.NoError(t, json.Unmarshal(readType(t, connB, "session").Data, &sessB))

	sendReq(t, connA, comm.ReqSetReady, comm.ReadyRequest{Token: sessA.Token, Ready: true})
	sendReq(t, connB, comm.ReqSetReady, comm.ReadyRequest{Token: sessB.Token, Ready: true})
	readType(t, connA, comm.EventStateSnapshot)
	readType(t, connB, comm.EventStateSnapshot)
	return connA, connB, sessA, sessB
}

func trailMove(t *testing.T, reg *room.Registry, roomId string, player int) json.RawMessage {
	st, err := reg.GetState(roomId)
	require.NoError(t, err)
	return json.RawMessage(fmt.Sprintf(`{"type":"trail","card":"%s"}`, st.Players[player].Hand[0].Code()))
}

func TestReconnectDeliversTailThenLiveEvents(t *testing.T) {
	srv, reg := newTestServer(t)
	connA, connB, sessA, sessB := startGame(t, srv)

	// alice leads with a trail; bob sees it live
	sendReq(t, connA, comm.ReqSubmitMove, comm.MoveRequest{Token: sessA.Token, Move: trailMove(t, reg, sessA.RoomId, 0)})
	readType(t, connB, comm.EventActionAccepted)

	// bob drops and comes back having seen only the deal
	connB.Close()
	connB2 := dialWS(t, srv)
	sendReq(t, connB2, comm.ReqReconnect, comm.ReconnectRequest{Token: sessB.Token, LastSeenSequence: 1})
	tail := readType(t, connB2, comm.EventActionAccepted)
	require.Equal(t, uint64(2), tail.Sequence, "the missed move comes back as the replay tail")

	// the reconnected socket is subscribed: the next committed move
	// reaches it as a live broadcast
	sendReq(t, connB2, comm.ReqSubmitMove, comm.MoveRequest{Token: sessB.Token, Move: trailMove(t, reg, sessA.RoomId, 1)})
	live := readType(t, connB2, comm.EventActionAccepted)
	require.Equal(t, uint64(3), live.Sequence)
	readType(t, connA, comm.EventActionAccepted)
}

func TestRejectedMoveReturnsReason(t *testing.T) {
	srv, reg := newTestServer(t)
	_, connB, sessA, sessB := startGame(t, srv)

	// bob moves out of turn
	sendReq(t, connB, comm.ReqSubmitMove, comm.MoveRequest{Token: sessB.Token, Move: trailMove(t, reg, sessA.RoomId, 1)})
	rej := readType(t, connB, comm.EventActionRejected)

	var resp comm.RejectResponse
	require.NoError(t, json.Unmarshal(rej.Data, &resp))
	require.Equal(t, "not your turn", resp.Reason)
}

func TestFailedUpgradeWritesSingleResponse(t *testing.T) {
	sessions := session.NewManager(session.DefaultTTL, time.Now)
	broadcast := hub.NewHub(nil)
	registry := room.NewRegistry(engine.DefaultRules(), broadcast, nil, sessions)
	h := NewHandler(registry, sessions, broadcast, nil)

	// a plain GET without the websocket handshake headers fails the upgrade;
	// the upgrader writes the whole error response itself
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
	h.HandleWebSocket(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, rec.Body.String(), "Failed to upgrade")
}
