package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpkod/sdominanta/internal/config"
)

type testRelay struct {
	hub *Hub
	srv *httptest.Server
}

func startRelay(t *testing.T, eviction string) *testRelay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(HubOptions{PeerEviction: eviction, SendBuffer: 16, Logger: zerolog.Nop()})
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(hub, ServerOptions{Logger: zerolog.Nop()}).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testRelay{hub: hub, srv: srv}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

// barrier round-trips a get_peers request. Frames from one connection are
// handled in order, so everything sent before it has been processed.
func barrier(t *testing.T, conn *websocket.Conn) []any {
	t.Helper()
	send(t, conn, Frame{Type: TypeGetPeers})
	msg := read(t, conn)
	require.Equal(t, TypePeersList, msg["type"], "unexpected frame %v", msg)
	return msg["peers"].([]any)
}

func TestPublishReachesOtherSubscribers(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a, b := r.dial(t), r.dial(t)

	send(t, a, Frame{Type: TypeSubscribe, Topic: "news"})
	send(t, b, Frame{Type: TypeSubscribe, Topic: "news"})
	barrier(t, a)
	barrier(t, b)

	send(t, a, Frame{Type: TypePublish, Topic: "news", Data: json.RawMessage(`{"n":1}`)})

	msg := read(t, b)
	assert.Equal(t, TypeMessage, msg["type"])
	assert.Equal(t, "news", msg["topic"])
	assert.Equal(t, map[string]any{"n": float64(1)}, msg["data"])

	// No self-echo: the next frame a sees is the barrier reply.
	barrier(t, a)
}

func TestSubscribeTwiceDeliversOnce(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a, b := r.dial(t), r.dial(t)

	send(t, b, Frame{Type: TypeSubscribe, Topic: "t"})
	send(t, b, Frame{Type: TypeSubscribe, Topic: "t"})
	barrier(t, b)

	send(t, a, Frame{Type: TypePublish, Topic: "t", Data: json.RawMessage(`"once"`)})
	barrier(t, a)

	msg := read(t, b)
	assert.Equal(t, TypeMessage, msg["type"])
	assert.Equal(t, "once", msg["data"])

	// The next frame b sees is its own barrier reply, not a second copy.
	barrier(t, b)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a := r.dial(t)

	send(t, a, Frame{Type: TypePublish, Topic: "empty", Data: json.RawMessage(`"x"`)})
	assert.Empty(t, barrier(t, a))
	assert.Equal(t, 0, r.hub.Stats().Topics)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a, b := r.dial(t), r.dial(t)

	send(t, b, Frame{Type: TypeSubscribe, Topic: "t"})
	send(t, b, Frame{Type: TypeUnsubscribe, Topic: "t"})
	barrier(t, b)

	send(t, a, Frame{Type: TypePublish, Topic: "t", Data: json.RawMessage(`1`)})
	barrier(t, a)
	barrier(t, b)
}

func TestAnnounceBroadcastsAndListsPeers(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a, b := r.dial(t), r.dial(t)

	send(t, b, Frame{Type: TypeSubscribe, Topic: AnnounceTopic})
	barrier(t, b)

	send(t, a, Frame{Type: TypeAnnounce, PeerID: "peer-b", Data: json.RawMessage(`{"role":"scout"}`)})
	send(t, a, Frame{Type: TypeAnnounce, PeerID: "peer-a"})

	msg := read(t, b)
	assert.Equal(t, TypeMessage, msg["type"])
	assert.Equal(t, AnnounceTopic, msg["topic"])
	assert.Equal(t, map[string]any{
		"peerId": "peer-b",
		"data":   map[string]any{"role": "scout"},
	}, msg["data"])

	msg = read(t, b)
	assert.Equal(t, "peer-a", msg["data"].(map[string]any)["peerId"])

	assert.Equal(t, []any{"peer-a", "peer-b"}, barrier(t, a))
}

func TestErrorFramesKeepConnectionOpen(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a := r.dial(t)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := read(t, a)
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "invalid JSON frame", msg["error"])

	send(t, a, Frame{Type: "shout"})
	msg = read(t, a)
	assert.Equal(t, "unknown message type: shout", msg["error"])

	send(t, a, Frame{Type: TypeSubscribe})
	msg = read(t, a)
	assert.Equal(t, "topic is required", msg["error"])

	send(t, a, Frame{Type: TypeAnnounce})
	msg = read(t, a)
	assert.Equal(t, "peerId is required", msg["error"])

	barrier(t, a)
}

func TestDisconnectRemovesSubscriptions(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a, b := r.dial(t), r.dial(t)

	send(t, b, Frame{Type: TypeSubscribe, Topic: "t"})
	barrier(t, b)
	require.Equal(t, 1, r.hub.Stats().Topics)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return r.hub.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, r.hub.Stats().Topics)

	send(t, a, Frame{Type: TypePublish, Topic: "t", Data: json.RawMessage(`1`)})
	barrier(t, a)
}

func TestPeersSurviveDisconnectByDefault(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	a, b := r.dial(t), r.dial(t)

	send(t, a, Frame{Type: TypeAnnounce, PeerID: "peer-a"})
	barrier(t, a)
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return r.hub.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []any{"peer-a"}, barrier(t, b))
}

func TestPeersEvictedOnDisconnect(t *testing.T) {
	r := startRelay(t, config.PeerEvictionDisconnect)
	a, b := r.dial(t), r.dial(t)

	send(t, a, Frame{Type: TypeAnnounce, PeerID: "peer-a"})
	send(t, b, Frame{Type: TypeAnnounce, PeerID: "peer-b"})
	barrier(t, a)
	barrier(t, b)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return r.hub.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []any{"peer-b"}, barrier(t, b))
}

func TestFullQueueDropsFrames(t *testing.T) {
	hub := NewHub(HubOptions{SendBuffer: 1, Logger: zerolog.Nop()})
	c := &Conn{hub: hub, send: make(chan []byte, 1), logger: zerolog.Nop()}
	hub.conns[c] = struct{}{}
	hub.topics["t"] = map[*Conn]struct{}{c: {}}

	hub.publish(nil, "t", json.RawMessage(`1`))
	hub.publish(nil, "t", json.RawMessage(`2`))

	require.Len(t, c.send, 1)
	assert.JSONEq(t, `{"type":"message","topic":"t","data":1}`, string(<-c.send))
}

func TestHealth(t *testing.T) {
	r := startRelay(t, config.PeerEvictionNone)
	r.dial(t)

	require.Eventually(t, func() bool {
		return r.hub.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := r.srv.Client().Get(r.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.OK)
	assert.Equal(t, 1, body.Connections)
}

func TestOriginAllowList(t *testing.T) {
	up := makeUpgrader([]string{"https://sdominanta.net"})
	req := httptest.NewRequest("GET", "/ws", nil)

	assert.True(t, up.CheckOrigin(req), "non-browser clients pass")
	req.Header.Set("Origin", "https://sdominanta.net")
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, up.CheckOrigin(req))
}
