package sdom

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// AnnounceTopic is the relay topic peer announcements are published on.
const AnnounceTopic = "sdom/agents/announce"

// RelayFrame is any frame the relay sends: "message", "peers_list" or
// "error".
type RelayFrame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Peers []string        `json:"peers,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Announcement is the data of a frame received on AnnounceTopic.
type Announcement struct {
	PeerID string          `json:"peerId"`
	Data   json.RawMessage `json:"data"`
}

// RelayClient is a connection to the topic relay. Writes are safe for
// concurrent use; Next must be called from one goroutine.
type RelayClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialRelay connects to a relay WebSocket URL such as ws://host:9090/ws.
func DialRelay(ctx context.Context, url string, header http.Header) (*RelayClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &RelayClient{conn: conn}, nil
}

func (r *RelayClient) write(frame any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.WriteJSON(frame)
}

type relayRequest struct {
	Type   string `json:"type"`
	Topic  string `json:"topic,omitempty"`
	Data   any    `json:"data,omitempty"`
	PeerID string `json:"peerId,omitempty"`
}

// Subscribe starts delivery of topic's publications.
func (r *RelayClient) Subscribe(topic string) error {
	return r.write(relayRequest{Type: "subscribe", Topic: topic})
}

// Unsubscribe stops delivery of topic's publications.
func (r *RelayClient) Unsubscribe(topic string) error {
	return r.write(relayRequest{Type: "unsubscribe", Topic: topic})
}

// Publish sends data to every other subscriber of topic.
func (r *RelayClient) Publish(topic string, data any) error {
	return r.write(relayRequest{Type: "publish", Topic: topic, Data: data})
}

// Announce adds peerID to the relay's peer set and broadcasts it on
// AnnounceTopic.
func (r *RelayClient) Announce(peerID string, data any) error {
	return r.write(relayRequest{Type: "announce", PeerID: peerID, Data: data})
}

// RequestPeers asks for the peer list; the answer arrives through Next as
// a "peers_list" frame.
func (r *RelayClient) RequestPeers() error {
	return r.write(relayRequest{Type: "get_peers"})
}

// Next blocks until the relay sends a frame.
func (r *RelayClient) Next() (*RelayFrame, error) {
	var f RelayFrame
	if err := r.conn.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close closes the connection.
func (r *RelayClient) Close() error {
	r.mu.Lock()
	_ = r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.mu.Unlock()
	return r.conn.Close()
}
