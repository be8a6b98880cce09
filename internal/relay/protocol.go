// Package relay implements the live topic relay: clients subscribe to named
// topics over WebSocket, publish to them and announce their presence.
package relay

import (
	"encoding/json"
)

// AnnounceTopic carries peer announcements.
const AnnounceTopic = "sdom/agents/announce"

// Inbound frame types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePublish     = "publish"
	TypeAnnounce    = "announce"
	TypeGetPeers    = "get_peers"
)

// Outbound frame types.
const (
	TypeMessage   = "message"
	TypePeersList = "peers_list"
	TypeError     = "error"
)

// Frame is a client-to-relay message.
type Frame struct {
	Type   string          `json:"type"`
	Topic  string          `json:"topic,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	PeerID string          `json:"peerId,omitempty"`
}

// MessageFrame delivers a publication to a subscriber.
type MessageFrame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// PeersFrame answers get_peers.
type PeersFrame struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

// ErrorFrame reports a rejected frame. The connection stays open.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Announcement is the payload published on AnnounceTopic.
type Announcement struct {
	PeerID string          `json:"peerId"`
	Data   json.RawMessage `json:"data"`
}

func encodeMessage(topic string, data json.RawMessage) []byte {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	b, _ := json.Marshal(MessageFrame{Type: TypeMessage, Topic: topic, Data: data})
	return b
}

func encodePeers(peers []string) []byte {
	if peers == nil {
		peers = []string{}
	}
	b, _ := json.Marshal(PeersFrame{Type: TypePeersList, Peers: peers})
	return b
}

func encodeError(message string) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: TypeError, Error: message})
	return b
}
