package relay

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/rs/zerolog"

	"github.com/dumpkod/sdominanta/internal/config"
	"github.com/dumpkod/sdominanta/internal/metrics"
)

// HubOptions configures a Hub.
type HubOptions struct {
	// PeerEviction is config.PeerEvictionNone (announced peers are kept
	// forever) or config.PeerEvictionDisconnect (peers go away with the
	// last connection that announced them).
	PeerEviction string
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	Logger     zerolog.Logger
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int `json:"connections"`
	Topics      int `json:"topics"`
	Peers       int `json:"peers"`
}

type inbound struct {
	conn  *Conn
	frame Frame
	// bad is set when the raw frame could not be decoded.
	bad string
}

// Hub owns all relay state. Every field below the channels is touched
// only by the Run goroutine.
type Hub struct {
	register   chan *Conn
	unregister chan *Conn
	inbound    chan inbound
	queries    chan func()
	done       chan struct{}

	conns     map[*Conn]struct{}
	topics    map[string]map[*Conn]struct{}
	peers     map[string]int // peer id -> live connections that announced it
	announced map[*Conn]map[string]struct{}

	evictOnDisconnect bool
	sendBuffer        int
	logger            zerolog.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(opts HubOptions) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		register:          make(chan *Conn),
		unregister:        make(chan *Conn),
		inbound:           make(chan inbound, 256),
		queries:           make(chan func()),
		done:              make(chan struct{}),
		conns:             make(map[*Conn]struct{}),
		topics:            make(map[string]map[*Conn]struct{}),
		peers:             make(map[string]int),
		announced:         make(map[*Conn]map[string]struct{}),
		evictOnDisconnect: opts.PeerEviction == config.PeerEvictionDisconnect,
		sendBuffer:        opts.SendBuffer,
		logger:            opts.Logger,
	}
}

// Run processes hub events until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Int("connections", len(h.conns)).Msg("relay hub stopping")
			for c := range h.conns {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.conns[c] = struct{}{}
			metrics.RelayConnections.Inc()
		case c := <-h.unregister:
			if _, ok := h.conns[c]; ok {
				h.drop(c)
			}
		case in := <-h.inbound:
			if _, ok := h.conns[in.conn]; ok {
				h.handle(in)
			}
		case q := <-h.queries:
			q()
		}
	}
}

// Stats returns the current hub counters. It returns zero Stats once the
// hub has stopped.
func (h *Hub) Stats() Stats {
	out := make(chan Stats, 1)
	select {
	case h.queries <- func() {
		out <- Stats{Connections: len(h.conns), Topics: len(h.topics), Peers: len(h.peers)}
	}:
		return <-out
	case <-h.done:
		return Stats{}
	}
}

// Register adds a connection. It reports false if the hub has stopped.
func (h *Hub) Register(c *Conn) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a connection and closes its send queue.
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in inbound) {
	select {
	case h.inbound <- in:
	case <-h.done:
	}
}

func (h *Hub) handle(in inbound) {
	c, f := in.conn, in.frame
	if in.bad != "" {
		metrics.RelayFrames.WithLabelValues("invalid").Inc()
		h.reply(c, encodeError(in.bad))
		return
	}

	switch f.Type {
	case TypeSubscribe, TypeUnsubscribe, TypePublish, TypeAnnounce, TypeGetPeers:
		metrics.RelayFrames.WithLabelValues(f.Type).Inc()
	default:
		metrics.RelayFrames.WithLabelValues("unknown").Inc()
	}

	switch f.Type {
	case TypeSubscribe:
		if f.Topic == "" {
			h.reply(c, encodeError("topic is required"))
			return
		}
		subs, ok := h.topics[f.Topic]
		if !ok {
			subs = make(map[*Conn]struct{})
			h.topics[f.Topic] = subs
		}
		subs[c] = struct{}{}
		c.logger.Debug().Str("topic", f.Topic).Msg("subscribed")

	case TypeUnsubscribe:
		if f.Topic == "" {
			h.reply(c, encodeError("topic is required"))
			return
		}
		h.leave(c, f.Topic)

	case TypePublish:
		if f.Topic == "" {
			h.reply(c, encodeError("topic is required"))
			return
		}
		h.publish(c, f.Topic, f.Data)

	case TypeAnnounce:
		if f.PeerID == "" {
			h.reply(c, encodeError("peerId is required"))
			return
		}
		own, ok := h.announced[c]
		if !ok {
			own = make(map[string]struct{})
			h.announced[c] = own
		}
		if _, seen := own[f.PeerID]; !seen {
			own[f.PeerID] = struct{}{}
			h.peers[f.PeerID]++
		}
		metrics.RelayPeers.Set(float64(len(h.peers)))
		c.logger.Info().Str("peer_id", f.PeerID).Msg("peer announced")

		data := f.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		payload, _ := json.Marshal(Announcement{PeerID: f.PeerID, Data: data})
		h.publish(c, AnnounceTopic, payload)

	case TypeGetPeers:
		peers := make([]string, 0, len(h.peers))
		for id := range h.peers {
			peers = append(peers, id)
		}
		slices.Sort(peers)
		h.reply(c, encodePeers(peers))

	default:
		h.reply(c, encodeError("unknown message type: "+f.Type))
	}
}

// publish fans data out to the subscribers of topic, except the sender.
// Full queues drop the frame.
func (h *Hub) publish(from *Conn, topic string, data json.RawMessage) {
	subs := h.topics[topic]
	if len(subs) == 0 {
		return
	}
	msg := encodeMessage(topic, data)
	for c := range subs {
		if c == from {
			continue
		}
		if c.enqueue(msg) {
			metrics.RelayDeliveries.Inc()
		} else {
			metrics.RelayDropped.Inc()
			c.logger.Warn().Str("topic", topic).Msg("send queue full, frame dropped")
		}
	}
}

func (h *Hub) reply(c *Conn, msg []byte) {
	if !c.enqueue(msg) {
		metrics.RelayDropped.Inc()
	}
}

func (h *Hub) leave(c *Conn, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// drop forgets c and closes its send queue.
func (h *Hub) drop(c *Conn) {
	delete(h.conns, c)
	for topic := range h.topics {
		h.leave(c, topic)
	}

	for id := range h.announced[c] {
		h.peers[id]--
		if h.evictOnDisconnect && h.peers[id] <= 0 {
			delete(h.peers, id)
		}
	}
	delete(h.announced, c)
	metrics.RelayPeers.Set(float64(len(h.peers)))
	metrics.RelayConnections.Dec()

	close(c.send)
}
