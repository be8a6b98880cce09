package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one relay client. The reader goroutine feeds the hub; the writer
// goroutine drains send, which only the hub writes to and closes.
type Conn struct {
	id     string
	ws     *websocket.Conn
	hub    *Hub
	send   chan []byte
	logger zerolog.Logger
}

func newConn(hub *Hub, ws *websocket.Conn, logger zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, hub.sendBuffer),
		logger: logger.With().Str("conn_id", id).Logger(),
	}
}

// enqueue queues msg without blocking. Called from the hub goroutine only.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readLoop decodes frames until the socket fails, then unregisters.
func (c *Conn) readLoop(maxMessageBytes int64) {
	defer c.hub.Unregister(c)

	c.ws.SetReadLimit(maxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("relay read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.hub.submit(inbound{conn: c, bad: "invalid JSON frame"})
			continue
		}
		c.hub.submit(inbound{conn: c, frame: f})
	}
}

// writeLoop sends queued frames and keepalive pings until the hub closes
// the queue or a write fails.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug().Err(err).Msg("relay write error")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
