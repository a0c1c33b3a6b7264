package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A relayed chunk can grow to six
	// times its size when JSON escapes every byte, so this leaves ample room.
	maxMessageSize = 1 << 20

	sendBuffer = 256
)

// Conn is one websocket connection on the server side.
type Conn struct {
	id     string
	ws     *websocket.Conn
	router *Router
	log    *slog.Logger

	send      chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws with a fresh connection ID.
func NewConn(ws *websocket.Conn, router *Router, logger *slog.Logger) *Conn {
	id := uuid.NewString()
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		id:     id,
		ws:     ws,
		router: router,
		log:    logger.With("conn", id),
		send:   make(chan *Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the server-assigned connection ID.
func (c *Conn) ID() string { return c.id }

// Send queues msg for the write pump. It never blocks.
func (c *Conn) Send(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Serve registers the connection and runs both pumps until it closes.
func (c *Conn) Serve() {
	c.router.Register(c)
	go c.writePump()
	c.readPump()
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump pumps messages from the websocket connection to the router.
//
// There is at most one reader on a connection, so messages from one client
// are handled in arrival order.
func (c *Conn) readPump() {
	defer func() {
		c.router.Unregister(c.id)
		c.close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("Read failed", "error", err)
			}
			return
		}
		c.router.HandleMessage(c.id, &msg)
	}
}

// writePump is the only writer on the connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			frame, err := msg.Encode()
			if err != nil {
				c.log.Warn("Dropping unencodable message", "type", msg.Type, "error", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Shutdown closes the connection; the read pump then unregisters it.
// It is safe to call more than once.
func (c *Conn) Shutdown() {
	c.close()
}
