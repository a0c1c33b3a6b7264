package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/vanish/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer    = 256
	handshakeWait   = 10 * time.Second
	clientReadLimit = 2 * maxMessageSize
)

// Client is a peer's connection to the signaling server.
type Client struct {
	serverURL string
	log       *slog.Logger

	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan *Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a Client for the given ws:// or wss:// URL.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		log:       logger.With("component", "signaling"),
		incoming:  make(chan *Message, clientBuffer),
		outgoing:  make(chan *Message, clientBuffer),
		done:      make(chan struct{}),
	}
}

// Connect dials the server and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server URL %q: scheme must be ws or wss", c.serverURL)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeWait,
		NetDialContext:   dns.NewResolver().DialContext,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(clientReadLimit)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

// Send queues msg for the server. It returns false once the client is closed.
func (c *Client) Send(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outgoing <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Incoming is closed when the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		close(c.incoming)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Signaling connection lost", "error", err)
			}
			return
		}
		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("Signaling write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.flush()
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued, such as a final leave-room.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.outgoing:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
