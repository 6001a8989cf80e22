package hub

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-kai/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed
	maxMessageSize = 2 * 1024 * 1024 // webcam frames as base64 data URLs
)

// Conn is the subset of a websocket connection the hub needs.
// *websocket.Conn from gofiber/contrib/websocket satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Handler receives each inbound message that parses as an envelope.
// Messages that do not parse are dropped.
type Handler func(id string, msg *protocol.Message)

// Client represents a single websocket connection
type Client struct {
	id   string
	hub  *Hub
	conn Conn
	send chan Message

	closeOnce sync.Once
}

// NewClient creates a new client and registers it with the hub under id.
// The client can be addressed with Send as soon as NewClient returns.
func NewClient(hub *Hub, id string, conn Conn) *Client {
	client := &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256), // Buffered channel for backpressure
	}
	hub.add(client)
	return client
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Run starts the write pump and reads until the connection closes.
// It blocks, and unregisters the client on return.
func (c *Client) Run(handle Handler) {
	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	c.readPump(handle)
	<-done
}

// enqueue must be called with the hub lock held so send cannot be
// closed concurrently.
func (c *Client) enqueue(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump reads messages from the websocket connection and hands
// parsed envelopes to handle.
func (c *Client) readPump(handle Handler) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.hub.logger.Debug("dropping malformed message", "id", c.id, "error", err)
			continue
		}
		if handle != nil {
			handle(c.id, msg)
		}
	}
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
