package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Connection wraps a websocket and serializes outbound writes through a
// buffered channel consumed by a dedicated writer goroutine. Deltas,
// errors, and pongs originate from different internal triggers; funneling
// them through one writer keeps frames from interleaving on the wire.
type Connection struct {
	ID             string
	UserID         string
	ConversationID string

	ws       *websocket.Conn
	send     chan []byte
	closeReq chan closeRequest
	once     sync.Once
	close    chan struct{}
}

type closeRequest struct {
	code   int
	reason string
}

// NewConnection constructs a Connection bound to one (user, conversation)
// pair.
func NewConnection(userID, conversationID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		ws:             ws,
		send:           make(chan []byte, 128),
		closeReq:       make(chan closeRequest, 1),
		close:          make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per
// connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. If the client is slow and the
// buffer fills, the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// CloseWith requests a graceful close through the writer loop: frames
// already queued are flushed before the close frame goes out, so a fatal
// error frame enqueued just before is still delivered.
func (c *Connection) CloseWith(code int, reason string) {
	select {
	case c.closeReq <- closeRequest{code: code, reason: reason}:
	default:
		// A close is already pending or the writer is gone.
		c.Close(code, reason)
	}
}

// Close terminates the connection immediately with the given close code.
// Safe to call more than once and concurrently with the writer: gorilla's
// WriteControl may race WriteMessage by contract.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// Terminate drops the connection without a close handshake. The client
// observes a 1006-class abnormal closure and treats it as
// CONNECTION_DROPPED; used when the peer is presumed dead.
func (c *Connection) Terminate() {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.Close()
	})
}

// Closed reports connection teardown to selectors.
func (c *Connection) Closed() <-chan struct{} {
	return c.close
}

// SetReadDeadline bounds how long the read loop waits for the next frame.
// The session manager advances it on each client heartbeat.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// ReadMessage blocks for the next inbound frame.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// SetReadLimit caps inbound frame size.
func (c *Connection) SetReadLimit(limit int64) {
	c.ws.SetReadLimit(limit)
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				c.Terminate()
				return
			}
		case req := <-c.closeReq:
			c.drain()
			c.Close(req.code, req.reason)
			return
		}
	}
}

// drain flushes whatever is already queued before a graceful close.
func (c *Connection) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
