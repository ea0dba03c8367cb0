package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	outboxDepth = 128
)

// ErrConnClosed reports a send on a connection that has been torn down.
var ErrConnClosed = errors.New("realtime: connection closed")

// ErrConnCongested reports a send dropped because the client is not
// draining its outbox.
var ErrConnCongested = errors.New("realtime: outbox full")

// Connection binds one user's websocket to one session room. Outbound
// events go through a bounded outbox drained by a single pump goroutine,
// so Send is safe from any number of broadcasting goroutines.
//
// The outbox channel is never closed. Teardown is signalled through done
// instead, which lets Close race Send freely: a send that loses the race
// lands in a buffer nobody drains and is garbage collected with the
// connection.
type Connection struct {
	ID        string
	UserID    string
	SessionID string

	ws     *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	stop   sync.Once
}

// NewConnection wraps an upgraded websocket for the given user and session.
func NewConnection(userID, sessionID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		ws:        ws,
		outbox:    make(chan []byte, outboxDepth),
		done:      make(chan struct{}),
	}
}

// Start launches the write pump. Called once by Hub.Attach.
func (c *Connection) Start() {
	go c.pump()
}

// Send enqueues payload for delivery. A full outbox closes the connection:
// a client that stopped draining gets cut rather than growing server-side
// backlog, and reconnects with a fresh socket.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.outbox <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "outbox full")
		return ErrConnCongested
	}
}

// Close tears the connection down exactly once: signals the pump, sends a
// close frame, and closes the socket. WriteControl is safe concurrently
// with the pump's writes.
func (c *Connection) Close(code int, reason string) {
	c.stop.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// pump is the single writer on the socket. It drains the outbox, keeps the
// peer alive with pings, and exits when the connection is closed or a write
// fails.
func (c *Connection) pump() {
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.outbox:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-pings.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
