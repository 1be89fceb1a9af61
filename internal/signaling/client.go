package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-p2p/parley/internal/metrics"
	"github.com/parley-p2p/parley/internal/protocol"
	"github.com/parley-p2p/parley/internal/room"
)

const wsWriteWait = 10 * time.Second

// client wraps one member's websocket connection. Reads happen on the
// connection's handler goroutine; writes are serialized through writePump.
type client struct {
	srv     *Server
	conn    *websocket.Conn
	member  *room.Member
	limiter *rateLimiter

	send chan protocol.ServerEnvelope
	done chan struct{}
	once sync.Once
}

func newClient(srv *Server, conn *websocket.Conn) *client {
	c := &client{
		srv:     srv,
		conn:    conn,
		limiter: newRateLimiter(srv.cfg.MaxMessagesPerSecond),
		send:    make(chan protocol.ServerEnvelope, srv.cfg.SendQueueSize),
		done:    make(chan struct{}),
	}
	c.member = room.NewMember(c)
	return c
}

// Send implements room.Outbox. It never blocks: a full queue means the
// reader has stalled and the envelope is dropped (and counted by the caller).
func (c *client) Send(env protocol.ServerEnvelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// readPump consumes inbound frames until the connection drops, then runs the
// membership-removal path exactly once. It never closes the socket itself:
// writePump owns it, so queued envelopes and the close frame still go out
// after an explicit leave.
func (c *client) readPump() {
	defer c.srv.disconnect(c)

	c.conn.SetReadLimit(c.srv.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.WSIdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.WSIdleTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.WSIdleTimeout))

		if msgType != websocket.TextMessage {
			c.srv.m.Inc(metrics.DropReasonMalformed)
			continue
		}
		if !c.limiter.Allow(time.Now()) {
			c.srv.m.Inc(metrics.DropReasonRateLimited)
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		c.srv.handleMessage(c, data)

		select {
		case <-c.done:
			// handleMessage processed an explicit leave; the server closes
			// the connection.
			return
		default:
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// periodic pings. It is the sole owner of conn.Close: on shutdown it flushes
// whatever is queued and writes the close frame before the socket goes away.
func (c *client) writePump() {
	ticker := time.NewTicker(c.srv.cfg.WSPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Flush anything already queued before closing.
			for {
				select {
				case env := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := c.conn.WriteJSON(env); err != nil {
						return
					}
				default:
					c.writeClose(websocket.CloseNormalClosure, "")
					return
				}
			}
		}
	}
}

func (c *client) writeClose(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
