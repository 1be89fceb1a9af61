// Package signalclient maintains a client's websocket connection to the
// signaling server: dialing, keepalive, and typed envelope send/receive.
// Inbound envelopes surface on a channel so the consumer (the negotiation
// engine's loop) stays single-threaded.
package signalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-p2p/parley/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type Client struct {
	conn     *websocket.Conn
	incoming chan protocol.ServerEnvelope
	outgoing chan protocol.ClientEnvelope
	done     chan struct{}
	once     sync.Once
}

// Dial connects to the signaling server and starts the read/write pumps.
// serverURL must use the ws or wss scheme.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported scheme %q (expected ws or wss)", u.Scheme)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan protocol.ServerEnvelope, 32),
		outgoing: make(chan protocol.ClientEnvelope, 32),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Incoming returns the channel of server envelopes. It is closed when the
// connection drops or Close is called.
func (c *Client) Incoming() <-chan protocol.ServerEnvelope {
	return c.incoming
}

func (c *Client) CreateRoom(roomID, name string) error {
	return c.send(protocol.ClientEnvelope{
		Type:    protocol.TypeCreateRoom,
		RoomID:  roomID,
		Payload: &protocol.ClientPayload{Name: name},
	})
}

func (c *Client) JoinRoom(roomID, name string) error {
	return c.send(protocol.ClientEnvelope{
		Type:    protocol.TypeJoinRoom,
		RoomID:  roomID,
		Payload: &protocol.ClientPayload{Name: name},
	})
}

func (c *Client) Leave() error {
	return c.send(protocol.ClientEnvelope{Type: protocol.TypeLeave})
}

// Signal relays an opaque negotiation payload to the member identified by to.
func (c *Client) Signal(roomID, to string, data protocol.SignalData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode signal payload: %w", err)
	}
	return c.send(protocol.ClientEnvelope{
		Type:   protocol.TypeSignal,
		RoomID: roomID,
		Payload: &protocol.ClientPayload{
			To:   to,
			Data: raw,
		},
	})
}

func (c *Client) send(env protocol.ClientEnvelope) error {
	select {
	case <-c.done:
		return fmt.Errorf("signaling connection closed")
	default:
	}
	select {
	case <-c.done:
		return fmt.Errorf("signaling connection closed")
	case c.outgoing <- env:
		return nil
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env protocol.ServerEnvelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
