// Package wsclient is the client end of the room transport.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Handler receives inbound frames in arrival order and is told once when the
// connection is gone.
type Handler interface {
	HandleFrame(frame []byte) error
	OnDisconnected()
}

type Conn struct {
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	started bool
}

// URL turns the server's HTTP base address into its websocket endpoint.
func URL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Dial opens the websocket. Inbound frames are not read until Serve is called.
func Dial(ctx context.Context, endpoint string, header http.Header) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &Conn{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		log:  log.With().Str("component", "wsclient").Str("endpoint", endpoint).Logger(),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c, nil
}

// Serve starts delivering inbound frames to h.
func (c *Conn) Serve(h Handler) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.readLoop(h)
}

// Emit queues one event for sending without waiting on the network.
func (c *Conn) Emit(event protocol.Event, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Conn) JoinRoom(roomID string) error {
	return c.Emit(protocol.JoinRoom, protocol.RoomRequest{RoomID: roomID})
}

func (c *Conn) LeaveRoom(roomID string) error {
	return c.Emit(protocol.LeaveRoom, protocol.RoomRequest{RoomID: roomID})
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame after pending events and shuts the connection.
func (c *Conn) Close() error {
	c.shutdown()
	select {
	case <-c.done:
	case <-time.After(writeWait):
		c.conn.Close()
	}
	return nil
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) readLoop(h Handler) {
	defer func() {
		c.shutdown()
		c.conn.Close()
		h.OnDisconnected()
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("connection lost")
			}
			return
		}
		if err := h.HandleFrame(frame); err != nil {
			c.log.Warn().Err(err).Msg("frame dropped")
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()

	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Warn().Err(err).Msg("write failed")
			c.shutdown()
			for range c.send {
			}
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
