package ws

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/showroom/internal/metrics"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/manpreetbhatti/showroom/internal/ratelimit"
	"github.com/rs/zerolog"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024
	sendBuffer        = 256
	messagesPerSecond = 50
	messageBurst      = 100
	maxStrikes        = 1000
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	id      string
	send    chan []byte
	limiter *ratelimit.Limiter
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		hub:     hub,
		conn:    conn,
		id:      id,
		send:    make(chan []byte, sendBuffer),
		limiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
		log:     hub.log.With().Str("client", id).Logger(),
	}
}

// ID is the connection identity used for room membership.
func (c *Client) ID() string {
	return c.id
}

// Queues a frame without blocking. False means the buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 || h.origins["*"] {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || h.origins[origin]
}

// ServeWs upgrades the request and attaches the connection to the hub. An
// optional ?room= query parameter joins that room straight away.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     hub.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	client := newClient(hub, conn)
	hub.Register(client)
	client.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	go client.writePump()

	if roomID := r.URL.Query().Get("room"); roomID != "" {
		hub.Join(client, roomID)
	}

	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
		c.log.Info().Msg("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	strikes := ratelimit.NewStrikes(maxStrikes)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.RecordDropped("rate_limited")
			if strikes.Count()%100 == 0 {
				c.log.Warn().Int("strikes", strikes.Count()+1).Msg("rate limit exceeded")
			}
			if strikes.Record() {
				c.log.Warn().Msg("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		if err := c.handleFrame(message); err != nil {
			metrics.RecordDropped(dropReason(err))
			c.log.Warn().Err(err).Msg("invalid event dropped")
		}
	}
}

var errUnknownEvent = errors.New("unknown event")

func dropReason(err error) string {
	if errors.Is(err, errUnknownEvent) {
		return "unknown_event"
	}
	return "malformed"
}

func (c *Client) handleFrame(frame []byte) error {
	env, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	switch env.Event {
	case protocol.JoinRoom:
		req, err := protocol.Payload[protocol.RoomRequest](env)
		if err != nil {
			return err
		}
		c.hub.Join(c, req.RoomID)

	case protocol.LeaveRoom:
		req, err := protocol.Payload[protocol.RoomRequest](env)
		if err != nil {
			return err
		}
		c.hub.Leave(c, req.RoomID)

	case protocol.MoveModel:
		req, err := protocol.Payload[protocol.MoveModelRequest](env)
		if err != nil {
			return err
		}
		c.hub.Move(c, req.RoomID, protocol.PositionUpdate{
			ModelID:  req.ModelID,
			Position: req.Position,
		})

	default:
		return fmt.Errorf("%w: %s", errUnknownEvent, env.Event)
	}
	return nil
}

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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
