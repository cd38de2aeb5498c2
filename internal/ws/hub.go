package ws

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/manpreetbhatti/showroom/internal/metrics"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/manpreetbhatti/showroom/internal/room"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// Number of dispatch loops; rooms are pinned to one by hash
	Shards int
	// Allowed websocket origins; empty or "*" allows all
	AllowedOrigins []string
	Logger         *zerolog.Logger
}

// Hub relays room events to connected clients. Every event for a room is
// handled by the one shard that owns the room, which gives each room a total
// order while different rooms proceed in parallel.
type Hub struct {
	registry *room.Registry
	shards   []*shard
	origins  map[string]bool
	log      zerolog.Logger

	// Connected clients by connection ID
	clients map[string]*Client
	mu      sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opMove
	opDisconnect
	opAnnounce
)

type op struct {
	kind   opKind
	roomID string
	client *Client
	move   protocol.PositionUpdate
	done   chan struct{}
}

type shard struct {
	ops chan op
}

func NewHub(registry *room.Registry, opts Options) *Hub {
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	h := &Hub{
		registry: registry,
		shards:   make([]*shard, opts.Shards),
		origins:  make(map[string]bool),
		log:      logger.With().Str("component", "hub").Logger(),
		clients:  make(map[string]*Client),
		done:     make(chan struct{}),
	}
	for i := range h.shards {
		h.shards[i] = &shard{ops: make(chan op, 256)}
	}
	for _, o := range opts.AllowedOrigins {
		h.origins[o] = true
	}
	return h
}

// Run processes room events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range h.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			h.runShard(ctx, s)
		}(s)
	}

	<-ctx.Done()
	h.stopOnce.Do(func() { close(h.done) })
	wg.Wait()
	h.log.Info().Msg("hub stopped")
}

func (h *Hub) runShard(ctx context.Context, s *shard) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.ops:
			h.process(o)
			if o.done != nil {
				close(o.done)
			}
		}
	}
}

func (h *Hub) shardFor(roomID string) *shard {
	f := fnv.New32a()
	f.Write([]byte(roomID))
	return h.shards[f.Sum32()%uint32(len(h.shards))]
}

// Hands an op to the owning shard and waits until it has been applied.
// Returns false if the hub stopped first.
func (h *Hub) dispatch(o op) bool {
	o.done = make(chan struct{})
	select {
	case h.shardFor(o.roomID).ops <- o:
	case <-h.done:
		return false
	}
	select {
	case <-o.done:
		return true
	case <-h.done:
		return false
	}
}

// Register makes a client addressable for fan-out
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.ConnectionOpened()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if ok {
		metrics.ConnectionClosed()
	}
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Join moves c into roomID, leaving its current room first.
func (h *Hub) Join(c *Client, roomID string) bool {
	if current, ok := h.registry.RoomOf(c.id); ok && current != roomID {
		if !h.Leave(c, current) {
			return false
		}
	}
	return h.dispatch(op{kind: opJoin, roomID: roomID, client: c})
}

func (h *Hub) Leave(c *Client, roomID string) bool {
	return h.dispatch(op{kind: opLeave, roomID: roomID, client: c})
}

// Move relays a position change to the other members of roomID.
func (h *Hub) Move(c *Client, roomID string, update protocol.PositionUpdate) bool {
	return h.dispatch(op{kind: opMove, roomID: roomID, client: c, move: update})
}

// Disconnect is called once when a client's transport goes away.
func (h *Hub) Disconnect(c *Client) bool {
	roomID, _ := h.registry.RoomOf(c.id)
	return h.dispatch(op{kind: opDisconnect, roomID: roomID, client: c})
}

func (h *Hub) process(o op) {
	switch o.kind {
	case opJoin:
		h.handleJoin(o.client, o.roomID)
	case opLeave:
		h.handleLeave(o.client, o.roomID)
	case opMove:
		h.handleMove(o.client, o.roomID, o.move)
	case opDisconnect:
		h.handleDisconnect(o.client)
	case opAnnounce:
		h.broadcastCount(o.roomID, h.registry.ActiveCount(o.roomID))
	}
}

func (h *Hub) handleJoin(c *Client, roomID string) {
	res := h.registry.Join(roomID, c.id)
	metrics.RecordJoin(res.Accepted)

	if res.Previous != "" {
		// Another shard owns the previous room
		go h.dispatch(op{kind: opAnnounce, roomID: res.Previous})
	}

	if !res.Accepted {
		h.log.Info().Str("room", roomID).Str("client", c.id).Msg("join rejected: room full")
		h.deliver(c, protocol.MustEncode(protocol.RoomFull, protocol.RoomFullPayload{RoomID: roomID}))
		return
	}

	h.log.Info().Str("room", roomID).Str("client", c.id).Int("count", res.Count).Msg("client joined room")
	h.deliver(c, protocol.MustEncode(protocol.Joined, protocol.JoinedPayload{RoomID: roomID, Count: res.Count}))
	h.broadcastCount(roomID, res.Count)
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	count, changed := h.registry.Leave(roomID, c.id)
	if !changed {
		return
	}
	metrics.RecordLeave("leave")
	h.log.Info().Str("room", roomID).Str("client", c.id).Int("remaining", count).Msg("client left room")
	h.broadcastCount(roomID, count)
}

func (h *Hub) handleMove(c *Client, roomID string, update protocol.PositionUpdate) {
	if !h.registry.IsMember(roomID, c.id) {
		metrics.RecordDropped("not_member")
		h.log.Warn().Str("room", roomID).Str("client", c.id).Msg("move from non-member dropped")
		return
	}
	if update.Position == nil {
		metrics.RecordDropped("malformed")
		return
	}

	pos := coords.Clamp(*update.Position)
	frame := protocol.MustEncode(protocol.ModelPositionUpdated, protocol.PositionUpdate{
		ModelID:  update.ModelID,
		Position: &pos,
	})

	for _, id := range h.registry.Members(roomID) {
		if id == c.id {
			continue
		}
		if peer, ok := h.client(id); ok {
			h.deliver(peer, frame)
		}
	}
	metrics.RecordRelayedMove()
}

func (h *Hub) handleDisconnect(c *Client) {
	h.unregister(c)
	c.shutdown()

	roomID, count, changed := h.registry.Disconnect(c.id)
	if !changed {
		return
	}
	metrics.RecordLeave("disconnect")
	h.log.Info().Str("room", roomID).Str("client", c.id).Int("remaining", count).Msg("client disconnected")
	h.broadcastCount(roomID, count)
}

func (h *Hub) broadcastCount(roomID string, count int) {
	if count == 0 {
		return
	}
	frame := protocol.MustEncode(protocol.ActiveUserCount, protocol.ActiveUserCountPayload{Count: count})
	for _, id := range h.registry.Members(roomID) {
		if c, ok := h.client(id); ok {
			h.deliver(c, frame)
		}
	}
}

// A client that cannot keep up is shut down; its read loop then reports the
// disconnect like any other transport loss.
func (h *Hub) deliver(c *Client, frame []byte) {
	if c.enqueue(frame) {
		return
	}
	h.log.Warn().Str("client", c.id).Msg("send buffer full, closing connection")
	c.shutdown()
}

// Stats

func (h *Hub) GetRoomCount() int {
	return h.registry.RoomCount()
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Returns member counts by room ID
func (h *Hub) GetActiveRooms() map[string]int {
	return h.registry.Snapshot()
}

func (h *Hub) ActiveCount(roomID string) int {
	return h.registry.ActiveCount(roomID)
}
