// Package reconcile keeps a client's local copy of a store scene consistent
// with peer edits and the catalog while local moves apply instantly.
package reconcile

//go:generate go run go.uber.org/mock/mockgen -source=reconcile.go -destination=../mocks/mock_reconcile.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var (
	// The room was full when this client asked to join. Terminal.
	ErrAccessDenied = errors.New("access denied: room is full")
	ErrNotJoined    = errors.New("not joined to the room")
	ErrUnknownModel = errors.New("unknown model")
	ErrNotLoaded    = errors.New("store not loaded")
	ErrClosed       = errors.New("reconciler closed")
)

// Catalog is the persistence side consumed by the reconciler.
type Catalog interface {
	FetchStore(ctx context.Context, id string) (*catalog.Store, error)
	UpdateModelPosition(ctx context.Context, storeID, modelID string, pos coords.Position) (*catalog.Model, error)
}

// Emitter sends one event to the server. It must not block on the network.
type Emitter interface {
	Emit(event protocol.Event, payload any) error
}

type State int

const (
	Idle State = iota
	Joining
	Joined
	Denied
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Denied:
		return "denied"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	StoreID string
	Catalog Catalog
	Emitter Emitter

	// Called after every state change with a fresh snapshot. Snapshots may
	// arrive out of order across goroutines; Version orders them.
	OnChange func(View)

	PersistTimeout time.Duration
	Logger         *zerolog.Logger
}

// View is an immutable snapshot of the local scene.
type View struct {
	Version     uint64
	StoreID     string
	State       State
	ActiveUsers int
	Models      []catalog.Model
	Dragging    []string
}

// Model returns the model with the given id from the snapshot
func (v View) Model(id string) (catalog.Model, bool) {
	return lo.Find(v.Models, func(m catalog.Model) bool { return m.ID == id })
}

type Reconciler struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex
	loaded      bool
	store       catalog.Store
	index       map[string]int
	state       State
	activeUsers int
	version     uint64
	dragging    map[string]bool
	deferred    map[string]coords.Position
	outcome     chan struct{}
	closed      bool

	inflight sync.WaitGroup
}

func New(cfg Config) *Reconciler {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Reconciler{
		cfg:      cfg,
		log:      logger.With().Str("component", "reconciler").Str("store", cfg.StoreID).Logger(),
		index:    make(map[string]int),
		dragging: make(map[string]bool),
		deferred: make(map[string]coords.Position),
		outcome:  make(chan struct{}),
	}
}

// Load fetches the store scene from the catalog and replaces the local copy.
func (r *Reconciler) Load(ctx context.Context) error {
	store, err := r.cfg.Catalog.FetchStore(ctx, r.cfg.StoreID)
	if err != nil {
		return fmt.Errorf("load store %s: %w", r.cfg.StoreID, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.store = store.Clone()
	r.index = make(map[string]int, len(r.store.Models))
	for i := range r.store.Models {
		r.store.Models[i].Position = coords.Clamp(r.store.Models[i].Position)
		r.index[r.store.Models[i].ID] = i
	}
	r.activeUsers = store.ActiveUsers
	r.loaded = true
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
	return nil
}

// Join asks the server for a seat in the store's room. Ready reports the outcome.
func (r *Reconciler) Join() error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case r.state == Denied:
		r.mu.Unlock()
		return ErrAccessDenied
	case r.state == Joined:
		r.mu.Unlock()
		return nil
	}
	r.state = Joining
	// Callers already waiting in Ready keep the pending channel
	select {
	case <-r.outcome:
		r.outcome = make(chan struct{})
	default:
	}
	view := r.changedLocked()
	r.mu.Unlock()
	r.notify(view)

	if err := r.cfg.Emitter.Emit(protocol.JoinRoom, protocol.RoomRequest{RoomID: r.cfg.StoreID}); err != nil {
		r.OnDisconnected()
		return fmt.Errorf("join %s: %w", r.cfg.StoreID, err)
	}
	return nil
}

// Ready blocks until the pending join is accepted or refused.
func (r *Reconciler) Ready(ctx context.Context) error {
	r.mu.Lock()
	outcome := r.outcome
	r.mu.Unlock()

	select {
	case <-outcome:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Joined:
		return nil
	case Denied:
		return ErrAccessDenied
	default:
		return ErrNotJoined
	}
}

// Leave gives up the seat. The scene stays loaded.
func (r *Reconciler) Leave() error {
	r.mu.Lock()
	if r.state != Joined && r.state != Joining {
		r.mu.Unlock()
		return nil
	}
	r.state = Idle
	r.resolveLocked()
	view := r.changedLocked()
	r.mu.Unlock()
	r.notify(view)

	return r.cfg.Emitter.Emit(protocol.LeaveRoom, protocol.RoomRequest{RoomID: r.cfg.StoreID})
}

// BeginDrag marks a model as being edited locally; remote updates for it are
// held back until the drag ends.
func (r *Reconciler) BeginDrag(modelID string) error {
	r.mu.Lock()
	if err := r.editableLocked(modelID); err != nil {
		r.mu.Unlock()
		return err
	}
	r.dragging[modelID] = true
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
	return nil
}

// CancelDrag ends a drag without a move and applies the latest held-back
// remote position, if any.
func (r *Reconciler) CancelDrag(modelID string) {
	r.mu.Lock()
	if !r.dragging[modelID] {
		r.mu.Unlock()
		return
	}
	delete(r.dragging, modelID)
	if pos, ok := r.deferred[modelID]; ok {
		delete(r.deferred, modelID)
		r.setLocked(modelID, pos)
	}
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
}

// Move commits a local edit. The new position is applied before returning and
// announced to the room, then persisted in the background. If persistence
// fails the model returns to the position it had just before this edit.
func (r *Reconciler) Move(modelID string, pos coords.Position) error {
	pos = coords.Clamp(pos)

	r.mu.Lock()
	if err := r.editableLocked(modelID); err != nil {
		r.mu.Unlock()
		return err
	}
	pre := r.store.Models[r.index[modelID]].Position
	r.setLocked(modelID, pos)
	delete(r.dragging, modelID)
	delete(r.deferred, modelID)
	view := r.changedLocked()
	r.inflight.Add(1)
	r.mu.Unlock()

	r.notify(view)

	err := r.cfg.Emitter.Emit(protocol.MoveModel, protocol.MoveModelRequest{
		RoomID:   r.cfg.StoreID,
		ModelID:  modelID,
		Position: &pos,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("model", modelID).Msg("move not broadcast")
	}

	go r.persist(modelID, pos, pre)
	return nil
}

func (r *Reconciler) persist(modelID string, pos, pre coords.Position) {
	defer r.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()

	if _, err := r.cfg.Catalog.UpdateModelPosition(ctx, r.cfg.StoreID, modelID, pos); err != nil {
		r.log.Warn().Err(err).Str("model", modelID).
			Float64("x", pre.X).Float64("y", pre.Y).
			Msg("persisting move failed, rolling back")
		r.rollback(modelID, pre)
	}
}

// Rollback is local only; peers keep whatever they last received.
func (r *Reconciler) rollback(modelID string, pre coords.Position) {
	r.mu.Lock()
	if _, ok := r.index[modelID]; !ok {
		r.mu.Unlock()
		return
	}
	r.setLocked(modelID, pre)
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
}

// HandleFrame applies one server frame. Malformed frames are returned as
// errors wrapping protocol.ErrMalformed and leave the scene untouched.
func (r *Reconciler) HandleFrame(frame []byte) error {
	env, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	switch env.Event {
	case protocol.Joined:
		p, err := protocol.Payload[protocol.JoinedPayload](env)
		if err != nil {
			return err
		}
		if p.RoomID != "" && p.RoomID != r.cfg.StoreID {
			return nil
		}
		r.OnJoined(p.Count)

	case protocol.RoomFull:
		p, err := protocol.Payload[protocol.RoomFullPayload](env)
		if err != nil {
			return err
		}
		if p.RoomID != "" && p.RoomID != r.cfg.StoreID {
			return nil
		}
		r.OnRoomFull()

	case protocol.ActiveUserCount:
		p, err := protocol.Payload[protocol.ActiveUserCountPayload](env)
		if err != nil {
			return err
		}
		r.OnActiveCount(p.Count)

	case protocol.ModelPositionUpdated:
		p, err := protocol.Payload[protocol.PositionUpdate](env)
		if err != nil {
			return err
		}
		r.ApplyRemote(p.ModelID, *p.Position)

	default:
		return fmt.Errorf("%w: unexpected event %s", protocol.ErrMalformed, env.Event)
	}
	return nil
}

// ApplyRemote applies a peer's move in arrival order, or holds it back while
// the model is being dragged here.
func (r *Reconciler) ApplyRemote(modelID string, pos coords.Position) {
	pos = coords.Clamp(pos)

	r.mu.Lock()
	if _, ok := r.index[modelID]; !ok {
		r.mu.Unlock()
		r.log.Debug().Str("model", modelID).Msg("update for unknown model ignored")
		return
	}
	if r.dragging[modelID] {
		r.deferred[modelID] = pos
		r.mu.Unlock()
		return
	}
	r.setLocked(modelID, pos)
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
}

// OnJoined completes a pending join. A late acknowledgement for a join that
// was since abandoned by Leave or transport loss is ignored.
func (r *Reconciler) OnJoined(count int) {
	r.mu.Lock()
	if r.state != Joining {
		r.mu.Unlock()
		return
	}
	r.state = Joined
	r.activeUsers = count
	r.resolveLocked()
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
}

func (r *Reconciler) OnRoomFull() {
	r.mu.Lock()
	r.state = Denied
	r.dragging = make(map[string]bool)
	r.deferred = make(map[string]coords.Position)
	r.resolveLocked()
	view := r.changedLocked()
	r.mu.Unlock()

	r.log.Info().Msg("room is full, access denied")
	r.notify(view)
}

// OnActiveCount updates the displayed occupancy and nothing else.
func (r *Reconciler) OnActiveCount(count int) {
	r.mu.Lock()
	r.activeUsers = count
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
}

// OnDisconnected records transport loss. The scene is kept; Join again after
// reconnecting.
func (r *Reconciler) OnDisconnected() {
	r.mu.Lock()
	if r.state == Denied || r.state == Disconnected {
		r.mu.Unlock()
		return
	}
	r.state = Disconnected
	r.resolveLocked()
	view := r.changedLocked()
	r.mu.Unlock()

	r.notify(view)
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Close waits for in-flight persistence and rollbacks to finish.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.inflight.Wait()
	return nil
}

func (r *Reconciler) editableLocked(modelID string) error {
	switch {
	case r.closed:
		return ErrClosed
	case r.state == Denied:
		return ErrAccessDenied
	case r.state != Joined:
		return ErrNotJoined
	case !r.loaded:
		return ErrNotLoaded
	}
	if _, ok := r.index[modelID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return nil
}

func (r *Reconciler) setLocked(modelID string, pos coords.Position) {
	r.store.Models[r.index[modelID]].Position = pos
}

// Wakes Ready callers waiting on the current join attempt
func (r *Reconciler) resolveLocked() {
	select {
	case <-r.outcome:
	default:
		close(r.outcome)
	}
}

func (r *Reconciler) changedLocked() View {
	r.version++
	return r.viewLocked()
}

func (r *Reconciler) viewLocked() View {
	models := make([]catalog.Model, len(r.store.Models))
	copy(models, r.store.Models)

	return View{
		Version:     r.version,
		StoreID:     r.cfg.StoreID,
		State:       r.state,
		ActiveUsers: r.activeUsers,
		Models:      models,
		Dragging:    lo.Keys(r.dragging),
	}
}

func (r *Reconciler) notify(v View) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(v)
	}
}
