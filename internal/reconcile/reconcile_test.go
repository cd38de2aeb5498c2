package reconcile

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/manpreetbhatti/showroom/internal/mocks"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const storeID = "store_001"

var (
	shirtStart = coords.Position{X: 0.3, Y: 0.65}
	shoeStart  = coords.Position{X: 0.7, Y: 0.65}
)

func scene() *catalog.Store {
	return &catalog.Store{
		ID:   storeID,
		Name: "Outfit Studio",
		Models: []catalog.Model{
			{ID: "shirt_1", URL: "/models/shirt.glb", Position: shirtStart, Scale: catalog.Scale{Width: 300, Height: 300}},
			{ID: "shoe_1", URL: "/models/shoe.glb", Position: shoeStart, Scale: catalog.Scale{Width: 400, Height: 400}},
		},
	}
}

type fixture struct {
	r       *Reconciler
	catalog *mocks.MockCatalog
	emitter *mocks.MockEmitter
}

func newFixture(t *testing.T, onChange func(View)) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockCatalog(ctrl)
	em := mocks.NewMockEmitter(ctrl)
	logger := zerolog.Nop()

	cat.EXPECT().FetchStore(gomock.Any(), storeID).Return(scene(), nil)

	r := New(Config{
		StoreID:  storeID,
		Catalog:  cat,
		Emitter:  em,
		OnChange: onChange,
		Logger:   &logger,
	})
	require.NoError(t, r.Load(context.Background()))
	return &fixture{r: r, catalog: cat, emitter: em}
}

// Loads the scene and completes a join as the only member
func joinedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, protocol.RoomRequest{RoomID: storeID}).Return(nil)
	require.NoError(t, f.r.Join())
	f.r.OnJoined(1)
	require.NoError(t, f.r.Ready(context.Background()))
	return f
}

func position(t *testing.T, r *Reconciler, modelID string) coords.Position {
	t.Helper()
	m, ok := r.View().Model(modelID)
	require.True(t, ok, "model %s missing", modelID)
	return m.Position
}

func frame(t *testing.T, event protocol.Event, payload any) []byte {
	t.Helper()
	data, err := protocol.Encode(event, payload)
	require.NoError(t, err)
	return data
}

func TestMoveAppliesBeforePersistenceCompletes(t *testing.T) {
	f := joinedFixture(t)
	target := coords.Position{X: 0.3, Y: 0.7}
	release := make(chan struct{})

	f.emitter.EXPECT().Emit(protocol.MoveModel, protocol.MoveModelRequest{
		RoomID:   storeID,
		ModelID:  "shoe_1",
		Position: &target,
	}).Return(nil)
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shoe_1", target).
		DoAndReturn(func(context.Context, string, string, coords.Position) (*catalog.Model, error) {
			<-release
			return &catalog.Model{ID: "shoe_1", Position: target}, nil
		})

	require.NoError(t, f.r.Move("shoe_1", target))
	require.Equal(t, target, position(t, f.r, "shoe_1"))

	close(release)
	require.NoError(t, f.r.Close())
	require.Equal(t, target, position(t, f.r, "shoe_1"))
}

func TestMoveClampsBeforeEmitAndPersist(t *testing.T) {
	f := joinedFixture(t)
	clamped := coords.Position{X: 1, Y: 0}

	f.emitter.EXPECT().Emit(protocol.MoveModel, protocol.MoveModelRequest{
		RoomID:   storeID,
		ModelID:  "shirt_1",
		Position: &clamped,
	}).Return(nil)
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shirt_1", clamped).
		Return(&catalog.Model{ID: "shirt_1", Position: clamped}, nil)

	require.NoError(t, f.r.Move("shirt_1", coords.Position{X: 1.5, Y: -0.2}))
	require.NoError(t, f.r.Close())
	require.Equal(t, clamped, position(t, f.r, "shirt_1"))
}

func TestFailedPersistenceRollsBackToItsOwnPreImage(t *testing.T) {
	f := joinedFixture(t)
	first := coords.Position{X: 0.1, Y: 0.1}
	second := coords.Position{X: 0.2, Y: 0.2}
	release := make(chan struct{})

	f.emitter.EXPECT().Emit(protocol.MoveModel, gomock.Any()).Return(nil).Times(2)
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shoe_1", first).
		DoAndReturn(func(context.Context, string, string, coords.Position) (*catalog.Model, error) {
			<-release
			return nil, &catalog.Error{Op: "update position", Status: http.StatusServiceUnavailable}
		})
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shoe_1", second).
		Return(&catalog.Model{ID: "shoe_1", Position: second}, nil)

	require.NoError(t, f.r.Move("shoe_1", first))
	require.NoError(t, f.r.Move("shoe_1", second))
	require.Equal(t, second, position(t, f.r, "shoe_1"))

	// The first edit fails after the second was applied
	close(release)
	require.NoError(t, f.r.Close())
	require.Equal(t, shoeStart, position(t, f.r, "shoe_1"))
}

func TestFailedSecondMoveRevertsToFirst(t *testing.T) {
	f := joinedFixture(t)
	first := coords.Position{X: 0.1, Y: 0.1}
	second := coords.Position{X: 0.2, Y: 0.2}
	firstDone := make(chan struct{})

	f.emitter.EXPECT().Emit(protocol.MoveModel, gomock.Any()).Return(nil).Times(2)
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shoe_1", first).
		DoAndReturn(func(context.Context, string, string, coords.Position) (*catalog.Model, error) {
			defer close(firstDone)
			return &catalog.Model{ID: "shoe_1", Position: first}, nil
		})
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shoe_1", second).
		Return(nil, errors.New("network unreachable"))

	require.NoError(t, f.r.Move("shoe_1", first))
	<-firstDone
	require.NoError(t, f.r.Move("shoe_1", second))
	require.NoError(t, f.r.Close())

	require.Equal(t, first, position(t, f.r, "shoe_1"))
}

func TestRemoteUpdatesApplyInArrivalOrder(t *testing.T) {
	f := joinedFixture(t)

	require.NoError(t, f.r.HandleFrame(frame(t, protocol.ModelPositionUpdated, protocol.PositionUpdate{
		ModelID: "shirt_1", Position: &coords.Position{X: 0.2, Y: 0.4},
	})))
	require.Equal(t, coords.Position{X: 0.2, Y: 0.4}, position(t, f.r, "shirt_1"))

	require.NoError(t, f.r.HandleFrame(frame(t, protocol.ModelPositionUpdated, protocol.PositionUpdate{
		ModelID: "shirt_1", Position: &coords.Position{X: 1.4, Y: 0.9},
	})))
	require.Equal(t, coords.Position{X: 1, Y: 0.9}, position(t, f.r, "shirt_1"))

	// Unknown models are ignored
	f.r.ApplyRemote("hat_9", coords.Position{X: 0.5, Y: 0.5})
	require.Len(t, f.r.View().Models, 2)
}

func TestRemoteUpdateDeferredWhileDragging(t *testing.T) {
	f := joinedFixture(t)

	require.NoError(t, f.r.BeginDrag("shoe_1"))
	f.r.ApplyRemote("shoe_1", coords.Position{X: 0.1, Y: 0.1})
	f.r.ApplyRemote("shoe_1", coords.Position{X: 0.2, Y: 0.2})
	require.Equal(t, shoeStart, position(t, f.r, "shoe_1"))
	require.Equal(t, []string{"shoe_1"}, f.r.View().Dragging)

	// Other models are unaffected by the drag
	f.r.ApplyRemote("shirt_1", coords.Position{X: 0.4, Y: 0.4})
	require.Equal(t, coords.Position{X: 0.4, Y: 0.4}, position(t, f.r, "shirt_1"))

	f.r.CancelDrag("shoe_1")
	require.Equal(t, coords.Position{X: 0.2, Y: 0.2}, position(t, f.r, "shoe_1"))
	require.Empty(t, f.r.View().Dragging)
}

func TestLocalMoveSupersedesDeferredRemote(t *testing.T) {
	f := joinedFixture(t)
	local := coords.Position{X: 0.9, Y: 0.1}

	f.emitter.EXPECT().Emit(protocol.MoveModel, gomock.Any()).Return(nil)
	f.catalog.EXPECT().UpdateModelPosition(gomock.Any(), storeID, "shoe_1", local).
		Return(&catalog.Model{ID: "shoe_1", Position: local}, nil)

	require.NoError(t, f.r.BeginDrag("shoe_1"))
	f.r.ApplyRemote("shoe_1", coords.Position{X: 0.2, Y: 0.2})
	require.NoError(t, f.r.Move("shoe_1", local))
	require.NoError(t, f.r.Close())

	f.r.CancelDrag("shoe_1")
	require.Equal(t, local, position(t, f.r, "shoe_1"))
}

func TestRoomFullIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, gomock.Any()).Return(nil)

	require.NoError(t, f.r.Join())
	require.NoError(t, f.r.HandleFrame(frame(t, protocol.RoomFull, protocol.RoomFullPayload{RoomID: storeID})))

	require.ErrorIs(t, f.r.Ready(context.Background()), ErrAccessDenied)
	require.Equal(t, Denied, f.r.State())

	// No emit and no persistence: the mocks have no further expectations
	require.ErrorIs(t, f.r.Move("shoe_1", coords.Position{X: 0.1, Y: 0.1}), ErrAccessDenied)
	require.ErrorIs(t, f.r.BeginDrag("shoe_1"), ErrAccessDenied)
	require.ErrorIs(t, f.r.Join(), ErrAccessDenied)
	require.Equal(t, shoeStart, position(t, f.r, "shoe_1"))

	// A late joined frame does not lift the denial
	f.r.OnJoined(2)
	require.Equal(t, Denied, f.r.State())
}

func TestActiveUserCountDoesNotTouchScene(t *testing.T) {
	f := joinedFixture(t)
	before := f.r.View()

	require.NoError(t, f.r.HandleFrame(frame(t, protocol.ActiveUserCount, protocol.ActiveUserCountPayload{Count: 2})))

	after := f.r.View()
	require.Equal(t, 2, after.ActiveUsers)
	require.Equal(t, before.Models, after.Models)
	require.Equal(t, Joined, after.State)
}

func TestDisconnectKeepsSceneAndBlocksMoves(t *testing.T) {
	f := joinedFixture(t)
	f.r.ApplyRemote("shirt_1", coords.Position{X: 0.5, Y: 0.5})

	f.r.OnDisconnected()
	require.Equal(t, Disconnected, f.r.State())
	require.Equal(t, coords.Position{X: 0.5, Y: 0.5}, position(t, f.r, "shirt_1"))
	require.ErrorIs(t, f.r.Move("shirt_1", coords.Position{X: 0.1, Y: 0.1}), ErrNotJoined)

	// Rejoin after reconnecting
	f.emitter.EXPECT().Emit(protocol.JoinRoom, protocol.RoomRequest{RoomID: storeID}).Return(nil)
	require.NoError(t, f.r.Join())
	require.NoError(t, f.r.HandleFrame(frame(t, protocol.Joined, protocol.JoinedPayload{RoomID: storeID, Count: 2})))
	require.NoError(t, f.r.Ready(context.Background()))
	require.Equal(t, 2, f.r.View().ActiveUsers)
}

func TestReadyWaitsForOutcome(t *testing.T) {
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, gomock.Any()).Return(nil)
	require.NoError(t, f.r.Join())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.r.Ready(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.r.OnJoined(1)
	}()
	require.NoError(t, f.r.Ready(context.Background()))
}

func TestReadyBeforeJoinSeesOutcome(t *testing.T) {
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, gomock.Any()).Return(nil)

	// Given a caller already waiting for readiness
	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		result <- f.r.Ready(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	// When the join is sent and accepted
	require.NoError(t, f.r.Join())
	f.r.OnJoined(1)

	// Then the waiter is released with success
	require.NoError(t, <-result)
}

func TestLateJoinedAfterLeaveIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, gomock.Any()).Return(nil)
	f.emitter.EXPECT().Emit(protocol.LeaveRoom, protocol.RoomRequest{RoomID: storeID}).Return(nil)

	// Given a join that is abandoned before the server answers
	require.NoError(t, f.r.Join())
	require.NoError(t, f.r.Leave())

	// When the acknowledgement arrives late
	require.NoError(t, f.r.HandleFrame(frame(t, protocol.Joined, protocol.JoinedPayload{RoomID: storeID, Count: 1})))

	// Then the reconciler stays out of the room and refuses moves
	require.Equal(t, Idle, f.r.State())
	require.ErrorIs(t, f.r.Move("shoe_1", coords.Position{X: 0.2, Y: 0.2}), ErrNotJoined)
	require.Equal(t, shoeStart, position(t, f.r, "shoe_1"))
}

func TestLateJoinedAfterDisconnectIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, gomock.Any()).Return(nil)

	require.NoError(t, f.r.Join())
	f.r.OnDisconnected()
	f.r.OnJoined(1)

	require.Equal(t, Disconnected, f.r.State())
}

func TestJoinEmitFailureMarksDisconnected(t *testing.T) {
	f := newFixture(t, nil)
	f.emitter.EXPECT().Emit(protocol.JoinRoom, gomock.Any()).Return(errors.New("connection closed"))

	require.Error(t, f.r.Join())
	require.Equal(t, Disconnected, f.r.State())
	require.ErrorIs(t, f.r.Ready(context.Background()), ErrNotJoined)
}

func TestMoveRejectsUnknownModel(t *testing.T) {
	f := joinedFixture(t)
	require.ErrorIs(t, f.r.Move("hat_9", coords.Position{X: 0.5, Y: 0.5}), ErrUnknownModel)
}

func TestMalformedFramesAreRejected(t *testing.T) {
	f := joinedFixture(t)
	before := f.r.View()

	for _, raw := range []string{
		`not json`,
		`{"event":"model-position-updated","data":{"modelId":"shoe_1"}}`,
		`{"event":"model-position-updated"}`,
		`{"event":"teleport","data":{}}`,
	} {
		err := f.r.HandleFrame([]byte(raw))
		require.ErrorIs(t, err, protocol.ErrMalformed, raw)
	}
	require.Equal(t, before.Models, f.r.View().Models)
}

func TestLoadFailureWrapsCatalogError(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockCatalog(ctrl)
	cat.EXPECT().FetchStore(gomock.Any(), "store_404").
		Return(nil, &catalog.Error{Op: "fetch store", Status: http.StatusNotFound, Detail: "Store not found"})

	r := New(Config{StoreID: "store_404", Catalog: cat, Emitter: mocks.NewMockEmitter(ctrl)})
	err := r.Load(context.Background())

	var catErr *catalog.Error
	require.ErrorAs(t, err, &catErr)
	require.Equal(t, http.StatusNotFound, catErr.Status)
	require.True(t, catalog.IsNotFound(err))
}

func TestOnChangeReceivesOrderedSnapshots(t *testing.T) {
	var mu sync.Mutex
	var versions []uint64
	f := newFixture(t, func(v View) {
		mu.Lock()
		versions = append(versions, v.Version)
		mu.Unlock()
	})

	f.r.OnActiveCount(1)
	f.r.ApplyRemote("shoe_1", coords.Position{X: 0.4, Y: 0.4})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{1, 2, 3}, versions)
}
