package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/manpreetbhatti/showroom/internal/catalog"
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/manpreetbhatti/showroom/internal/protocol"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	frames       int
	disconnected bool
}

func (h *recordingHandler) HandleFrame([]byte) error { h.frames++; return nil }
func (h *recordingHandler) OnDisconnected()          { h.disconnected = true }

func TestRenderStores(t *testing.T) {
	var buf bytes.Buffer
	renderStores(&buf, []catalog.Store{
		{ID: "store_001", Name: "Outfit Studio", Models: make([]catalog.Model, 3), ActiveUsers: 2},
		{ID: "store_002", Name: "Shoe Corner", Models: make([]catalog.Model, 2)},
	})

	out := buf.String()
	require.Contains(t, out, "ACTIVE USERS")
	require.Contains(t, out, "store_001")
	require.Contains(t, out, "Shoe Corner")
}

func TestRenderStore(t *testing.T) {
	var buf bytes.Buffer
	renderStore(&buf, catalog.Store{
		ID:   "store_001",
		Name: "Outfit Studio",
		Models: []catalog.Model{
			{ID: "shoe_1", URL: "/models/shoe.glb", Position: coords.Position{X: 0.7, Y: 0.65}, Scale: catalog.Scale{Width: 400, Height: 400}},
		},
	})

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "store_001  Outfit Studio  (0 active)"))
	require.Contains(t, out, "0.700")
	require.Contains(t, out, "/models/shoe.glb")
}

func TestEventPrinterDescribes(t *testing.T) {
	p := newEventPrinter(&bytes.Buffer{}, false)

	cases := map[string][]byte{
		"joined store_001 with 2 in the room": protocol.MustEncode(protocol.Joined, protocol.JoinedPayload{RoomID: "store_001", Count: 2}),
		"room full store_001":                 protocol.MustEncode(protocol.RoomFull, protocol.RoomFullPayload{RoomID: "store_001"}),
		"occupancy 1":                         protocol.MustEncode(protocol.ActiveUserCount, protocol.ActiveUserCountPayload{Count: 1}),
		"move shoe_1 -> (0.300, 0.700)": protocol.MustEncode(protocol.ModelPositionUpdated, protocol.PositionUpdate{
			ModelID: "shoe_1", Position: &coords.Position{X: 0.3, Y: 0.7},
		}),
	}
	for want, frame := range cases {
		require.Equal(t, want, p.describe(frame))
	}

	require.True(t, strings.HasPrefix(p.describe([]byte("nope")), "malformed frame"))
}

func TestPrintingHandlerForwards(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, false)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	next := &recordingHandler{}
	h := p.wrap(next)

	require.NoError(t, h.HandleFrame(protocol.MustEncode(protocol.ActiveUserCount, protocol.ActiveUserCountPayload{Count: 2})))
	h.OnDisconnected()

	require.Equal(t, 1, next.frames)
	require.True(t, next.disconnected)
	require.Equal(t, "03:04:05.000 occupancy 2\n03:04:05.000 disconnected\n", buf.String())
}
