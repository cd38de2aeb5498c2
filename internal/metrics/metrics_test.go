package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordJoin(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(joins.WithLabelValues("room_full"))
	RecordJoin(false)
	after := testutil.ToFloat64(joins.WithLabelValues("room_full"))
	if after != before+1 {
		t.Fatalf("room_full joins: got %v, want %v", after, before+1)
	}
}

func TestSetOccupancy(t *testing.T) {
	SetOccupancy(3, 5)
	if got := testutil.ToFloat64(activeRooms); got != 3 {
		t.Fatalf("active rooms: got %v", got)
	}
	if got := testutil.ToFloat64(roomOccupants); got != 5 {
		t.Fatalf("occupants: got %v", got)
	}
}
