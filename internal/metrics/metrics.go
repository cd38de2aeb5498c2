package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	joins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "showroom",
			Subsystem: "rooms",
			Name:      "joins_total",
			Help:      "Join attempts by outcome.",
		},
		[]string{"outcome"},
	)
	leaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "showroom",
			Subsystem: "rooms",
			Name:      "leaves_total",
			Help:      "Room exits by cause.",
		},
		[]string{"cause"},
	)
	relayedMoves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "showroom",
			Subsystem: "events",
			Name:      "moves_relayed_total",
			Help:      "Position changes relayed to peers.",
		},
	)
	droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "showroom",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Inbound events dropped before processing.",
		},
		[]string{"reason"},
	)
	activeRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "showroom",
			Subsystem: "rooms",
			Name:      "active",
			Help:      "Rooms with at least one member.",
		},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "showroom",
			Subsystem: "connections",
			Name:      "active",
			Help:      "Open websocket connections.",
		},
	)
	roomOccupants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "showroom",
			Subsystem: "rooms",
			Name:      "occupants",
			Help:      "Connections that are members of a room.",
		},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(joins, leaves, relayedMoves, droppedEvents,
			activeRooms, activeConnections, roomOccupants)
	})
}

func RecordJoin(accepted bool) {
	if accepted {
		joins.WithLabelValues("accepted").Inc()
		return
	}
	joins.WithLabelValues("room_full").Inc()
}

// cause is "leave" or "disconnect"
func RecordLeave(cause string) {
	leaves.WithLabelValues(cause).Inc()
}

func RecordRelayedMove() {
	relayedMoves.Inc()
}

// reason is "malformed", "rate_limited", "not_member" or "unknown_event"
func RecordDropped(reason string) {
	droppedEvents.WithLabelValues(reason).Inc()
}

func ConnectionOpened() {
	activeConnections.Inc()
}

func ConnectionClosed() {
	activeConnections.Dec()
}

// SetOccupancy records a point-in-time sample of room usage.
func SetOccupancy(rooms, occupants int) {
	activeRooms.Set(float64(rooms))
	roomOccupants.Set(float64(occupants))
}
