package reporter

import (
	"sync"
	"time"

	"github.com/manpreetbhatti/showroom/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
	}
}

// Source exposes the live room occupancy
type Source interface {
	GetActiveRooms() map[string]int
	GetClientCount() int
}

// Snapshot is one occupancy sample.
type Snapshot struct {
	Rooms       int
	Occupants   int
	Connections int
	FullRooms   int
}

// Service periodically publishes room occupancy to the metrics gauges and the log.
type Service struct {
	source   Source
	capacity int
	config   Config
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func New(source Source, capacity int, config Config) *Service {
	return &Service{
		source:   source,
		capacity: capacity,
		config:   config,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Info().Dur("interval", s.config.Interval).Msg("occupancy reporter started")
}

func (s *Service) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	log.Info().Msg("occupancy reporter stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.ReportNow()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.ReportNow()
		}
	}
}

// ReportNow samples occupancy once and publishes it.
func (s *Service) ReportNow() Snapshot {
	rooms := s.source.GetActiveRooms()
	snap := Snapshot{
		Rooms:       len(rooms),
		Occupants:   lo.Sum(lo.Values(rooms)),
		Connections: s.source.GetClientCount(),
		FullRooms: lo.CountBy(lo.Values(rooms), func(n int) bool {
			return s.capacity > 0 && n >= s.capacity
		}),
	}

	metrics.SetOccupancy(snap.Rooms, snap.Occupants)

	if snap.Rooms > 0 || snap.Connections > 0 {
		log.Info().
			Int("rooms", snap.Rooms).
			Int("occupants", snap.Occupants).
			Int("connections", snap.Connections).
			Int("full_rooms", snap.FullRooms).
			Msg("occupancy")
	}
	return snap
}
