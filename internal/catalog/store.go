package catalog

import (
	"github.com/manpreetbhatti/showroom/internal/coords"
	"github.com/samber/lo"
)

// Rendered size of a model; opaque to synchronization
type Scale struct {
	Width  float64 `json:"width" validate:"gt=0" toml:"width"`
	Height float64 `json:"height" validate:"gt=0" toml:"height"`
}

// A positioned item in a store scene. Only Position changes after creation.
type Model struct {
	ID       string          `json:"id" validate:"required" toml:"id"`
	URL      string          `json:"url" toml:"url"`
	Position coords.Position `json:"position" toml:"position"`
	Scale    Scale           `json:"scale" toml:"scale"`
}

// A store and its scene.
//
// ActiveUsers is filled from room membership when the record is served and
// is only a snapshot on the receiving side.
type Store struct {
	ID              string  `json:"id" validate:"required" toml:"id"`
	Name            string  `json:"name" validate:"required" toml:"name"`
	BackgroundImage string  `json:"backgroundImage,omitempty" toml:"background_image"`
	Models          []Model `json:"models" validate:"unique=ID,dive" toml:"models"`
	ActiveUsers     int     `json:"activeUsers" toml:"-"`
}

// Looks up a model by ID
func (s Store) Model(id string) (Model, bool) {
	return lo.Find(s.Models, func(m Model) bool { return m.ID == id })
}

// Returns a deep copy safe to mutate
func (s Store) Clone() Store {
	models := make([]Model, len(s.Models))
	copy(models, s.Models)
	s.Models = models
	return s
}
