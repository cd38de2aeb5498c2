package coords

import "math"

// A normalized location: fractions of the viewport, origin top-left, y down
type Position struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
}

// A location in render space: origin at viewport center, y up
type World struct {
	X float64
	Y float64
}

// Center of the viewport in normalized space
var Center = Position{X: 0.5, Y: 0.5}

// Converts a render-space point to a clamped normalized position
func ToNormalized(worldX, worldY, viewportWidth, viewportHeight float64) Position {
	if degenerate(viewportWidth, viewportHeight) {
		return Center
	}
	return Clamp(Position{
		X: worldX/viewportWidth + 0.5,
		Y: 0.5 - worldY/viewportHeight,
	})
}

// Converts a normalized position to render space
func ToWorld(x, y, viewportWidth, viewportHeight float64) World {
	if degenerate(viewportWidth, viewportHeight) {
		return World{}
	}
	return World{
		X: (x - 0.5) * viewportWidth,
		Y: (0.5 - y) * viewportHeight,
	}
}

// Clamp forces both components into [0,1]. NaN maps to the center value.
func Clamp(p Position) Position {
	return Position{X: clampUnit(p.X), Y: clampUnit(p.Y)}
}

// InRange reports whether p needs no clamping.
func InRange(p Position) bool {
	return Clamp(p) == p
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func degenerate(w, h float64) bool {
	return w == 0 || h == 0 || math.IsNaN(w) || math.IsNaN(h)
}
