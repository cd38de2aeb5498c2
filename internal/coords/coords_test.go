package coords

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	viewports := [][2]float64{{800, 600}, {1, 1}, {1920, 1080}, {333.3, 71}}
	points := []Position{
		{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0.5, Y: 0.5},
		{X: 0.3, Y: 0.7}, {X: 0.999, Y: 0.001}, {X: 0.25, Y: 0.8},
	}

	for _, vp := range viewports {
		for _, p := range points {
			w := ToWorld(p.X, p.Y, vp[0], vp[1])
			back := ToNormalized(w.X, w.Y, vp[0], vp[1])
			require.InDelta(t, p.X, back.X, 1e-9, "x for %v in %v", p, vp)
			require.InDelta(t, p.Y, back.Y, 1e-9, "y for %v in %v", p, vp)
		}
	}
}

func TestToWorldCenterAndAxes(t *testing.T) {
	require.Equal(t, World{X: 0, Y: 0}, ToWorld(0.5, 0.5, 800, 600))

	// top-left in normalized space is (-w/2, +h/2) in render space
	require.Equal(t, World{X: -400, Y: 300}, ToWorld(0, 0, 800, 600))
	require.Equal(t, World{X: 400, Y: -300}, ToWorld(1, 1, 800, 600))
}

func TestToNormalizedClamps(t *testing.T) {
	p := ToNormalized(10_000, -10_000, 800, 600)
	require.Equal(t, Position{X: 1, Y: 1}, p)

	p = ToNormalized(-10_000, 10_000, 800, 600)
	require.Equal(t, Position{X: 0, Y: 0}, p)
}

func TestDegenerateViewport(t *testing.T) {
	require.Equal(t, Center, ToNormalized(12, 34, 0, 600))
	require.Equal(t, Center, ToNormalized(12, 34, 800, 0))
	require.Equal(t, Center, ToNormalized(0, 0, 0, 0))
	require.Equal(t, World{}, ToWorld(0.2, 0.2, 0, 0))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Position
		want Position
	}{
		{"inside", Position{X: 0.3, Y: 0.7}, Position{X: 0.3, Y: 0.7}},
		{"negative", Position{X: -0.1, Y: -3}, Position{X: 0, Y: 0}},
		{"over", Position{X: 1.2, Y: 7}, Position{X: 1, Y: 1}},
		{"nan", Position{X: math.NaN(), Y: 0.1}, Position{X: 0.5, Y: 0.1}},
		{"inf", Position{X: math.Inf(1), Y: math.Inf(-1)}, Position{X: 1, Y: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Clamp(tt.in))
		})
	}
}

func TestInRange(t *testing.T) {
	require.True(t, InRange(Position{X: 0, Y: 1}))
	require.False(t, InRange(Position{X: 1.01, Y: 0.5}))
}
