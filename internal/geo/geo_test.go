package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	// one degree of latitude
	d := Haversine(orb.Point{0, 0}, orb.Point{0, 1})
	assert.InDelta(t, 111195, d, 1)

	assert.Zero(t, Haversine(orb.Point{28.04, -26.2}, orb.Point{28.04, -26.2}))
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		to   orb.Point
		want float64
	}{
		{"north", orb.Point{0, 1}, 0},
		{"east", orb.Point{1, 0}, 90},
		{"south", orb.Point{0, -1}, 180},
		{"west", orb.Point{-1, 0}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bearing(orb.Point{0, 0}, tt.to), 1e-9)
		})
	}
}

func TestLerp(t *testing.T) {
	from, to := orb.Point{0, 0}, orb.Point{10, 10}
	assert.Equal(t, from, Lerp(from, to, 0))
	assert.Equal(t, to, Lerp(from, to, 1))
	mid := Lerp(from, to, 0.5)
	assert.InDelta(t, 5, mid[0], 1e-12)
	assert.InDelta(t, 5, mid[1], 1e-12)

	// progress outside [0,1] is clamped
	assert.Equal(t, from, Lerp(from, to, -3))
	assert.Equal(t, to, Lerp(from, to, 7))
}

func TestProjectOnSegment(t *testing.T) {
	a, b := orb.Point{0, 0}, orb.Point{0, 1}

	foot, frac := ProjectOnSegment(a, b, orb.Point{0.0005, 0.5})
	assert.InDelta(t, 0, foot[0], 1e-9)
	assert.InDelta(t, 0.5, foot[1], 1e-6)
	assert.InDelta(t, 0.5, frac, 1e-6)

	foot, frac = ProjectOnSegment(a, b, orb.Point{0.001, -0.5})
	assert.Equal(t, a, foot)
	assert.Zero(t, frac)

	foot, frac = ProjectOnSegment(a, b, orb.Point{-0.001, 3})
	assert.Equal(t, b, foot)
	assert.Equal(t, 1.0, frac)
}

func TestProjectOnDegenerateSegment(t *testing.T) {
	p := orb.Point{1, 1}
	foot, frac := ProjectOnSegment(p, p, orb.Point{2, 2})
	assert.Equal(t, p, foot)
	assert.Zero(t, frac)
	assert.False(t, math.IsNaN(foot[0]))
}
