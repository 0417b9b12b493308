// Package route turns externally supplied route shapes into the single
// ordered coordinate sequence the tracker snaps against.
package route

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"route-tracker/internal/geo"
)

// Canonical is the normalized route: one ordered run of points. It is never
// modified after Normalize returns it and may be shared between goroutines.
type Canonical struct {
	points orb.LineString
	cum    []float64 // cumulative haversine meters, cum[0] == 0
}

var (
	ErrUnsupportedGeometry = errors.New("unsupported route geometry")
	ErrEmptyRoute          = errors.New("route geometry has no coordinates")
)

// Normalize flattens g into a Canonical route. Callers treat either error
// as "no route", not as a failure.
func Normalize(g Geometry) (*Canonical, error) {
	var pts orb.LineString
	switch g.Kind() {
	case SinglePath:
		pts = make(orb.LineString, len(g.single))
		copy(pts, g.single)
	case MultiPath:
		n := 0
		for _, ls := range g.multi {
			n += len(ls)
		}
		pts = make(orb.LineString, 0, n)
		for _, ls := range g.multi {
			pts = append(pts, ls...)
		}
	case Unsupported:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedGeometry, g.TypeName())
	}
	if len(pts) == 0 {
		return nil, ErrEmptyRoute
	}
	return newCanonical(pts), nil
}

func newCanonical(pts orb.LineString) *Canonical {
	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		cum[i] = cum[i-1] + geo.Haversine(pts[i-1], pts[i])
	}
	return &Canonical{points: pts, cum: cum}
}

func (c *Canonical) Len() int { return len(c.points) }

// Usable reports whether the route has at least one segment.
func (c *Canonical) Usable() bool { return c != nil && len(c.points) >= 2 }

// At returns the i-th point.
func (c *Canonical) At(i int) orb.Point { return c.points[i] }

func (c *Canonical) Start() orb.Point { return c.points[0] }
func (c *Canonical) End() orb.Point   { return c.points[len(c.points)-1] }

// Points returns a copy of the coordinates.
func (c *Canonical) Points() []orb.Point {
	out := make([]orb.Point, len(c.points))
	copy(out, c.points)
	return out
}

// LineString returns a copy suitable for rendering.
func (c *Canonical) LineString() orb.LineString {
	out := make(orb.LineString, len(c.points))
	copy(out, c.points)
	return out
}

// Length is the route length in meters.
func (c *Canonical) Length() float64 { return c.cum[len(c.cum)-1] }

// DistanceAt returns the meters travelled from the start to the i-th point.
func (c *Canonical) DistanceAt(i int) float64 { return c.cum[i] }
