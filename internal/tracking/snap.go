// Package tracking follows one device along a route: it snaps raw fixes to
// the route, flags deviations, keeps the travelled trail and pushes the
// result to the map surfaces.
package tracking

import (
	"math"

	"github.com/paulmach/orb"

	"route-tracker/internal/geo"
	"route-tracker/internal/route"
)

// SnapResult is a raw fix projected onto the route.
type SnapResult struct {
	Raw         orb.Point
	Point       orb.Point
	Distance    float64 // meters between Raw and Point
	HasDistance bool    // false when there was no route to snap to
	Segment     int     // index of the segment's first point
	Along       float64 // meters from the route start to Point
}

// Snap returns the point of r closest to raw. Every segment is tried and
// the global minimum wins; on equal distances the earlier segment is kept.
func Snap(r *route.Canonical, raw orb.Point) SnapResult {
	res := SnapResult{Raw: raw, Point: raw}
	if r == nil || r.Len() == 0 {
		return res
	}
	if r.Len() == 1 {
		res.Point = r.At(0)
		res.Distance = geo.Haversine(raw, res.Point)
		res.HasDistance = true
		return res
	}

	best := math.MaxFloat64
	for i := 0; i+1 < r.Len(); i++ {
		a, b := r.At(i), r.At(i+1)
		foot, t := geo.ProjectOnSegment(a, b, raw)
		d := geo.Haversine(raw, foot)
		if d < best {
			best = d
			res.Point = foot
			res.Segment = i
			res.Along = r.DistanceAt(i) + t*(r.DistanceAt(i+1)-r.DistanceAt(i))
		}
	}
	res.Distance = best
	res.HasDistance = true
	return res
}

// Progress is Along as a fraction of the route length.
func (s SnapResult) Progress(r *route.Canonical) float64 {
	if !s.HasDistance || !r.Usable() || r.Length() == 0 {
		return 0
	}
	return geo.Clamp01(s.Along / r.Length())
}
