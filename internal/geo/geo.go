// Package geo holds the spherical helpers shared by route snapping and
// marker interpolation. Points are orb.Point values, [lon, lat] in degrees.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used for every distance here.
const EarthRadiusMeters = 6371000.0

func toRad(d float64) float64 { return d * math.Pi / 180 }

// Haversine distance in meters
func Haversine(a, b orb.Point) float64 {
	dLat := toRad(b.Lat() - a.Lat())
	dLon := toRad(b.Lon() - a.Lon())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat()))*math.Cos(toRad(b.Lat()))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees, [0, 360).
func Bearing(a, b orb.Point) float64 {
	y := math.Sin(toRad(b.Lon()-a.Lon())) * math.Cos(toRad(b.Lat()))
	x := math.Cos(toRad(a.Lat()))*math.Sin(toRad(b.Lat())) - math.Sin(toRad(a.Lat()))*math.Cos(toRad(b.Lat()))*math.Cos(toRad(b.Lon()-a.Lon()))
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Lerp interpolates longitude and latitude independently.
func Lerp(from, to orb.Point, progress float64) orb.Point {
	progress = Clamp01(progress)
	return orb.Point{
		from[0] + (to[0]-from[0])*progress,
		from[1] + (to[1]-from[1])*progress,
	}
}

// ProjectOnSegment returns the point of segment ab closest to p and the
// fraction t along ab where it lies. The projection is done in an
// equirectangular frame centred on p, which is accurate for the short
// segments of a bus route. t is clamped to [0, 1] so the foot never leaves
// the segment.
func ProjectOnSegment(a, b, p orb.Point) (orb.Point, float64) {
	cosLat0 := math.Cos(toRad(p.Lat()))
	toXY := func(q orb.Point) (x, y float64) {
		y = toRad(q.Lat()-p.Lat()) * EarthRadiusMeters
		x = toRad(q.Lon()-p.Lon()) * EarthRadiusMeters * cosLat0
		return
	}
	x0, y0 := toXY(a)
	x1, y1 := toXY(b)
	dx := x1 - x0
	dy := y1 - y0
	segLen2 := dx*dx + dy*dy
	t := 0.0
	if segLen2 > 0 {
		// projection of the origin (p) onto the segment
		t = Clamp01(-(x0*dx + y0*dy) / segLen2)
	}
	return Lerp(a, b, t), t
}
