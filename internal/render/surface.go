// Package render describes the map surfaces the tracker draws on. The
// tracker pushes geometry into them; drawing is done by whoever listens.
package render

import (
	"time"

	"github.com/paulmach/orb"
)

// Camera is a pan/zoom request.
type Camera struct {
	Center   orb.Point     `json:"center"`
	Zoom     float64       `json:"zoom"`
	Duration time.Duration `json:"-"`
	EaseMS   int64         `json:"duration_ms"`
}

// NewCamera fills EaseMS from d.
func NewCamera(center orb.Point, zoom float64, d time.Duration) Camera {
	return Camera{Center: center, Zoom: zoom, Duration: d, EaseMS: d.Milliseconds()}
}

// Surface receives the user-tracking layers of one session.
type Surface interface {
	ShowRoute(route orb.LineString)
	ShowPosition(p orb.Point)
	ShowTrail(trail orb.LineString)
	EaseTo(cam Camera)
}

// MarkerSurface receives per-frame positions of tracked entities.
type MarkerSurface interface {
	MoveMarker(id string, p orb.Point)
	RemoveMarker(id string)
}

// Fanout forwards every call to each member. Members that are nil are
// skipped, so a missing surface is a no-op rather than a failure.
type Fanout []any

func (f Fanout) ShowRoute(route orb.LineString) {
	for _, s := range f.surfaces() {
		s.ShowRoute(route)
	}
}

func (f Fanout) ShowPosition(p orb.Point) {
	for _, s := range f.surfaces() {
		s.ShowPosition(p)
	}
}

func (f Fanout) ShowTrail(trail orb.LineString) {
	for _, s := range f.surfaces() {
		s.ShowTrail(trail)
	}
}

func (f Fanout) EaseTo(cam Camera) {
	for _, s := range f.surfaces() {
		s.EaseTo(cam)
	}
}

func (f Fanout) MoveMarker(id string, p orb.Point) {
	for _, s := range f.markers() {
		s.MoveMarker(id, p)
	}
}

func (f Fanout) RemoveMarker(id string) {
	for _, s := range f.markers() {
		s.RemoveMarker(id)
	}
}

func (f Fanout) surfaces() []Surface {
	out := make([]Surface, 0, len(f))
	for _, m := range f {
		if s, ok := m.(Surface); ok && s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) markers() []MarkerSurface {
	out := make([]MarkerSurface, 0, len(f))
	for _, m := range f {
		if s, ok := m.(MarkerSurface); ok && s != nil {
			out = append(out, s)
		}
	}
	return out
}
