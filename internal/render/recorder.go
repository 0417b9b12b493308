package render

import (
	"sync"

	"github.com/paulmach/orb"
)

// Recorder keeps the latest state of every layer and marker. It backs the
// HTTP snapshot endpoints and the tests.
type Recorder struct {
	mu       sync.RWMutex
	route    orb.LineString
	position *orb.Point
	trail    orb.LineString
	camera   *Camera
	markers  map[string]orb.Point
	moves    int
	removals []string
}

func NewRecorder() *Recorder {
	return &Recorder{markers: map[string]orb.Point{}}
}

func (r *Recorder) ShowRoute(route orb.LineString) {
	r.mu.Lock()
	r.route = route.Clone()
	r.mu.Unlock()
}

func (r *Recorder) ShowPosition(p orb.Point) {
	r.mu.Lock()
	r.position = &p
	r.mu.Unlock()
}

func (r *Recorder) ShowTrail(trail orb.LineString) {
	r.mu.Lock()
	r.trail = trail.Clone()
	r.mu.Unlock()
}

func (r *Recorder) EaseTo(cam Camera) {
	r.mu.Lock()
	r.camera = &cam
	r.mu.Unlock()
}

func (r *Recorder) MoveMarker(id string, p orb.Point) {
	r.mu.Lock()
	r.markers[id] = p
	r.moves++
	r.mu.Unlock()
}

func (r *Recorder) RemoveMarker(id string) {
	r.mu.Lock()
	delete(r.markers, id)
	r.removals = append(r.removals, id)
	r.mu.Unlock()
}

// Snapshot is a copy of what a Recorder has seen.
type Snapshot struct {
	Route    orb.LineString       `json:"route"`
	Position *orb.Point           `json:"position,omitempty"`
	Trail    orb.LineString       `json:"trail"`
	Camera   *Camera              `json:"camera,omitempty"`
	Markers  map[string]orb.Point `json:"markers"`
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		Route:   r.route.Clone(),
		Trail:   r.trail.Clone(),
		Markers: make(map[string]orb.Point, len(r.markers)),
	}
	if r.position != nil {
		p := *r.position
		s.Position = &p
	}
	if r.camera != nil {
		c := *r.camera
		s.Camera = &c
	}
	for id, p := range r.markers {
		s.Markers[id] = p
	}
	return s
}

// Marker returns the last position of id.
func (r *Recorder) Marker(id string) (orb.Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.markers[id]
	return p, ok
}

// Moves counts MoveMarker calls.
func (r *Recorder) Moves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.moves
}

func (r *Recorder) Removals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.removals...)
}
