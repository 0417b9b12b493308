package tracking

import "github.com/paulmach/orb"

// Trail is the ordered list of snapped positions of one session. With
// MaxPoints == 0 nothing is ever dropped.
type Trail struct {
	MaxPoints int
	points    []orb.Point
}

func NewTrail(maxPoints int) *Trail {
	if maxPoints < 0 {
		maxPoints = 0
	}
	return &Trail{MaxPoints: maxPoints}
}

// Append adds p at the end, dropping the oldest point once the cap is hit.
func (t *Trail) Append(p orb.Point) {
	t.points = append(t.points, p)
	if t.MaxPoints > 0 && len(t.points) > t.MaxPoints {
		drop := len(t.points) - t.MaxPoints
		t.points = append(t.points[:0], t.points[drop:]...)
	}
}

func (t *Trail) Len() int { return len(t.points) }

func (t *Trail) Points() []orb.Point {
	return append([]orb.Point(nil), t.points...)
}

// LineString returns a copy for rendering. It is never nil.
func (t *Trail) LineString() orb.LineString {
	out := make(orb.LineString, len(t.points))
	copy(out, t.points)
	return out
}
