package tracking

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// DefaultThreshold is the off-route distance in meters.
const DefaultThreshold = 20.0

// OffRoute reports whether a snap distance exceeds the threshold. A
// distance exactly at the threshold is still on route.
func OffRoute(distance, threshold float64) bool {
	return distance > threshold
}

type AlertMode int

const (
	// AlertEverySample notifies on every off-route fix.
	AlertEverySample AlertMode = iota
	// AlertOnEnter notifies once when the device leaves the route and again
	// only after it has come back.
	AlertOnEnter
)

func (m AlertMode) String() string {
	switch m {
	case AlertOnEnter:
		return "enter"
	default:
		return "every"
	}
}

// ParseAlertMode accepts "every" and "enter". Empty means every.
func ParseAlertMode(s string) (AlertMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "every":
		return AlertEverySample, nil
	case "enter":
		return AlertOnEnter, nil
	default:
		return AlertEverySample, fmt.Errorf("unknown alert mode %q", s)
	}
}

// Detector decides which snap results raise an alert. It is not safe for
// concurrent use; a Session serialises calls.
type Detector struct {
	Threshold float64
	Mode      AlertMode

	off bool
}

func NewDetector(threshold float64, mode AlertMode) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{Threshold: threshold, Mode: mode}
}

// Check reports whether res should raise an alert. Results without a
// distance never do.
func (d *Detector) Check(res SnapResult) bool {
	if !res.HasDistance {
		return false
	}
	off := OffRoute(res.Distance, d.Threshold)
	was := d.off
	d.off = off
	if !off {
		return false
	}
	if d.Mode == AlertOnEnter {
		return !was
	}
	return true
}

// Off reports whether the last checked result was off route.
func (d *Detector) Off() bool { return d.off }

// Alert is the off-route notification.
type Alert struct {
	Session   string    `json:"session"`
	Raw       orb.Point `json:"raw"`
	Snapped   orb.Point `json:"snapped"`
	Distance  float64   `json:"distance_m"`
	Threshold float64   `json:"threshold_m"`
	At        time.Time `json:"at"`
}

func (a Alert) String() string {
	return fmt.Sprintf("off route by %.1f m (threshold %.0f m)", a.Distance, a.Threshold)
}
