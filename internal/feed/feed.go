// Package feed brings realtime vehicle positions onto the map markers.
package feed

import "github.com/paulmach/orb"

// Feed names used as marker owners.
const (
	SourceNATS   = "nats"
	SourceGTFSRT = "gtfsrt"
)

// Target receives positions tagged with the feed that produced them.
// *marker.Animator satisfies it.
type Target interface {
	UpdateFrom(source, id string, p orb.Point)
	SyncFrom(source string, positions map[string]orb.Point)
}
