package gtfs

import "time"

type ShapePoint struct {
	Lat          float64
	Lon          float64
	Sequence     int
	DistTraveled float64 // meters, if available; 0 if missing
}

// VehiclePosition is one realtime bus sighting, whatever feed it came from.
type VehiclePosition struct {
	VehicleID string
	TripID    string
	RouteID   string
	Lat       float64
	Lon       float64
	Bearing   float64
	Timestamp time.Time
}

// EntityID is the marker key for the vehicle: the vehicle id when the feed
// carries one, the trip id otherwise.
func (v VehiclePosition) EntityID() string {
	if v.VehicleID != "" {
		return v.VehicleID
	}
	return v.TripID
}
