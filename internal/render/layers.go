package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer names, as the map client knows them.
const (
	LayerRoute      = "route"
	LayerRouteStart = "route-start"
	LayerRouteEnd   = "route-end"
	LayerUser       = "user"
	LayerTrail      = "user-trail"
)

// LineFeature wraps a line in a Feature. An empty line stays a valid
// LineString with no coordinates.
func LineFeature(ls orb.LineString) *geojson.Feature {
	if ls == nil {
		ls = orb.LineString{}
	}
	return geojson.NewFeature(ls)
}

func PointFeature(p orb.Point) *geojson.Feature {
	return geojson.NewFeature(p)
}

// UserCollection is the "user" layer: a collection holding the one point.
func UserCollection(p orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(PointFeature(p))
	return fc
}

// RouteLayers returns the route line with its start and end markers. A
// route without points only yields the line.
func RouteLayers(route orb.LineString) map[string]any {
	out := map[string]any{LayerRoute: LineFeature(route)}
	if len(route) > 0 {
		out[LayerRouteStart] = PointFeature(route[0])
		out[LayerRouteEnd] = PointFeature(route[len(route)-1])
	}
	return out
}
