package route

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"route-tracker/internal/gtfs"
)

// Kind tags the variant held by a Geometry.
type Kind int

const (
	Unsupported Kind = iota
	SinglePath
	MultiPath
)

func (k Kind) String() string {
	switch k {
	case SinglePath:
		return "SinglePath"
	case MultiPath:
		return "MultiPath"
	default:
		return "Unsupported"
	}
}

// Geometry is the route shape as supplied from outside. Exactly one of the
// variants is populated, as reported by Kind.
type Geometry struct {
	kind     Kind
	single   orb.LineString
	multi    orb.MultiLineString
	typeName string
}

func Single(ls orb.LineString) Geometry {
	return Geometry{kind: SinglePath, single: ls, typeName: ls.GeoJSONType()}
}

func Multi(mls orb.MultiLineString) Geometry {
	return Geometry{kind: MultiPath, multi: mls, typeName: mls.GeoJSONType()}
}

// Other records a geometry type the tracker cannot follow.
func Other(typeName string) Geometry {
	return Geometry{kind: Unsupported, typeName: typeName}
}

func (g Geometry) Kind() Kind       { return g.kind }
func (g Geometry) TypeName() string { return g.typeName }

// FromOrb resolves a decoded GeoJSON geometry into its variant.
func FromOrb(g orb.Geometry) Geometry {
	switch v := g.(type) {
	case orb.LineString:
		return Single(v)
	case orb.MultiLineString:
		return Multi(v)
	case nil:
		return Other("")
	default:
		return Other(v.GeoJSONType())
	}
}

// FromShape builds a single path from ordered GTFS shape rows.
func FromShape(pts []gtfs.ShapePoint) Geometry {
	ls := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		ls = append(ls, orb.Point{p.Lon, p.Lat})
	}
	return Single(ls)
}

// Parse decodes a GeoJSON FeatureCollection, Feature or bare geometry. Only
// the first feature of a collection is considered; an empty collection
// yields an Unsupported geometry rather than an error.
func Parse(data []byte) (Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Geometry{}, fmt.Errorf("decode route geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Geometry{}, fmt.Errorf("decode route feature collection: %w", err)
		}
		if len(fc.Features) == 0 {
			return Other(""), nil
		}
		return FromOrb(fc.Features[0].Geometry), nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Geometry{}, fmt.Errorf("decode route feature: %w", err)
		}
		return FromOrb(f.Geometry), nil
	case "":
		return Geometry{}, fmt.Errorf("decode route geojson: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			// unknown geometry types are unsupported, not malformed
			return Other(head.Type), nil
		}
		return FromOrb(g.Geometry()), nil
	}
}
