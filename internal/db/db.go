package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"route-tracker/internal/gtfs"
	"route-tracker/internal/route"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// ErrNoShape is returned when a route has no trip with a shape.
var ErrNoShape = errors.New("no shape found")

// ResolveShapeID picks the shape most trips of routeID run on.
func ResolveShapeID(ctx context.Context, db *sql.DB, routeID string) (string, error) {
	q := `
SELECT shape_id
FROM trips
WHERE route_id = $1 AND shape_id IS NOT NULL AND shape_id <> ''
GROUP BY shape_id
ORDER BY COUNT(*) DESC, shape_id
LIMIT 1`
	var shapeID string
	if err := db.QueryRowContext(ctx, q, routeID).Scan(&shapeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("route %q: %w", routeID, ErrNoShape)
		}
		return "", fmt.Errorf("query shape for route %q: %w", routeID, err)
	}
	return shapeID, nil
}

const (
	shapeLatLonQuery = `
SELECT shape_pt_lat, shape_pt_lon, shape_pt_sequence, COALESCE(shape_dist_traveled, 0)
FROM shapes
WHERE shape_id = $1
ORDER BY shape_pt_sequence`

	shapePostGISQuery = `
SELECT ST_Y(shape_pt_loc::geometry), ST_X(shape_pt_loc::geometry), shape_pt_sequence,
       COALESCE(shape_dist_traveled, 0)
FROM shapes
WHERE shape_id = $1
ORDER BY shape_pt_sequence`
)

// shapeQuery picks the shapes query for the table layout: plain lat/lon
// columns, or a PostGIS shape_pt_loc geography.
func shapeQuery(ctx context.Context, db *sql.DB) (string, error) {
	cols, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_lat", "shape_pt_lon", "shape_pt_loc")
	if err != nil {
		return "", fmt.Errorf("introspect shapes columns: %w", err)
	}
	switch {
	case cols["shape_pt_lat"] && cols["shape_pt_lon"]:
		return shapeLatLonQuery, nil
	case cols["shape_pt_loc"]:
		return shapePostGISQuery, nil
	default:
		return "", errors.New("shapes table has neither lat/lon nor shape_pt_loc columns")
	}
}

// FetchShapePoints returns the points of a shape in sequence order.
func FetchShapePoints(ctx context.Context, db *sql.DB, shapeID string) ([]gtfs.ShapePoint, error) {
	if shapeID == "" {
		return nil, nil
	}
	q, err := shapeQuery(ctx, db)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shape %q: %w", shapeID, err)
	}
	defer rows.Close()

	var pts []gtfs.ShapePoint
	for rows.Next() {
		var sp gtfs.ShapePoint
		if err := rows.Scan(&sp.Lat, &sp.Lon, &sp.Sequence, &sp.DistTraveled); err != nil {
			return nil, fmt.Errorf("scan shape %q: %w", shapeID, err)
		}
		pts = append(pts, sp)
	}
	return pts, rows.Err()
}

// FetchRouteGeometry loads a shape as a single-path route geometry.
func FetchRouteGeometry(ctx context.Context, db *sql.DB, shapeID string) (route.Geometry, error) {
	pts, err := FetchShapePoints(ctx, db, shapeID)
	if err != nil {
		return route.Geometry{}, err
	}
	if len(pts) == 0 {
		return route.Geometry{}, fmt.Errorf("shape %q: %w", shapeID, ErrNoShape)
	}
	return route.FromShape(pts), nil
}

// hasColumns reports which of cols exist on schema.table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	found := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return found, nil
	}
	rows, err := db.QueryContext(ctx, `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	return found, rows.Err()
}
