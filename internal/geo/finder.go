package geo

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"org-directory/internal/model"
)

const (
	StrategyHaversine = "haversine"
	StrategyPostGIS   = "postgis"
)

// Source: what a finder reads through; *store.Reader satisfies it
type Source interface {
	BuildingPoints(ctx context.Context) ([]model.BuildingPoint, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Finder: ids of buildings with coordinates within radiusM meters of p (distance <= radius)
// Buildings without coordinates are never returned.
type Finder interface {
	Name() string
	BuildingsWithin(ctx context.Context, src Source, p Point, radiusM float64) ([]int64, error)
}

// NewFinder: exactly one strategy per deployment
func NewFinder(strategy string, onScan func(n int)) (Finder, error) {
	switch strategy {
	case StrategyHaversine, "":
		return &HaversineFinder{OnScan: onScan}, nil
	case StrategyPostGIS:
		return PostGISFinder{}, nil
	}
	return nil, fmt.Errorf("geo: unknown strategy %q", strategy)
}

// HaversineFinder: great-circle filter computed in process over every building with coordinates
// Constraint: one full scan of building per call; fine for city-scale data, not for planet-scale
type HaversineFinder struct {
	OnScan func(n int)
}

func (*HaversineFinder) Name() string { return StrategyHaversine }

func (f *HaversineFinder) BuildingsWithin(ctx context.Context, src Source, p Point, radiusM float64) ([]int64, error) {
	pts, err := src.BuildingPoints(ctx)
	if err != nil {
		return nil, err
	}
	if f.OnScan != nil {
		f.OnScan(len(pts))
	}
	var out []int64
	for _, b := range pts {
		if Haversine(p, Point{Lat: b.Lat, Lon: b.Lon}) <= radiusM {
			out = append(out, b.ID)
		}
	}
	return out, nil
}

// maxGeodesicM bounds any distance on the globe; PostGIS rejects an infinite tolerance
var maxGeodesicM = 2 * math.Pi * EarthRadiusM

// PostGISFinder: ST_DWithin over geography points, served by the GiST index ix_building_geo_geog
type PostGISFinder struct{}

func (PostGISFinder) Name() string { return StrategyPostGIS }

const postgisWithin = `SELECT id FROM building
WHERE latitude IS NOT NULL AND longitude IS NOT NULL
  AND ST_DWithin(
        geography(ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)),
        geography(ST_SetSRID(ST_MakePoint($2, $1), 4326)),
        $3)
ORDER BY id`

func (PostGISFinder) BuildingsWithin(ctx context.Context, src Source, p Point, radiusM float64) ([]int64, error) {
	rows, err := src.QueryContext(ctx, postgisWithin, p.Lat, p.Lon, ClampRadius(radiusM))
	if err != nil {
		return nil, fmt.Errorf("geo: postgis within: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("geo: postgis scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClampRadius: radius limited to the largest distance two points on the sphere can have
func ClampRadius(radiusM float64) float64 {
	if radiusM > maxGeodesicM {
		return maxGeodesicM
	}
	return radiusM
}
