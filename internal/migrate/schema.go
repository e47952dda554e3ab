package migrate

import (
	"database/sql"
	"fmt"
	"org-directory/internal/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// EnsureSchema: create the directory tables and indexes on first run
// Constraint: IF NOT EXISTS only, never alters existing structure; the schema itself is fixed.
// spatialIndex adds the PostGIS extension and the GiST index used by the postgis geo strategy.
func EnsureSchema(db *sql.DB, dialect string, spatialIndex bool) error {
	var pk string
	switch dialect {
	case DialectPostgres:
		pk = "SERIAL PRIMARY KEY"
	case DialectSQLite:
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS building (
            id ` + pk + `,
            city TEXT NOT NULL,
            street TEXT NOT NULL,
            house TEXT NOT NULL,
            office TEXT,
            latitude DOUBLE PRECISION,
            longitude DOUBLE PRECISION,
            CONSTRAINT building_coords_check CHECK ((latitude IS NULL) = (longitude IS NULL))
        )`,
		`CREATE TABLE IF NOT EXISTS organization (
            id ` + pk + `,
            name TEXT NOT NULL,
            building_id INTEGER NOT NULL REFERENCES building(id)
        )`,
		`CREATE INDEX IF NOT EXISTS ix_organization_building ON organization(building_id)`,
		`CREATE INDEX IF NOT EXISTS ix_organization_name ON organization(name)`,
		`CREATE TABLE IF NOT EXISTS organization_phone (
            id ` + pk + `,
            organization_id INTEGER NOT NULL REFERENCES organization(id) ON DELETE CASCADE,
            phone TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS ix_organization_phone_org ON organization_phone(organization_id)`,
		`CREATE TABLE IF NOT EXISTS activity (
            id ` + pk + `,
            name TEXT NOT NULL,
            parent_id INTEGER REFERENCES activity(id),
            level INTEGER NOT NULL,
            CONSTRAINT activity_level_check CHECK (level BETWEEN 1 AND 3)
        )`,
		`CREATE INDEX IF NOT EXISTS ix_activity_parent ON activity(parent_id)`,
		`CREATE TABLE IF NOT EXISTS organization_activity (
            organization_id INTEGER NOT NULL REFERENCES organization(id) ON DELETE CASCADE,
            activity_id INTEGER NOT NULL REFERENCES activity(id) ON DELETE CASCADE,
            PRIMARY KEY (organization_id, activity_id)
        )`,
		`CREATE INDEX IF NOT EXISTS ix_organization_activity_activity ON organization_activity(activity_id)`,
	}
	if spatialIndex {
		if dialect != DialectPostgres {
			return fmt.Errorf("migrate: spatial index requires %s, got %s", DialectPostgres, dialect)
		}
		stmts = append(stmts,
			`CREATE EXTENSION IF NOT EXISTS postgis`,
			`CREATE INDEX IF NOT EXISTS ix_building_geo_geog
            ON building
            USING GIST (geography(ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)))`,
		)
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i, "dialect", dialect)
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: statement %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done", "dialect", dialect, "spatial", spatialIndex)
	return nil
}
