package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DB_DRIVER", "GEO_STRATEGY", "DEFAULT_RADIUS_M", "REDIS_HOST", "PG_PASSWORD", "PG_DB", "API_BASE"} {
		t.Setenv(k, "")
	}
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, DriverPostgres, c.DB.Driver)
	assert.Equal(t, GeoHaversine, c.Geo.Strategy)
	assert.Equal(t, 1000.0, c.Geo.DefaultRadiusM)
	assert.Empty(t, c.Redis.Addr)
	assert.Equal(t, 300*time.Second, c.Redis.TTL)
	assert.Equal(t, "postgres://postgres@localhost:5432/orgdir?sslmode=disable", c.DB.DSN)
}

func TestLoadRejectsPostGISOnSQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", DriverSQLite)
	t.Setenv("GEO_STRATEGY", "PostGIS")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("GEO_STRATEGY", "flat")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRedisAndRadius(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("GEO_STRATEGY", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("DEFAULT_RADIUS_M", "250.5")
	t.Setenv("API_BASE", "/api/")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", c.Redis.Addr)
	assert.Equal(t, 2, c.Redis.DB)
	assert.Equal(t, 250.5, c.Geo.DefaultRadiusM)
	assert.Equal(t, "/api", c.APIBase)
}
