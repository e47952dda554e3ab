// Package config: environment-driven settings, optionally seeded from .env files
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GeoHaversine = "haversine"
	GeoPostGIS   = "postgis"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Addr            string
	APIBase         string
	DB              Database
	SchemaBootstrap bool
	Geo             Geo
	Redis           Redis
	GeoIPPath       string
	RateLimit       RateLimit
}

type Database struct {
	Driver     string
	DSN        string
	SQLitePath string
	MaxOpen    int
	MaxIdle    int
}

// Geo: radius values are meters for every strategy
type Geo struct {
	Strategy       string
	DefaultRadiusM float64
}

// Redis: Addr == "" disables the query cache
type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type RateLimit struct {
	Enabled bool
	QPS     int
	Burst   int
}

// LoadDotEnv: read .env and data/env/.env when present; real environment wins
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// Load: collect settings from the process environment
func Load() (*Config, error) {
	c := &Config{
		Addr:            getEnv("ADDR", ":8080"),
		APIBase:         strings.TrimSuffix(os.Getenv("API_BASE"), "/"),
		SchemaBootstrap: getBool("SCHEMA_BOOTSTRAP", true),
		GeoIPPath:       os.Getenv("GEOIP_DB_PATH"),
	}
	c.DB = Database{
		Driver:     getEnv("DB_DRIVER", DriverPostgres),
		DSN:        BuildPostgresDSN(),
		SQLitePath: getEnv("SQLITE_PATH", filepath.Join("data", "orgdir.db")),
		MaxOpen:    getInt("PG_MAX_OPEN_CONNS", 50),
		MaxIdle:    getInt("PG_MAX_IDLE_CONNS", 25),
	}
	if c.DB.Driver != DriverPostgres && c.DB.Driver != DriverSQLite {
		return nil, fmt.Errorf("config: DB_DRIVER must be %s or %s, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	c.Geo = Geo{
		Strategy:       strings.ToLower(getEnv("GEO_STRATEGY", GeoHaversine)),
		DefaultRadiusM: getFloat("DEFAULT_RADIUS_M", 1000),
	}
	switch c.Geo.Strategy {
	case GeoHaversine:
	case GeoPostGIS:
		if c.DB.Driver != DriverPostgres {
			return nil, fmt.Errorf("config: GEO_STRATEGY=%s requires DB_DRIVER=%s", GeoPostGIS, DriverPostgres)
		}
	default:
		return nil, fmt.Errorf("config: unknown GEO_STRATEGY %q", c.Geo.Strategy)
	}
	if c.Geo.DefaultRadiusM <= 0 {
		return nil, fmt.Errorf("config: DEFAULT_RADIUS_M must be positive")
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis = Redis{
			Addr:     host + ":" + getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASS"),
			DB:       getInt("REDIS_DB", 0),
		}
	}
	c.Redis.TTL = time.Duration(getInt("CACHE_TTL_S", 300)) * time.Second
	c.RateLimit = RateLimit{
		Enabled: getBool("RATE_LIMIT_ENABLED", false),
		QPS:     getInt("RATE_LIMIT_QPS", 200),
		Burst:   getInt("RATE_LIMIT_BURST", 400),
	}
	return c, nil
}

// BuildPostgresDSN: assemble a lib/pq URL from PG_* variables
func BuildPostgresDSN() string {
	user := getEnv("PG_USER", "postgres")
	dsn := "postgres://" + user
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + getEnv("PG_HOST", "localhost") + ":" + getEnv("PG_PORT", "5432") + "/" + getEnv("PG_DB", "orgdir")
	dsn += "?sslmode=" + getEnv("PG_SSLMODE", "disable")
	return dsn
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parse failures fall back to the default, same as an unset variable
func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
