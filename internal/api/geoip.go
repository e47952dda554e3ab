package api

import (
	"fmt"
	"net"

	"org-directory/internal/geo"
	"org-directory/internal/logger"
	"org-directory/internal/metrics"

	"github.com/oschwald/geoip2-golang"
)

// IPLocator turns a caller address into a search center.
type IPLocator interface {
	Locate(ip string) (geo.Point, bool)
}

// GeoIPLocator: MaxMind City database lookup
type GeoIPLocator struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIPLocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &GeoIPLocator{db: db}, nil
}

func (g *GeoIPLocator) Close() error { return g.db.Close() }

// Locate: false for unparsable, private or unknown addresses
func (g *GeoIPLocator) Locate(ip string) (geo.Point, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() {
		metrics.GeoIPLookupsTotal.WithLabelValues("skipped").Inc()
		return geo.Point{}, false
	}
	rec, err := g.db.City(parsed)
	if err != nil {
		logger.L().Debug("geoip_lookup_error", "ip", ip, "err", err)
		metrics.GeoIPLookupsTotal.WithLabelValues("error").Inc()
		return geo.Point{}, false
	}
	// MaxMind leaves unknown locations at 0,0
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		metrics.GeoIPLookupsTotal.WithLabelValues("miss").Inc()
		return geo.Point{}, false
	}
	metrics.GeoIPLookupsTotal.WithLabelValues("hit").Inc()
	return geo.Point{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude}, true
}
