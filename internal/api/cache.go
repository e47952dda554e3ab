package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"org-directory/internal/geo"
	"org-directory/internal/logger"
	"org-directory/internal/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "orgdir:"

// loadTimeout caps a shared load once no caller's context bounds it
const loadTimeout = 30 * time.Second

// QueryCache: redis read-through of JSON query results
// Concurrent misses on one key share a single load. Errors are never cached.
type QueryCache struct {
	rc  *redis.Client
	ttl time.Duration
	sf  singleflight.Group
}

// NewQueryCache: nil client gives a nil cache, which loads straight through
func NewQueryCache(rc *redis.Client, ttl time.Duration) *QueryCache {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &QueryCache{rc: rc, ttl: ttl}
}

func cached[T any](ctx context.Context, c *QueryCache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	key = keyPrefix + key
	var out T
	s, err := c.rc.Get(ctx, key).Result()
	switch {
	case err == nil:
		if json.Unmarshal([]byte(s), &out) == nil {
			metrics.CacheHitsTotal.Inc()
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.L().Debug("cache_get_error", "key", key, "err", err)
	}
	metrics.CacheMissesTotal.Inc()
	// the shared load outlives any single caller; each caller still stops waiting on its own ctx
	ch := c.sf.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		if b, err := json.Marshal(v); err == nil {
			if err := c.rc.Set(lctx, key, b, c.ttl).Err(); err != nil {
				logger.L().Debug("cache_set_error", "key", key, "err", err)
			}
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return out, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return out, res.Err
		}
		return res.Val.(T), nil
	}
}

func idKey(op string, id int64) string { return op + ":" + strconv.FormatInt(id, 10) }

// nearbyKey: geohash cell first so one area's entries share a prefix; exact inputs follow
func nearbyKey(p geo.Point, radiusM float64) string {
	return "nearby:" + geo.EncodeGeohash(p, 6) + ":" +
		strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(p.Lon, 'f', -1, 64) + ":" +
		strconv.FormatFloat(radiusM, 'f', -1, 64)
}
