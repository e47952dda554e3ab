package middleware

import (
	"net/http"

	"org-directory/internal/config"
	"org-directory/internal/logger"
	"org-directory/internal/metrics"

	"golang.org/x/time/rate"
)

// RateLimit: token bucket in front of the whole API, shared by every client
// Constraint: no queueing; a request without a token is answered 429 right away
func RateLimit(cfg config.RateLimit, next http.Handler) http.Handler {
	if !cfg.Enabled || cfg.QPS <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst < cfg.QPS {
		burst = cfg.QPS
	}
	lim := rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	logger.L().Info("rate_limit_on", "qps", cfg.QPS, "burst", burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.Header().Set("retry-after", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
