package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"org-directory/internal/config"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func hit(h http.Handler) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organization/1", nil))
	return rec.Code
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	h := RateLimit(config.RateLimit{Enabled: false, QPS: 1, Burst: 1}, okHandler)
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, hit(h))
	}
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	h := RateLimit(config.RateLimit{Enabled: true, QPS: 1, Burst: 2}, okHandler)
	assert.Equal(t, http.StatusOK, hit(h))
	assert.Equal(t, http.StatusOK, hit(h))
	assert.Equal(t, http.StatusTooManyRequests, hit(h))
}
