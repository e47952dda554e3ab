package api

import (
	"net"
	"net/http"
	"strings"
)

// clientIP: caller address for "near me" lookups. Proxy headers first, then the socket peer.
// Constraint: headers are trusted as-is; run behind a proxy that overwrites them.
func clientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("cf-connecting-ip"); x != "" {
		return x
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	if x := h.Get("x-client-ip"); x != "" {
		return x
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := x[i+4:]
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			return hostOnly(strings.Trim(y, "\" "))
		}
	}
	return hostOnly(r.RemoteAddr)
}

// hostOnly: "1.2.3.4:80" and "[::1]:80" lose the port, bare addresses pass through
func hostOnly(s string) string {
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
}
