package streamhttp

import (
	"net/http"
	"strings"
)

// SecurityConfig bounds what the streamable HTTP transport accepts before a
// request body is ever parsed: an allowlist of Host headers (DNS-rebinding
// protection), an allowlist of Origin headers for browser-originated
// requests, and a hard cap on request body size.
type SecurityConfig struct {
	// AllowedHosts is the exact set of acceptable Host header values
	// (host:port). Empty means any Host is accepted — only safe for
	// loopback-only deployments.
	AllowedHosts []string
	// AllowedOrigins is the set of acceptable Origin header values. A
	// request with no Origin header (non-browser client) always passes;
	// one with an Origin outside this set is refused. Empty means any
	// Origin is accepted.
	AllowedOrigins []string
	// MaxBodyBytes caps the request body size, enforced before the body is
	// read into memory.
	MaxBodyBytes int64
}

func allowed(value string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, candidate := range allowlist {
		if strings.EqualFold(candidate, value) {
			return true
		}
	}
	return false
}

// dnsRebindingCheck rejects requests whose Host or Origin header falls
// outside the configured allowlists, before any further processing.
func dnsRebindingCheck(cfg SecurityConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowed(r.Host, cfg.AllowedHosts) {
			http.Error(w, `{"error":"host_not_allowed"}`, http.StatusForbidden)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" && !allowed(origin, cfg.AllowedOrigins) {
			http.Error(w, `{"error":"origin_not_allowed"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodySizeLimit enforces MaxBodyBytes using both the Content-Length header
// (fast path, rejects before reading any bytes) and http.MaxBytesReader
// (catches a missing/lying Content-Length on a chunked body).
func bodySizeLimit(cfg SecurityConfig, next http.Handler) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > cfg.MaxBodyBytes {
			http.Error(w, `{"error":"request_too_large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
