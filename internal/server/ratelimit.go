package server

import (
	"net/http"
	"strconv"

	"github.com/tjfontaine/sidebar-gate/internal/gate"
)

// RateLimitHeadersMiddleware writes x-ratelimit-* headers describing the gate's
// limiter as of the moment the handler responds.
func RateLimitHeadersMiddleware(g *gate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&rateLimitResponseWriter{ResponseWriter: w, gate: g}, r)
		})
	}
}

// rateLimitResponseWriter writes the headers just before the status line.
type rateLimitResponseWriter struct {
	http.ResponseWriter
	gate         *gate.Gate
	wroteHeaders bool
}

func (rw *rateLimitResponseWriter) WriteHeader(code int) {
	rw.writeRateLimitHeaders()
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *rateLimitResponseWriter) Write(b []byte) (int, error) {
	rw.writeRateLimitHeaders()
	return rw.ResponseWriter.Write(b)
}

func (rw *rateLimitResponseWriter) writeRateLimitHeaders() {
	if rw.wroteHeaders {
		return
	}
	rw.wroteHeaders = true

	snap := rw.gate.Status().RateLimit
	remaining := snap.MaxRequests - snap.RequestsInWindow
	if remaining < 0 || snap.BlockedUntil != nil {
		remaining = 0
	}

	h := rw.Header()
	h.Set("x-ratelimit-limit-requests", strconv.Itoa(snap.MaxRequests))
	h.Set("x-ratelimit-remaining-requests", strconv.Itoa(remaining))
	if snap.BlockedUntil != nil {
		h.Set("x-ratelimit-reset-requests", snap.BlockedUntil.UTC().Format(http.TimeFormat))
	}
}
