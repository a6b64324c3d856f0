package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
	"github.com/tjfontaine/sidebar-gate/internal/gate"
)

// Request headers read into the host context. The sidebar script forwards what
// only the page can see (window.self !== window.top, document.referrer) in the
// X-Sidebar-* headers; browser headers are the fallback.
const (
	headerEmbedded     = "X-Sidebar-Embedded"
	headerHostReferrer = "X-Sidebar-Referrer"
	headerFetchDest    = "Sec-Fetch-Dest"
	headerOrigin       = "Origin"
	headerReferer      = "Referer"
	headerUserAgent    = "User-Agent"
)

// HostProbeMiddleware derives the host context from the incoming request and
// attaches it for the gate. The host integration is shared by all requests.
func HostProbeMiddleware(integration any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hc := RequestHostContext(r, integration)
			probe := ports.HostProbeFunc(func(context.Context) ports.HostContext { return hc })
			ctx := gate.ContextWithProbe(r.Context(), probe)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestHostContext builds the host context from request headers.
func RequestHostContext(r *http.Request, integration any) ports.HostContext {
	embedded := strings.ToLower(r.Header.Get(headerFetchDest)) == "iframe"
	if v := r.Header.Get(headerEmbedded); v != "" {
		embedded, _ = strconv.ParseBool(v)
	}

	referrer := r.Header.Get(headerHostReferrer)
	if referrer == "" {
		referrer = r.Header.Get(headerReferer)
	}

	return ports.HostContext{
		Embedded:        embedded,
		OriginHost:      originHost(r),
		Referrer:        referrer,
		ClientSignature: r.Header.Get(headerUserAgent),
		Integration:     integration,
	}
}

// originHost is the hostname the sidebar was served from, without the port.
func originHost(r *http.Request) string {
	host := r.Host
	if origin := r.Header.Get(headerOrigin); origin != "" && origin != "null" {
		if i := strings.Index(origin, "://"); i >= 0 {
			host = origin[i+3:]
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}
