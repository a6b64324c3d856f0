// Package safehttp provides the outbound transport for host and model API calls.
package safehttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrPrivateAddress is returned when a dial resolves to a private, loopback or
// link-local address and private upstreams are not allowed.
var ErrPrivateAddress = fmt.Errorf("access to private address denied")

// NewTransport returns a transport that refuses to connect to private address
// ranges unless allowPrivate is set. The configured base URLs are operator
// input, so a typo or a hostile DNS answer must not reach internal services.
func NewTransport(allowPrivate bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if allowPrivate {
		return t
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
		}

		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
		}
		return conn, nil
	}
	return t
}
