package gate

import (
	"context"

	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

type probeKey struct{}

// ContextWithProbe attaches a request-scoped host probe.
func ContextWithProbe(ctx context.Context, p ports.HostProbe) context.Context {
	return context.WithValue(ctx, probeKey{}, p)
}

// ProbeFromContext returns the probe attached by ContextWithProbe, if any.
func ProbeFromContext(ctx context.Context) ports.HostProbe {
	p, _ := ctx.Value(probeKey{}).(ports.HostProbe)
	return p
}
