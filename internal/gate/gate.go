// Package gate orchestrates the access checks that run before every privileged
// operation: host context validation, rate limiting and tenant verification.
// Every decision is written to the audit log.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/sidebar-gate/internal/audit"
	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
	"github.com/tjfontaine/sidebar-gate/internal/hostcheck"
	"github.com/tjfontaine/sidebar-gate/internal/ratelimit"
	"github.com/tjfontaine/sidebar-gate/internal/tenant"
)

var tracer = otel.Tracer("github.com/tjfontaine/sidebar-gate/internal/gate")

// Status is a read-only view of the gate.
type Status struct {
	RateLimit       ratelimit.Snapshot   `json:"rate_limit"`
	LastBasicChecks []domain.CheckResult `json:"last_basic_checks"`
	TenantState     string               `json:"tenant_state"`
	AuditEntries    int                  `json:"audit_entries"`
}

// Gate decides whether a privileged operation may run.
type Gate struct {
	validator atomic.Pointer[hostcheck.Validator]
	limiter   *ratelimit.Limiter
	verifier  *tenant.Verifier
	audit     *audit.Log
	probe     ports.HostProbe
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	lastBasic []domain.CheckResult
}

// Option is a functional option for configuring a Gate.
type Option func(*Gate) error

// WithValidator sets the host context validator.
func WithValidator(v *hostcheck.Validator) Option {
	return func(g *Gate) error {
		if v == nil {
			return fmt.Errorf("validator cannot be nil")
		}
		g.validator.Store(v)
		return nil
	}
}

// WithLimiter sets the rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(g *Gate) error {
		if l == nil {
			return fmt.Errorf("limiter cannot be nil")
		}
		g.limiter = l
		return nil
	}
}

// WithVerifier sets the tenant verifier.
func WithVerifier(v *tenant.Verifier) Option {
	return func(g *Gate) error {
		if v == nil {
			return fmt.Errorf("verifier cannot be nil")
		}
		g.verifier = v
		return nil
	}
}

// WithAuditLog sets the audit log.
func WithAuditLog(l *audit.Log) Option {
	return func(g *Gate) error {
		if l == nil {
			return fmt.Errorf("audit log cannot be nil")
		}
		g.audit = l
		return nil
	}
}

// WithProbe sets the probe used when the context carries none.
func WithProbe(p ports.HostProbe) Option {
	return func(g *Gate) error {
		g.probe = p
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) error {
		if logger != nil {
			g.logger = logger
		}
		return nil
	}
}

// WithClock replaces time.Now for decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) error {
		if now != nil {
			g.now = now
		}
		return nil
	}
}

// New creates a gate. Components not supplied through options use their
// defaults.
func New(opts ...Option) (*Gate, error) {
	g := &Gate{
		limiter: ratelimit.New(ratelimit.DefaultMaxRequests, ratelimit.DefaultWindow),
		audit:   audit.New(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	g.validator.Store(hostcheck.New(hostcheck.DefaultRules()))

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	if g.verifier == nil {
		v, err := tenant.NewVerifier(tenant.DefaultAllowHash, tenant.WithLogger(g.logger))
		if err != nil {
			return nil, err
		}
		g.verifier = v
	}
	return g, nil
}

// SetValidator swaps the host context rules. Decisions in flight keep the
// validator they started with.
func (g *Gate) SetValidator(v *hostcheck.Validator) {
	if v != nil {
		g.validator.Store(v)
	}
}

// AuditLog returns the log the gate records to.
func (g *Gate) AuditLog() *audit.Log {
	return g.audit
}

// ValidateAccess runs every check and returns nil when access is allowed, or an
// *domain.AccessDenied listing each failing check. sel is the current selection;
// nil means nothing has been selected yet and the tenant is learned from the
// host's selection event.
func (g *Gate) ValidateAccess(ctx context.Context, sel *domain.SelectionContext) error {
	ctx, span := tracer.Start(ctx, "gate.ValidateAccess")
	defer span.End()

	hc := g.hostContext(ctx)

	basic := g.validator.Load().Validate(hc)
	basic = append(basic, g.limiter.Check())

	g.mu.Lock()
	g.lastBasic = append([]domain.CheckResult(nil), basic...)
	g.mu.Unlock()

	checks := basic
	var causes []error
	for _, c := range basic {
		if !c.Passed {
			causes = append(causes, g.causeOf(c, hc))
		}
	}

	if len(causes) > 0 {
		checks = append(checks, domain.Skip(domain.CheckTenant, "not run: basic checks failed"))
	} else {
		ver := g.verifier.Verify(ctx, hc.Integration, sel)
		checks = append(checks, ver.Result)
		if !ver.Result.Passed && ver.Err != nil {
			causes = append(causes, ver.Err)
		}
		span.SetAttributes(attribute.String("gate.tenant_condition", string(ver.Condition)))
	}

	decision := domain.NewDecision(g.now(), checks...)
	g.audit.Record(ctx, domain.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: decision.Timestamp,
		Host:      hc.Snapshot(),
		Decision:  decision,
	})

	span.SetAttributes(
		attribute.Bool("gate.passed", decision.Passed),
		attribute.Bool("gate.startup", sel == nil),
	)

	if decision.Passed {
		g.logger.Info("access allowed",
			slog.Bool("startup", sel == nil),
			slog.String("origin", hc.OriginHost))
		return nil
	}

	denied := domain.NewAccessDenied(decision.Failures(), causes)
	span.SetStatus(codes.Error, string(denied.Type()))
	g.logger.Warn("access denied",
		slog.String("type", string(denied.Type())),
		slog.String("failed_checks", failedNames(denied.Failures)),
		slog.String("origin", hc.OriginHost),
		slog.String("error", denied.Error()))
	return denied
}

// Guard runs fn only after the gate allows access.
func (g *Gate) Guard(ctx context.Context, sel *domain.SelectionContext, fn func(ctx context.Context) error) error {
	if err := g.ValidateAccess(ctx, sel); err != nil {
		return err
	}
	return fn(ctx)
}

// Status reports the gate state. It never records a rate limit attempt.
func (g *Gate) Status() Status {
	g.mu.Lock()
	last := append([]domain.CheckResult(nil), g.lastBasic...)
	g.mu.Unlock()

	return Status{
		RateLimit:       g.limiter.Snapshot(),
		LastBasicChecks: last,
		TenantState:     g.verifier.State().String(),
		AuditEntries:    g.audit.Size(),
	}
}

func (g *Gate) hostContext(ctx context.Context) ports.HostContext {
	if p := ProbeFromContext(ctx); p != nil {
		return p.Probe(ctx)
	}
	if g.probe != nil {
		return g.probe.Probe(ctx)
	}
	return ports.HostContext{}
}

// causeOf maps a failed basic check to its typed error.
func (g *Gate) causeOf(c domain.CheckResult, hc ports.HostContext) error {
	switch c.Name {
	case domain.CheckCapabilities:
		if hc.Integration == nil {
			return &domain.ConfigurationError{Reason: c.Reason}
		}
		return &domain.ConfigurationError{Missing: hostcheck.MissingOperations(hc.Integration), Reason: c.Reason}
	case domain.CheckRateLimit:
		return &domain.RateLimitError{Reason: c.Reason, RetryAt: g.limiter.RetryAt()}
	default:
		return &domain.HostCheckError{Check: c.Name, Reason: c.Reason}
	}
}

func failedNames(failures []domain.CheckResult) string {
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}
