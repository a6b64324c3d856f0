// Package tenant confirms that the active host tenant is the authorized one.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
	"github.com/tjfontaine/sidebar-gate/internal/policy"
)

// DefaultTimeout bounds the wait for a selection event.
const DefaultTimeout = 5 * time.Second

// State is the verifier's position in Idle -> WaitingForTenant -> Resolved.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting_for_tenant"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Verification is the outcome of one tenant verification.
type Verification struct {
	Result    domain.CheckResult
	Condition policy.Condition
	// Err is the typed cause when Result did not pass.
	Err error
}

// Verifier compares the active tenant against a single allow-hash.
type Verifier struct {
	allowHash   string
	restriction string
	timeout     time.Duration
	policy      policy.Policy
	logger      *slog.Logger

	inflight singleflight.Group
	waiters  atomic.Int32
	resolved atomic.Bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout sets how long to wait for a selection event.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithPolicy replaces the outcome table.
func WithPolicy(p policy.Policy) Option {
	return func(v *Verifier) {
		if p != nil {
			v.policy = p
		}
	}
}

// WithRestriction names the authorized tenant in mismatch messages.
func WithRestriction(name string) Option {
	return func(v *Verifier) {
		if name != "" {
			v.restriction = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier creates a verifier for the given allow-hash.
func NewVerifier(allowHash string, opts ...Option) (*Verifier, error) {
	allowHash = strings.ToLower(strings.TrimSpace(allowHash))
	if allowHash == "" {
		return nil, fmt.Errorf("allow-hash required")
	}

	v := &Verifier{
		allowHash:   allowHash,
		restriction: "the authorized organization",
		timeout:     DefaultTimeout,
		policy:      policy.Default(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// State reports waiting while any selection wait is pending, otherwise whether
// a verification has completed.
func (v *Verifier) State() State {
	switch {
	case v.waiters.Load() > 0:
		return StateWaiting
	case v.resolved.Load():
		return StateResolved
	default:
		return StateIdle
	}
}

// Verify checks the tenant of the selection. When sel is nil no selection exists
// yet, so Verify subscribes to the host's selection event and waits for it,
// bounded by the timeout. Concurrent waits share one subscription.
//
// When sel names conversations and the integration can fetch them, the tenant
// is taken from the host's conversation record. A tenant sent with the
// selection only has to agree with it.
func (v *Verifier) Verify(ctx context.Context, integration any, sel *domain.SelectionContext) Verification {
	if sel != nil {
		res := v.verifySelection(ctx, integration, sel)
		v.resolved.Store(true)
		return res
	}

	sub, okSub := integration.(ports.SelectionSubscriber)
	fetch, okFetch := integration.(ports.ConversationFetcher)
	if !okSub || !okFetch {
		v.resolved.Store(true)
		return v.decide(policy.ConditionSubscribeFailed, "host integration cannot deliver selection events")
	}

	ch := v.inflight.DoChan("selection", func() (any, error) {
		return v.await(context.WithoutCancel(ctx), sub, fetch), nil
	})

	select {
	case r := <-ch:
		return r.Val.(Verification)
	case <-ctx.Done():
		return v.cancelled(ctx.Err())
	}
}

// verifySelection resolves the tenant of an explicit selection.
func (v *Verifier) verifySelection(ctx context.Context, integration any, sel *domain.SelectionContext) Verification {
	fetch, ok := integration.(ports.ConversationFetcher)
	if !ok || len(sel.ConversationIDs) == 0 {
		return v.resolve(sel.Tenant)
	}

	convs, err := fetch.FetchConversations(ctx, sel.ConversationIDs)
	if err != nil {
		if ctx.Err() != nil {
			return v.cancelled(ctx.Err())
		}
		v.logger.Warn("tenant lookup failed",
			slog.Int("conversations", len(sel.ConversationIDs)),
			slog.String("error", err.Error()))
		return v.decide(policy.ConditionFetchFailed, err.Error())
	}
	if len(convs) == 0 {
		return v.decide(policy.ConditionNotFound, strings.Join(sel.ConversationIDs, ", "))
	}

	org := convs[0].Organization
	for _, c := range convs[1:] {
		if tenantID(c.Organization) != tenantID(org) {
			v.logger.Warn("selection spans tenants", slog.Int("conversations", len(convs)))
			return v.decide(policy.ConditionMismatch, v.restriction)
		}
	}
	if sel.Tenant != nil && sel.Tenant.ID != "" && sel.Tenant.ID != tenantID(org) {
		v.logger.Warn("selection tenant disagrees with host record",
			slog.String("tenant_name", sel.Tenant.DisplayName()))
		return v.decide(policy.ConditionMismatch, v.restriction)
	}
	return v.resolve(org)
}

// cancelled denies a verification abandoned by its caller.
func (v *Verifier) cancelled(err error) Verification {
	res := v.decide(policy.ConditionCancelled, err.Error())
	var unverified *domain.TenantUnverifiedError
	if errors.As(res.Err, &unverified) {
		unverified.Err = err
	}
	return res
}

// await races the first usable selection event against the timeout. The
// subscription and the timer are released on every return path.
func (v *Verifier) await(ctx context.Context, sub ports.SelectionSubscriber, fetch ports.ConversationFetcher) Verification {
	v.waiters.Add(1)
	defer func() {
		v.resolved.Store(true)
		v.waiters.Add(-1)
	}()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	results := make(chan Verification, 1)
	deliver := func(res Verification) {
		select {
		case results <- res:
		default:
		}
	}

	handler := func(ids []string) {
		select {
		case <-done:
			return
		default:
		}
		if len(ids) == 0 {
			return
		}
		convs, err := fetch.FetchConversations(fetchCtx, ids)
		if err != nil {
			v.logger.Warn("tenant lookup failed",
				slog.Int("conversations", len(ids)),
				slog.String("error", err.Error()))
			deliver(v.decide(policy.ConditionFetchFailed, err.Error()))
			return
		}
		if len(convs) == 0 {
			return
		}
		deliver(v.resolve(convs[0].Organization))
	}

	unsubscribe, err := sub.Subscribe(ports.EventSelectionChanged, handler)
	if err != nil {
		return v.decide(policy.ConditionSubscribeFailed, err.Error())
	}
	if unsubscribe != nil {
		defer unsubscribe()
	}

	timer := time.NewTimer(v.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return res
	case <-timer.C:
		v.logger.Warn("tenant verification timed out", slog.Duration("timeout", v.timeout))
		return v.decide(policy.ConditionTimeout, v.timeout.String())
	}
}

// resolve classifies a tenant record against the allow-hash.
func (v *Verifier) resolve(t *domain.TenantRecord) Verification {
	if t == nil || t.ID == "" {
		return v.decide(policy.ConditionPersonal, "")
	}
	if HashID(t.ID) == v.allowHash {
		return v.decide(policy.ConditionVerified, t.DisplayName())
	}
	v.logger.Warn("tenant hash mismatch", slog.String("tenant_name", t.DisplayName()))
	return v.decide(policy.ConditionMismatch, v.restriction)
}

func tenantID(t *domain.TenantRecord) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func (v *Verifier) decide(c policy.Condition, detail string) Verification {
	allow, reason := v.policy.Decide(c, detail)
	if allow {
		return Verification{Result: domain.Pass(domain.CheckTenant, reason), Condition: c}
	}

	var cause error
	if c == policy.ConditionMismatch {
		cause = &domain.TenantMismatchError{Reason: reason}
	} else {
		cause = &domain.TenantUnverifiedError{Reason: reason}
	}
	return Verification{Result: domain.Fail(domain.CheckTenant, reason), Condition: c, Err: cause}
}
