// Package policy holds the declarative outcome table for tenant verification.
// Verification control flow only classifies what happened; whether that outcome
// allows access and how it is described lives here.
package policy

import (
	"fmt"
	"strings"
)

// Condition is a classified tenant verification outcome.
type Condition string

const (
	ConditionVerified        Condition = "tenant_verified"
	ConditionMismatch        Condition = "tenant_mismatch"
	ConditionPersonal        Condition = "personal_account"
	ConditionTimeout         Condition = "verification_timeout"
	ConditionFetchFailed     Condition = "fetch_failed"
	ConditionSubscribeFailed Condition = "subscribe_failed"
	ConditionNotFound        Condition = "conversation_not_found"
	ConditionCancelled       Condition = "verification_cancelled"
)

// Timeout policy names accepted in configuration.
const (
	TimeoutAllow = "allow"
	TimeoutDeny  = "deny"
)

// Rule is the outcome for one condition. Reason may contain a single %s verb
// which is filled with condition-specific detail.
type Rule struct {
	Allow  bool
	Reason string
}

// Policy maps every condition to its rule.
type Policy map[Condition]Rule

// Default is the fail-open policy: verification timeouts and host lookup
// failures allow access pending monitoring.
func Default() Policy {
	return Policy{
		ConditionVerified:        {Allow: true, Reason: "tenant verified: %s"},
		ConditionMismatch:        {Allow: false, Reason: "Unauthorized tenant: this integration is restricted to %s"},
		ConditionPersonal:        {Allow: true, Reason: "personal account or selection without organization: access allowed (policy exception)"},
		ConditionTimeout:         {Allow: true, Reason: "tenant verification timed out after %s: access allowed pending monitoring"},
		ConditionFetchFailed:     {Allow: true, Reason: "tenant lookup failed (%s): access allowed pending monitoring"},
		ConditionSubscribeFailed: {Allow: false, Reason: "failed to set up tenant verification: %s"},
		ConditionNotFound:        {Allow: false, Reason: "selected conversation not found on the host: %s"},
		ConditionCancelled:       {Allow: false, Reason: "tenant verification cancelled: %s"},
	}
}

// FailClosed denies access until the tenant is verified.
func FailClosed() Policy {
	p := Default()
	p[ConditionTimeout] = Rule{Allow: false, Reason: "tenant verification timed out after %s: access denied until verified"}
	p[ConditionFetchFailed] = Rule{Allow: false, Reason: "tenant lookup failed (%s): access denied until verified"}
	return p
}

// ForTimeout returns the policy named by a configured timeout policy.
func ForTimeout(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TimeoutAllow:
		return Default(), nil
	case TimeoutDeny:
		return FailClosed(), nil
	default:
		return nil, fmt.Errorf("unknown timeout policy %q (want %q or %q)", name, TimeoutAllow, TimeoutDeny)
	}
}

// Decide returns whether the condition allows access and the rendered reason.
// Conditions missing from the table deny.
func (p Policy) Decide(c Condition, detail string) (bool, string) {
	rule, ok := p[c]
	if !ok {
		return false, fmt.Sprintf("no policy for %s", c)
	}
	if strings.Contains(rule.Reason, "%s") {
		return rule.Allow, fmt.Sprintf(rule.Reason, detail)
	}
	return rule.Allow, rule.Reason
}
