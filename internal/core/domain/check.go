package domain

import (
	"time"
)

// Check names used in gate decisions.
const (
	CheckEmbedding       = "embedding"
	CheckReferrer        = "referrer"
	CheckClientSignature = "client_signature"
	CheckCapabilities    = "capabilities"
	CheckRateLimit       = "rate_limit"
	CheckTenant          = "tenant"
)

// CheckResult is the outcome of a single gate check.
// Results are values and are never modified after they are produced.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Pass builds a passing result.
func Pass(name, reason string) CheckResult {
	return CheckResult{Name: name, Passed: true, Reason: reason}
}

// Fail builds a failing result.
func Fail(name, reason string) CheckResult {
	return CheckResult{Name: name, Reason: reason}
}

// Skip builds a result for a check that was never run. Skipped checks count as
// not passed.
func Skip(name, reason string) CheckResult {
	return CheckResult{Name: name, Reason: reason, Skipped: true}
}

// GateDecision is the full record of one access decision.
type GateDecision struct {
	Checks    []CheckResult `json:"checks"`
	Passed    bool          `json:"passed"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewDecision builds a decision from checks in evaluation order. Passed is the
// logical AND of every check; a decision with no checks does not pass.
func NewDecision(ts time.Time, checks ...CheckResult) GateDecision {
	cp := make([]CheckResult, len(checks))
	copy(cp, checks)

	passed := len(cp) > 0
	for _, c := range cp {
		if !c.Passed {
			passed = false
			break
		}
	}

	return GateDecision{
		Checks:    cp,
		Passed:    passed,
		Timestamp: ts,
	}
}

// Get returns the named check.
func (d GateDecision) Get(name string) (CheckResult, bool) {
	for _, c := range d.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Failures returns the checks that ran and failed, in evaluation order.
func (d GateDecision) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range d.Checks {
		if !c.Passed && !c.Skipped {
			out = append(out, c)
		}
	}
	return out
}
