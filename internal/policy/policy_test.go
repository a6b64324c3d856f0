package policy

import (
	"strings"
	"testing"
)

func TestDefault_IsFailOpen(t *testing.T) {
	p := Default()

	tests := []struct {
		cond   Condition
		detail string
		allow  bool
		reason string
	}{
		{ConditionVerified, "Acme Freight", true, "tenant verified: Acme Freight"},
		{ConditionMismatch, "the authorized organization", false, "Unauthorized tenant: this integration is restricted to the authorized organization"},
		{ConditionPersonal, "", true, "personal account"},
		{ConditionTimeout, "5s", true, "timed out after 5s: access allowed pending monitoring"},
		{ConditionFetchFailed, "boom", true, "tenant lookup failed (boom)"},
		{ConditionSubscribeFailed, "no bridge", false, "failed to set up tenant verification: no bridge"},
		{ConditionNotFound, "conv-1", false, "not found on the host: conv-1"},
		{ConditionCancelled, "context canceled", false, "tenant verification cancelled: context canceled"},
	}

	for _, tt := range tests {
		t.Run(string(tt.cond), func(t *testing.T) {
			allow, reason := p.Decide(tt.cond, tt.detail)
			if allow != tt.allow {
				t.Errorf("allow = %v, want %v", allow, tt.allow)
			}
			if !strings.Contains(reason, tt.reason) {
				t.Errorf("reason = %q, want it to contain %q", reason, tt.reason)
			}
		})
	}
}

func TestFailClosed(t *testing.T) {
	p := FailClosed()

	if allow, reason := p.Decide(ConditionTimeout, "5s"); allow || !strings.Contains(reason, "denied") {
		t.Errorf("timeout: allow = %v, reason = %q", allow, reason)
	}
	if allow, _ := p.Decide(ConditionFetchFailed, "x"); allow {
		t.Error("fetch failure should deny under fail-closed policy")
	}
	if allow, _ := p.Decide(ConditionPersonal, ""); !allow {
		t.Error("personal account exception should survive fail-closed policy")
	}

	// Default must be unaffected by building a fail-closed table.
	if allow, _ := Default().Decide(ConditionTimeout, "5s"); !allow {
		t.Error("Default() was mutated")
	}
}

func TestForTimeout(t *testing.T) {
	for _, name := range []string{"", "allow", "ALLOW"} {
		p, err := ForTimeout(name)
		if err != nil {
			t.Fatalf("ForTimeout(%q) error = %v", name, err)
		}
		if allow, _ := p.Decide(ConditionTimeout, "1s"); !allow {
			t.Errorf("ForTimeout(%q) should be fail-open", name)
		}
	}

	p, err := ForTimeout("deny")
	if err != nil {
		t.Fatalf("ForTimeout(deny) error = %v", err)
	}
	if allow, _ := p.Decide(ConditionTimeout, "1s"); allow {
		t.Error("ForTimeout(deny) should be fail-closed")
	}

	if _, err := ForTimeout("maybe"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestDecide_UnknownConditionDenies(t *testing.T) {
	allow, reason := Policy{}.Decide(ConditionVerified, "x")
	if allow {
		t.Error("missing rule should deny")
	}
	if !strings.Contains(reason, "no policy") {
		t.Errorf("reason = %q", reason)
	}
}
