package hostcheck

import (
	"context"
	"strings"
	"testing"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

type fullIntegration struct{}

func (fullIntegration) Subscribe(string, ports.SelectionHandler) (func(), error) {
	return func() {}, nil
}

func (fullIntegration) FetchConversations(context.Context, []string) ([]domain.Conversation, error) {
	return nil, nil
}

func (fullIntegration) FetchMessages(context.Context, []string) ([]domain.Message, error) {
	return nil, nil
}

// noMessages lacks the batch message fetch.
type noMessages struct{}

func (noMessages) Subscribe(string, ports.SelectionHandler) (func(), error) {
	return func() {}, nil
}

func (noMessages) FetchConversations(context.Context, []string) ([]domain.Conversation, error) {
	return nil, nil
}

const electronUA = "Mozilla/5.0 (Macintosh) AppleWebKit/537.36 Missive/10.4 Chrome/120.0 Electron/28.0 Safari/537.36"

func validHost() ports.HostContext {
	return ports.HostContext{
		Embedded:        true,
		OriginHost:      "sidebar.example.net",
		Referrer:        "https://mail.missiveapp.com/",
		ClientSignature: electronUA,
		Integration:     fullIntegration{},
	}
}

func TestValidate_AllPass(t *testing.T) {
	v := New(Rules{})
	results := v.Validate(validHost())

	if len(results) != 4 {
		t.Fatalf("Validate() returned %d results, want 4", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("%s failed: %s", r.Name, r.Reason)
		}
	}
}

func TestCheckEmbedding(t *testing.T) {
	v := New(Rules{})

	tests := []struct {
		name     string
		embedded bool
		origin   string
		want     bool
	}{
		{"embedded", true, "sidebar.example.net", true},
		{"direct access", false, "sidebar.example.net", false},
		{"localhost direct", false, "localhost:3000", true},
		{"loopback direct", false, "127.0.0.1", true},
		{"ipv6 loopback", false, "[::1]:8080", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := validHost()
			hc.Embedded = tt.embedded
			hc.OriginHost = tt.origin
			got := v.CheckEmbedding(hc)
			if got.Passed != tt.want {
				t.Errorf("CheckEmbedding() passed = %v, want %v (%s)", got.Passed, tt.want, got.Reason)
			}
			if got.Name != domain.CheckEmbedding {
				t.Errorf("Name = %q, want %q", got.Name, domain.CheckEmbedding)
			}
		})
	}
}

func TestCheckReferrer(t *testing.T) {
	v := New(Rules{})

	tests := []struct {
		referrer string
		want     bool
	}{
		{"https://mail.missiveapp.com/", true},
		{"https://missiveapp.com/inbox", true},
		{"https://eu.app.missiveapp.com", true},
		{"missive.com", true},
		{"http://localhost:3000/", true},
		{"http://127.0.0.1:8080", true},
		{"", false},
		{"https://evil.example.com/", false},
		{"https://missiveapp.com.evil.example/", false},
		{"https://notmissiveapp.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.referrer, func(t *testing.T) {
			hc := validHost()
			hc.Referrer = tt.referrer
			got := v.CheckReferrer(hc)
			if got.Passed != tt.want {
				t.Errorf("CheckReferrer(%q) passed = %v, want %v (%s)", tt.referrer, got.Passed, tt.want, got.Reason)
			}
		})
	}
}

func TestCheckClientSignature(t *testing.T) {
	v := New(Rules{})

	tests := []struct {
		name   string
		sig    string
		want   bool
		reason string
	}{
		{"electron", electronUA, true, "valid"},
		{"firefox", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0", true, "valid"},
		{"headless chrome", "Mozilla/5.0 HeadlessChrome/120.0", false, "suspicious"},
		{"crawler", "Googlebot/2.1", false, "suspicious"},
		{"puppeteer", "Mozilla/5.0 Chrome/120 Puppeteer", false, "suspicious"},
		{"curl", "curl/8.4.0", false, "invalid"},
		{"empty", "", false, "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := validHost()
			hc.ClientSignature = tt.sig
			got := v.CheckClientSignature(hc)
			if got.Passed != tt.want {
				t.Errorf("passed = %v, want %v (%s)", got.Passed, tt.want, got.Reason)
			}
			if !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestCheckCapabilities(t *testing.T) {
	v := New(Rules{})

	t.Run("complete integration", func(t *testing.T) {
		got := v.CheckCapabilities(validHost())
		if !got.Passed {
			t.Errorf("expected pass, got %s", got.Reason)
		}
	})

	t.Run("missing integration", func(t *testing.T) {
		hc := validHost()
		hc.Integration = nil
		got := v.CheckCapabilities(hc)
		if got.Passed {
			t.Fatal("expected failure without integration")
		}
		if !strings.Contains(got.Reason, "not available") {
			t.Errorf("Reason = %q", got.Reason)
		}
	})

	t.Run("missing message fetch", func(t *testing.T) {
		hc := validHost()
		hc.Integration = noMessages{}
		got := v.CheckCapabilities(hc)
		if got.Passed {
			t.Fatal("expected failure")
		}
		if !strings.Contains(got.Reason, OpFetchMessages) {
			t.Errorf("Reason = %q, want it to name %s", got.Reason, OpFetchMessages)
		}
		if strings.Contains(got.Reason, OpSubscribe) {
			t.Errorf("Reason = %q names an operation that is present", got.Reason)
		}
	})

	t.Run("unrelated object", func(t *testing.T) {
		missing := MissingOperations(struct{}{})
		want := []string{OpSubscribe, OpFetchConversations, OpFetchMessages}
		if strings.Join(missing, ",") != strings.Join(want, ",") {
			t.Errorf("MissingOperations() = %v, want %v", missing, want)
		}
	})
}

func TestCustomRules(t *testing.T) {
	v := New(Rules{HostDomains: []string{"Example.COM"}, ClientAllow: []string{"sidebar-agent"}})

	hc := validHost()
	hc.Referrer = "https://app.example.com/"
	hc.ClientSignature = "Sidebar-Agent/1.0"

	if r := v.CheckReferrer(hc); !r.Passed {
		t.Errorf("CheckReferrer() failed: %s", r.Reason)
	}
	if r := v.CheckClientSignature(hc); !r.Passed {
		t.Errorf("CheckClientSignature() failed: %s", r.Reason)
	}

	hc.Referrer = "https://mail.missiveapp.com/"
	if r := v.CheckReferrer(hc); r.Passed {
		t.Error("default host domains should be replaced by custom rules")
	}
}
