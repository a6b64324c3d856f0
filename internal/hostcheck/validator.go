// Package hostcheck implements the synchronous heuristic checks that decide
// whether a request comes from an embedded instance of the host application.
package hostcheck

import (
	"net"
	"net/url"
	"strings"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

// Operation names reported by the capability probe.
const (
	OpSubscribe          = "Subscribe"
	OpFetchConversations = "FetchConversations"
	OpFetchMessages      = "FetchMessages"
)

// Rules configures the validator's allow and deny lists.
type Rules struct {
	// HostDomains are the domains allowed as referrer. Subdomains match.
	HostDomains []string
	// DevOrigins always pass the embedding and referrer checks.
	DevOrigins []string
	// ClientAllow lists expected client signature fragments.
	ClientAllow []string
	// ClientDeny lists automation markers. Deny wins over allow.
	ClientDeny []string
}

// DefaultRules returns the rules for the Missive host.
func DefaultRules() Rules {
	return Rules{
		HostDomains: []string{"missiveapp.com", "mail.missiveapp.com", "app.missiveapp.com", "missive.com"},
		DevOrigins:  []string{"localhost", "127.0.0.1", "::1"},
		ClientAllow: []string{"electron", "missive", "chrome", "safari", "firefox"},
		ClientDeny:  []string{"bot", "crawler", "spider", "scraper", "headless", "phantom", "selenium", "playwright", "puppeteer"},
	}
}

// Validator runs the host context checks. It holds no mutable state.
type Validator struct {
	rules Rules
}

// New creates a validator. Empty lists fall back to the defaults.
func New(rules Rules) *Validator {
	def := DefaultRules()
	if len(rules.HostDomains) == 0 {
		rules.HostDomains = def.HostDomains
	}
	if len(rules.DevOrigins) == 0 {
		rules.DevOrigins = def.DevOrigins
	}
	if len(rules.ClientAllow) == 0 {
		rules.ClientAllow = def.ClientAllow
	}
	if len(rules.ClientDeny) == 0 {
		rules.ClientDeny = def.ClientDeny
	}
	return &Validator{rules: normalize(rules)}
}

func normalize(r Rules) Rules {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return Rules{
		HostDomains: lower(r.HostDomains),
		DevOrigins:  lower(r.DevOrigins),
		ClientAllow: lower(r.ClientAllow),
		ClientDeny:  lower(r.ClientDeny),
	}
}

// Validate runs every check. The checks are independent of each other.
func (v *Validator) Validate(hc ports.HostContext) []domain.CheckResult {
	return []domain.CheckResult{
		v.CheckEmbedding(hc),
		v.CheckReferrer(hc),
		v.CheckClientSignature(hc),
		v.CheckCapabilities(hc),
	}
}

// CheckEmbedding fails when the sidebar is opened directly instead of inside a
// host frame.
func (v *Validator) CheckEmbedding(hc ports.HostContext) domain.CheckResult {
	if v.isDevOrigin(hc.OriginHost) {
		return domain.Pass(domain.CheckEmbedding, "development environment: local origin allowed")
	}
	if !hc.Embedded {
		return domain.Fail(domain.CheckEmbedding, "not running in an embedded frame (direct access detected)")
	}
	return domain.Pass(domain.CheckEmbedding, "valid embedded context")
}

// CheckReferrer requires the referring document to belong to the host.
func (v *Validator) CheckReferrer(hc ports.HostContext) domain.CheckResult {
	host := referrerHost(hc.Referrer)
	if host == "" {
		return domain.Fail(domain.CheckReferrer, "invalid referrer: (empty)")
	}
	if v.isDevOrigin(host) {
		return domain.Pass(domain.CheckReferrer, "development environment")
	}
	for _, d := range v.rules.HostDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return domain.Pass(domain.CheckReferrer, "valid referrer")
		}
	}
	return domain.Fail(domain.CheckReferrer, "invalid referrer: "+host)
}

// CheckClientSignature rejects automation clients and unknown clients.
func (v *Validator) CheckClientSignature(hc ports.HostContext) domain.CheckResult {
	sig := strings.ToLower(hc.ClientSignature)
	for _, marker := range v.rules.ClientDeny {
		if strings.Contains(sig, marker) {
			return domain.Fail(domain.CheckClientSignature, "suspicious client signature detected: "+sig)
		}
	}
	for _, want := range v.rules.ClientAllow {
		if strings.Contains(sig, want) {
			return domain.Pass(domain.CheckClientSignature, "valid client signature")
		}
	}
	return domain.Fail(domain.CheckClientSignature, "invalid client signature: "+sig)
}

// CheckCapabilities requires the host integration to expose every operation the
// gate and the sidebar depend on.
func (v *Validator) CheckCapabilities(hc ports.HostContext) domain.CheckResult {
	if hc.Integration == nil {
		return domain.Fail(domain.CheckCapabilities, "host integration API not available")
	}
	if missing := MissingOperations(hc.Integration); len(missing) > 0 {
		return domain.Fail(domain.CheckCapabilities, "missing host integration operations: "+strings.Join(missing, ", "))
	}
	return domain.Pass(domain.CheckCapabilities, "valid host integration")
}

// MissingOperations lists the required operations the integration lacks, in a
// fixed order.
func MissingOperations(integration any) []string {
	if integration == nil {
		return []string{OpSubscribe, OpFetchConversations, OpFetchMessages}
	}
	var missing []string
	if _, ok := integration.(ports.SelectionSubscriber); !ok {
		missing = append(missing, OpSubscribe)
	}
	if _, ok := integration.(ports.ConversationFetcher); !ok {
		missing = append(missing, OpFetchConversations)
	}
	if _, ok := integration.(ports.MessageFetcher); !ok {
		missing = append(missing, OpFetchMessages)
	}
	return missing
}

func (v *Validator) isDevOrigin(host string) bool {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	for _, dev := range v.rules.DevOrigins {
		if host == dev {
			return true
		}
	}
	return false
}

// referrerHost extracts the lowercase host of a referrer. Bare hostnames are
// accepted as well as full URLs.
func referrerHost(referrer string) string {
	referrer = strings.TrimSpace(strings.ToLower(referrer))
	if referrer == "" {
		return ""
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
