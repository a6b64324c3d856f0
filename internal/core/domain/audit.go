package domain

import (
	"time"
)

// HostSnapshot captures the host facts a decision was made against.
type HostSnapshot struct {
	Embedded        bool   `json:"embedded"`
	Origin          string `json:"origin,omitempty"`
	Referrer        string `json:"referrer,omitempty"`
	ClientSignature string `json:"client_signature,omitempty"`
}

// AuditEntry is one recorded gate decision.
type AuditEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Host      HostSnapshot `json:"host"`
	Decision  GateDecision `json:"decision"`
}
