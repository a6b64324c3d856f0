package domain

import (
	"time"
)

// TenantRecord identifies the organization attached to the active selection.
type TenantRecord struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// DisplayName returns the tenant name, or "unknown" when the host did not send one.
func (t *TenantRecord) DisplayName() string {
	if t == nil || t.Name == "" {
		return "unknown"
	}
	return t.Name
}

// SelectionContext is what the sidebar knows about the currently selected
// conversations. A nil *SelectionContext means nothing has been selected yet
// (application startup). A non-nil selection with a nil Tenant is a personal
// account or a conversation without an organization.
type SelectionContext struct {
	ConversationIDs []string      `json:"conversation_ids,omitempty"`
	Tenant          *TenantRecord `json:"tenant,omitempty"`
}

// Conversation is a conversation record returned by the host batch fetch.
type Conversation struct {
	ID            string        `json:"id"`
	Subject       string        `json:"subject,omitempty"`
	Organization  *TenantRecord `json:"organization,omitempty"`
	Messages      []Message     `json:"messages,omitempty"`
	LatestMessage *Message      `json:"latest_message,omitempty"`
}

// Message is a message record returned by the host batch fetch.
type Message struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject,omitempty"`
	Preview     string   `json:"preview,omitempty"`
	Body        string   `json:"body,omitempty"`
	From        *Address `json:"from_field,omitempty"`
	DeliveredAt int64    `json:"delivered_at,omitempty"`
}

// Address is an email participant.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Delivered returns the delivery time, or the zero time when unknown.
func (m Message) Delivered() time.Time {
	if m.DeliveredAt == 0 {
		return time.Time{}
	}
	return time.Unix(m.DeliveredAt, 0).UTC()
}
