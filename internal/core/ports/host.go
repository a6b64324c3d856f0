package ports

import (
	"context"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
)

// EventSelectionChanged fires with the identifiers of the selected conversations.
const EventSelectionChanged = "change:conversations"

// HostContext is the set of ambient facts about the hosting application.
type HostContext struct {
	Embedded        bool
	OriginHost      string
	Referrer        string
	ClientSignature string
	// Integration is the host integration object. The gate discovers its
	// operations through the capability interfaces below.
	Integration any
}

// Snapshot returns the loggable part of the host context.
func (hc HostContext) Snapshot() domain.HostSnapshot {
	return domain.HostSnapshot{
		Embedded:        hc.Embedded,
		Origin:          hc.OriginHost,
		Referrer:        hc.Referrer,
		ClientSignature: hc.ClientSignature,
	}
}

// HostProbe reads the host context. Implementations must be read-only.
type HostProbe interface {
	Probe(ctx context.Context) HostContext
}

// HostProbeFunc adapts a function to HostProbe.
type HostProbeFunc func(ctx context.Context) HostContext

func (f HostProbeFunc) Probe(ctx context.Context) HostContext { return f(ctx) }

// SelectionHandler receives the identifiers carried by a selection event.
type SelectionHandler func(ids []string)

// SelectionSubscriber is the host's event subscription capability.
// The returned function removes the subscription and is safe to call more than once.
type SelectionSubscriber interface {
	Subscribe(event string, handler SelectionHandler) (unsubscribe func(), err error)
}

// ConversationFetcher is the host's batch conversation fetch capability.
type ConversationFetcher interface {
	FetchConversations(ctx context.Context, ids []string) ([]domain.Conversation, error)
}

// MessageFetcher is the host's batch message fetch capability.
type MessageFetcher interface {
	FetchMessages(ctx context.Context, ids []string) ([]domain.Message, error)
}
