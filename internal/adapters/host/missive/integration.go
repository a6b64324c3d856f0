package missive

import (
	"context"
	"fmt"

	"github.com/tjfontaine/sidebar-gate/internal/adapters/events/hub"
	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

// Integration is the host integration object handed to the gate: selection
// events come from the hub and lookups go to the REST API.
type Integration struct {
	events *hub.Hub
	client *Client
}

var (
	_ ports.SelectionSubscriber = (*Integration)(nil)
	_ ports.ConversationFetcher = (*Integration)(nil)
	_ ports.MessageFetcher      = (*Integration)(nil)
)

// NewIntegration combines an event hub and a REST client.
func NewIntegration(events *hub.Hub, client *Client) (*Integration, error) {
	if events == nil {
		return nil, fmt.Errorf("event hub required")
	}
	if client == nil {
		return nil, fmt.Errorf("missive client required")
	}
	return &Integration{events: events, client: client}, nil
}

func (i *Integration) Subscribe(event string, handler ports.SelectionHandler) (func(), error) {
	return i.events.Subscribe(event, handler)
}

func (i *Integration) FetchConversations(ctx context.Context, ids []string) ([]domain.Conversation, error) {
	return i.client.FetchConversations(ctx, ids)
}

func (i *Integration) FetchMessages(ctx context.Context, ids []string) ([]domain.Message, error) {
	return i.client.FetchMessages(ctx, ids)
}

// ConversationMessages returns the messages of conv, fetching the latest
// message when the conversation carries none.
func (i *Integration) ConversationMessages(ctx context.Context, conv domain.Conversation) ([]domain.Message, error) {
	if len(conv.Messages) > 0 {
		return conv.Messages, nil
	}
	if conv.LatestMessage == nil || conv.LatestMessage.ID == "" {
		return nil, nil
	}
	return i.client.FetchMessages(ctx, []string{conv.LatestMessage.ID})
}
