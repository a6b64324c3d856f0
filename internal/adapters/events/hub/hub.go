// Package hub provides an in-process selection event hub. The sidebar reports
// selection changes to the server, which publishes them to subscribers such
// as the tenant verifier.
package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

// Hub implements ports.SelectionSubscriber for single-instance deployments.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	next     uint64
	handlers map[string]map[uint64]ports.SelectionHandler
	closed   bool
}

var _ ports.SelectionSubscriber = (*Hub)(nil)

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		handlers: make(map[string]map[uint64]ports.SelectionHandler),
	}
}

// Subscribe registers handler for event. The returned function removes it and
// may be called any number of times.
func (h *Hub) Subscribe(event string, handler ports.SelectionHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("event hub closed")
	}

	id := h.next
	h.next++
	if h.handlers[event] == nil {
		h.handlers[event] = make(map[uint64]ports.SelectionHandler)
	}
	h.handlers[event][id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers[event], id)
	}, nil
}

// Publish delivers ids to every current subscriber of event and returns how
// many handlers ran. Handlers run on the caller's goroutine, outside the lock.
func (h *Hub) Publish(event string, ids []string) int {
	h.mu.Lock()
	handlers := make([]ports.SelectionHandler, 0, len(h.handlers[event]))
	for _, fn := range h.handlers[event] {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(append([]string(nil), ids...))
	}

	h.logger.Debug("selection event published",
		slog.String("event", event),
		slog.Int("ids", len(ids)),
		slog.Int("subscribers", len(handlers)))
	return len(handlers)
}

// Subscribers returns the number of handlers registered for event.
func (h *Hub) Subscribers(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[event])
}

// Close drops every subscription and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.handlers = make(map[string]map[uint64]ports.SelectionHandler)
	return nil
}
