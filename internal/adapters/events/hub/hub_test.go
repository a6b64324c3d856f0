package hub

import (
	"sync"
	"testing"

	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

func TestHub_PublishToSubscribers(t *testing.T) {
	h := New(nil)

	var got [][]string
	unsubscribe, err := h.Subscribe(ports.EventSelectionChanged, func(ids []string) {
		got = append(got, ids)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if n := h.Publish(ports.EventSelectionChanged, []string{"a", "b"}); n != 1 {
		t.Errorf("Publish() delivered to %d, want 1", n)
	}
	if n := h.Publish("other:event", []string{"c"}); n != 0 {
		t.Errorf("Publish(other) delivered to %d, want 0", n)
	}

	unsubscribe()
	unsubscribe()

	if n := h.Publish(ports.EventSelectionChanged, []string{"d"}); n != 0 {
		t.Errorf("Publish() after unsubscribe delivered to %d", n)
	}
	if len(got) != 1 || len(got[0]) != 2 || got[0][0] != "a" {
		t.Errorf("handler saw %v", got)
	}
}

func TestHub_HandlerCanUnsubscribeItself(t *testing.T) {
	h := New(nil)

	var unsubscribe func()
	calls := 0
	unsubscribe, _ = h.Subscribe(ports.EventSelectionChanged, func(ids []string) {
		calls++
		unsubscribe()
	})

	h.Publish(ports.EventSelectionChanged, []string{"a"})
	h.Publish(ports.EventSelectionChanged, []string{"b"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if h.Subscribers(ports.EventSelectionChanged) != 0 {
		t.Error("expected no subscribers")
	}
}

func TestHub_Close(t *testing.T) {
	h := New(nil)
	h.Subscribe(ports.EventSelectionChanged, func([]string) {})

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if h.Subscribers(ports.EventSelectionChanged) != 0 {
		t.Error("Close() should drop subscribers")
	}
	if _, err := h.Subscribe(ports.EventSelectionChanged, func([]string) {}); err == nil {
		t.Error("Subscribe() after Close() should fail")
	}
}

func TestHub_NilHandler(t *testing.T) {
	if _, err := New(nil).Subscribe(ports.EventSelectionChanged, nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	h := New(nil)

	var mu sync.Mutex
	delivered := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe, err := h.Subscribe(ports.EventSelectionChanged, func([]string) {
				mu.Lock()
				delivered++
				mu.Unlock()
			})
			if err != nil {
				t.Errorf("Subscribe() error = %v", err)
				return
			}
			defer unsubscribe()
		}()
		go func() {
			defer wg.Done()
			h.Publish(ports.EventSelectionChanged, []string{"x"})
		}()
	}
	wg.Wait()

	if h.Subscribers(ports.EventSelectionChanged) != 0 {
		t.Errorf("subscribers = %d, want 0", h.Subscribers(ports.EventSelectionChanged))
	}
}
