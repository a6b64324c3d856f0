package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/storage/memory"
)

func entry(i int) domain.AuditEntry {
	ts := time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
	return domain.AuditEntry{
		ID:        fmt.Sprintf("entry-%d", i),
		Timestamp: ts,
		Host:      domain.HostSnapshot{Embedded: true, Origin: "app.missiveapp.com"},
		Decision:  domain.NewDecision(ts, domain.Pass(domain.CheckEmbedding, "ok")),
	}
}

type failingStore struct {
	sets atomic.Int32
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	f.sets.Add(1)
	return errors.New("store unavailable")
}

func (f *failingStore) Close() error { return nil }

// blockingStore holds every write until release is closed.
type blockingStore struct {
	release chan struct{}

	mu   sync.Mutex
	sets int
	last []byte
}

func (b *blockingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (b *blockingStore) Set(ctx context.Context, key string, value []byte) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets++
	b.last = value
	return nil
}

func (b *blockingStore) Close() error { return nil }

func newStoredLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	log := New(opts...)
	t.Cleanup(func() { log.Close() })
	return log
}

func flush(t *testing.T, log *Log) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := log.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLog_BoundedFIFO(t *testing.T) {
	log := New()
	for i := 0; i < 60; i++ {
		log.Record(context.Background(), entry(i))
	}

	if log.Size() != DefaultCapacity {
		t.Fatalf("Size() = %d, want %d", log.Size(), DefaultCapacity)
	}
	entries := log.Entries()
	if entries[0].ID != "entry-10" {
		t.Errorf("oldest entry = %s, want entry-10", entries[0].ID)
	}
	if entries[len(entries)-1].ID != "entry-59" {
		t.Errorf("newest entry = %s, want entry-59", entries[len(entries)-1].ID)
	}
}

func TestLog_EntriesIsCopy(t *testing.T) {
	log := New(WithCapacity(3))
	log.Record(context.Background(), entry(1))

	entries := log.Entries()
	entries[0].ID = "mutated"

	if got := log.Entries()[0].ID; got != "entry-1" {
		t.Errorf("Entries() exposed internal state, got %s", got)
	}
}

func TestLog_PersistAndLoad(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	log := newStoredLog(t, WithStore(store), WithCapacity(5))
	for i := 0; i < 7; i++ {
		log.Record(ctx, entry(i))
	}
	flush(t, log)

	raw, found, err := store.Get(ctx, DefaultKey)
	if err != nil || !found {
		t.Fatalf("expected persisted snapshot, found = %v, err = %v", found, err)
	}
	var persisted []domain.AuditEntry
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(persisted) != 5 {
		t.Fatalf("persisted %d entries, want 5", len(persisted))
	}

	// A smaller log restored from the same key keeps only the newest entries.
	restored := newStoredLog(t, WithStore(store), WithCapacity(3))
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	entries := restored.Entries()
	if len(entries) != 3 {
		t.Fatalf("restored %d entries, want 3", len(entries))
	}
	if entries[0].ID != "entry-4" || entries[2].ID != "entry-6" {
		t.Errorf("restored = %s..%s, want entry-4..entry-6", entries[0].ID, entries[2].ID)
	}
	if !entries[2].Decision.Passed {
		t.Error("restored decision lost its outcome")
	}
}

func TestLog_CustomKey(t *testing.T) {
	store := memory.New()
	log := newStoredLog(t, WithStore(store), WithKey("gate_audit"))
	log.Record(context.Background(), entry(1))
	flush(t, log)

	if _, found, _ := store.Get(context.Background(), "gate_audit"); !found {
		t.Error("expected snapshot under custom key")
	}
	if _, found, _ := store.Get(context.Background(), DefaultKey); found {
		t.Error("default key should be unused")
	}
}

func TestLog_StoreFailureIsSwallowed(t *testing.T) {
	store := &failingStore{}
	log := newStoredLog(t, WithStore(store), WithLogger(quietLogger()))

	log.Record(context.Background(), entry(1))
	log.Record(context.Background(), entry(2))
	flush(t, log)

	if log.Size() != 2 {
		t.Errorf("Size() = %d, want 2", log.Size())
	}
	if got := store.sets.Load(); got < 1 || got > 2 {
		t.Errorf("store writes = %d, want 1 or 2", got)
	}
	if err := log.Load(context.Background()); err == nil {
		t.Error("Load() should report store failure")
	}
}

func TestLog_RecordWithCancelledContext(t *testing.T) {
	store := memory.New()
	log := newStoredLog(t, WithStore(store))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log.Record(ctx, entry(1))
	flush(t, log)

	if _, found, _ := store.Get(context.Background(), DefaultKey); !found {
		t.Error("expected persistence to ignore caller cancellation")
	}
}

func TestLog_LoadMissingKey(t *testing.T) {
	log := newStoredLog(t, WithStore(memory.New()))
	if err := log.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if log.Size() != 0 {
		t.Errorf("Size() = %d, want 0", log.Size())
	}
}

func TestLog_LoadCorrupt(t *testing.T) {
	store := memory.New()
	store.Set(context.Background(), DefaultKey, []byte("{not json"))

	log := newStoredLog(t, WithStore(store))
	if err := log.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
	if log.Size() != 0 {
		t.Errorf("Size() = %d, want 0", log.Size())
	}
}

func TestLog_SlowStoreDoesNotBlockRecord(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	log := newStoredLog(t, WithStore(store), WithLogger(quietLogger()))

	const writers = 8
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.Record(context.Background(), entry(i))
		}(i)
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("%d concurrent records took %v with a blocked store", writers, elapsed)
	}
	if log.Size() != writers {
		t.Errorf("Size() = %d, want %d", log.Size(), writers)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := log.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() with blocked store = %v, want deadline exceeded", err)
	}

	close(store.release)
	flush(t, log)

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.sets < 1 || store.sets > writers {
		t.Errorf("store writes = %d", store.sets)
	}
	var persisted []domain.AuditEntry
	if err := json.Unmarshal(store.last, &persisted); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(persisted) != writers {
		t.Errorf("last snapshot has %d entries, want %d", len(persisted), writers)
	}
}

func TestLog_CloseWritesLastSnapshot(t *testing.T) {
	store := memory.New()
	log := New(WithStore(store), WithCapacity(3))
	for i := 0; i < 5; i++ {
		log.Record(context.Background(), entry(i))
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw, found, err := store.Get(context.Background(), DefaultKey)
	if err != nil || !found {
		t.Fatalf("expected persisted snapshot, found = %v, err = %v", found, err)
	}
	var persisted []domain.AuditEntry
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(persisted) != 3 || persisted[2].ID != "entry-4" {
		t.Errorf("persisted = %v, want entry-2..entry-4", persisted)
	}

	// Closed logs keep recording in memory and Close is idempotent.
	log.Record(context.Background(), entry(5))
	if log.Size() != 3 {
		t.Errorf("Size() = %d, want 3", log.Size())
	}
	if err := log.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := log.Flush(context.Background()); err != nil {
		t.Errorf("Flush() after Close() = %v", err)
	}
}
