// Package audit keeps a bounded, append-only record of gate decisions and
// mirrors it to a durable key-value store on a best-effort basis. Snapshots are
// written by one background writer, so a slow store never delays a decision.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

const (
	DefaultCapacity = 50
	DefaultKey      = "security_logs"

	persistTimeout = 2 * time.Second
)

// Log is a bounded FIFO of audit entries. Size never exceeds the capacity; the
// oldest entry is evicted first.
type Log struct {
	capacity int
	key      string
	store    ports.KVStore
	logger   *slog.Logger

	mu      sync.Mutex
	entries []domain.AuditEntry

	// Writer state. Only the newest unwritten snapshot is kept.
	wmu     sync.Mutex
	flushed *sync.Cond
	pending []domain.AuditEntry
	queued  uint64
	written uint64
	closed  bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity sets the number of retained entries.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithStore mirrors the log to a durable store.
func WithStore(store ports.KVStore) Option {
	return func(l *Log) {
		l.store = store
	}
}

// WithKey sets the store key the log is persisted under.
func WithKey(key string) Option {
	return func(l *Log) {
		if key != "" {
			l.key = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates an empty log. With a store it starts the background writer,
// which Close stops.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		key:      DefaultKey,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.flushed = sync.NewCond(&l.wmu)
	if l.store != nil {
		l.wake = make(chan struct{}, 1)
		l.quit = make(chan struct{})
		l.done = make(chan struct{})
		go l.run()
	}
	return l
}

// Load restores previously persisted entries. A missing key is not an error.
// Only the most recent entries up to the capacity are kept.
func (l *Log) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	raw, found, err := l.store.Get(ctx, l.key)
	if err != nil {
		return fmt.Errorf("load audit log: %w", err)
	}
	if !found || len(raw) == 0 {
		return nil
	}

	var entries []domain.AuditEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode audit log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	l.trim()
	return nil
}

// Record appends an entry, evicts beyond capacity and queues the log for
// persistence. It never waits on the store. Persistence failures are logged
// and never returned.
func (l *Log) Record(_ context.Context, entry domain.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	l.trim()

	if l.store != nil {
		snapshot := make([]domain.AuditEntry, len(l.entries))
		copy(snapshot, l.entries)
		l.enqueue(snapshot)
	}
}

// Flush waits until every snapshot queued before the call has been handed to
// the store, or ctx is done.
func (l *Log) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		l.wmu.Lock()
		l.flushed.Broadcast()
		l.wmu.Unlock()
	})
	defer stop()

	target := l.queued
	for l.written < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.flushed.Wait()
	}
	return nil
}

// Close writes the last queued snapshot and stops the writer. Entries
// recorded afterwards are kept in memory only.
func (l *Log) Close() error {
	if l.store == nil {
		return nil
	}

	l.wmu.Lock()
	if l.closed {
		l.wmu.Unlock()
		return nil
	}
	l.closed = true
	l.wmu.Unlock()

	close(l.quit)
	<-l.done
	return nil
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Size returns the number of retained entries.
func (l *Log) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return l.capacity
}

// trim evicts the oldest entries. Callers hold l.mu.
func (l *Log) trim() {
	if over := len(l.entries) - l.capacity; over > 0 {
		kept := make([]domain.AuditEntry, l.capacity)
		copy(kept, l.entries[over:])
		l.entries = kept
	}
}

// enqueue replaces the pending snapshot. Callers hold l.mu so snapshots are
// queued in record order.
func (l *Log) enqueue(snapshot []domain.AuditEntry) {
	l.wmu.Lock()
	if l.closed {
		l.wmu.Unlock()
		return
	}
	l.pending = snapshot
	l.queued++
	l.wmu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Log) run() {
	defer close(l.done)
	for {
		select {
		case <-l.wake:
			l.writePending()
		case <-l.quit:
			l.writePending()
			return
		}
	}
}

func (l *Log) writePending() {
	l.wmu.Lock()
	snapshot, seq := l.pending, l.queued
	l.pending = nil
	l.wmu.Unlock()

	if snapshot != nil {
		if err := l.persist(snapshot); err != nil {
			l.logger.Warn("failed to persist audit log",
				slog.String("key", l.key),
				slog.String("error", err.Error()))
		}
	}

	l.wmu.Lock()
	l.written = seq
	l.flushed.Broadcast()
	l.wmu.Unlock()
}

// persist writes the whole log under one key.
func (l *Log) persist(entries []domain.AuditEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := l.store.Set(ctx, l.key, raw); err != nil {
		return fmt.Errorf("store audit log: %w", err)
	}
	return nil
}
