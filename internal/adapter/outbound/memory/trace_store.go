// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"caprouter/internal/domain/trace"
)

const (
	// DefaultMaxTraces is the default store capacity.
	DefaultMaxTraces = 1000
	// DefaultTraceTTL is the default per-trace time-to-live.
	DefaultTraceTTL = 15 * time.Minute
)

// entry pairs a Trace with its creation time, tracked separately from
// Trace.CreatedAt so tests can construct traces without a clock dependency.
type entry struct {
	t         *trace.Trace
	createdAt time.Time
}

// TraceStore is a capacity- and TTL-bounded, insertion-ordered log of
// decision traces: a bounded FIFO (mutex + map + order slice, oldest-first
// eviction) generalized with a TTL sweep that runs on every Create.
type TraceStore struct {
	mu        sync.Mutex
	entries   map[string]*entry
	order     []string // insertion order, oldest first
	maxTraces int
	ttl       time.Duration
	now       func() time.Time
}

// Option configures a TraceStore.
type Option func(*TraceStore)

// WithCapacity overrides the default maximum trace count.
func WithCapacity(n int) Option {
	return func(s *TraceStore) {
		if n >= 1 {
			s.maxTraces = n
		}
	}
}

// WithTTL overrides the default trace time-to-live.
func WithTTL(d time.Duration) Option {
	return func(s *TraceStore) {
		if d >= time.Millisecond {
			s.ttl = d
		}
	}
}

// withClock overrides the time source; used by tests for deterministic TTL checks.
func withClock(now func() time.Time) Option {
	return func(s *TraceStore) { s.now = now }
}

// NewTraceStore creates a TraceStore with the given options, defaulting to
// 1000 traces / 15 minute TTL.
func NewTraceStore(opts ...Option) *TraceStore {
	s := &TraceStore{
		entries:   make(map[string]*entry),
		maxTraces: DefaultMaxTraces,
		ttl:       DefaultTraceTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create prunes expired entries, registers a new trace, then evicts from
// the head until the store holds at most maxTraces traces.
func (s *TraceStore) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneExpiredLocked(now)

	id := uuid.New().String()
	s.entries[id] = &entry{
		t:         &trace.Trace{ID: id, CreatedAt: now},
		createdAt: now,
	}
	s.order = append(s.order, id)

	for len(s.order) > s.maxTraces {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}

	return id
}

// Record appends an event to the named trace. No-op if unknown or expired.
func (s *TraceStore) Record(id string, eventType trace.EventType, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	if s.expiredLocked(e, s.now()) {
		s.deleteLocked(id)
		return
	}
	e.t.Events = append(e.t.Events, trace.Event{
		Ts:   s.now(),
		Type: eventType,
		Data: data,
	})
}

// Get returns the trace if present and not expired.
func (s *TraceStore) Get(id string) (*trace.Trace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if s.expiredLocked(e, s.now()) {
		s.deleteLocked(id)
		return nil, false
	}
	return e.t, true
}

// Size reports the current trace count. Useful for tests.
func (s *TraceStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *TraceStore) expiredLocked(e *entry, now time.Time) bool {
	return now.Sub(e.createdAt) > s.ttl
}

func (s *TraceStore) deleteLocked(id string) {
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *TraceStore) pruneExpiredLocked(now time.Time) {
	if len(s.order) == 0 {
		return
	}
	kept := s.order[:0:0]
	for _, id := range s.order {
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		if s.expiredLocked(e, now) {
			delete(s.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Compile-time interface verification.
var _ trace.Store = (*TraceStore)(nil)
