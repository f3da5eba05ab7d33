package broker

import (
	"sort"
	"strings"
	"sync"
)

// Manager is the top-level registry from spec.md §4.6: it owns the set
// of live Queues by name and arbitrates creation, lookup, listing, and
// deletion. Manager's own lock only ever guards the registry map; it is
// never held while a Queue operation runs, so two different queues make
// progress independently and a long-poll parked on one queue never
// blocks work on another.
type Manager struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	clock  Clock
}

// NewManager constructs an empty registry driven by clock. Production
// callers pass SystemClock{}; tests pass a ManualClock for deterministic
// control over delays, visibility expiry, and retention.
func NewManager(clock Clock) *Manager {
	return &Manager{queues: make(map[string]*Queue), clock: clock}
}

// CreateQueue implements spec.md §4.6's idempotent-create semantics:
// creating a queue that already exists with identical attributes
// succeeds and returns the existing Queue; creating one with the same
// name but different attributes fails with QueueAlreadyExists.
func (m *Manager) CreateQueue(cfg Config) (*Queue, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.queues[cfg.Name]; ok {
		if !existing.Config().Equal(cfg) {
			return nil, ErrQueueAlreadyExists(cfg.Name)
		}
		return existing, nil
	}

	q := newQueue(cfg, m.clock, m.clock.NowMillis())
	m.queues[cfg.Name] = q
	return q, nil
}

// GetQueue looks up a live queue by name. Deletion is terminal: once a
// queue is removed its name can be reused by a later CreateQueue, which
// allocates a brand new Queue rather than resurrecting the old one.
func (m *Manager) GetQueue(name string) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	if !ok {
		return nil, ErrQueueDoesNotExist(name)
	}
	return q, nil
}

// DeleteQueue removes a queue from the registry and marks it deleted, per
// spec.md §4.6's "deletion is terminal" rule: any receive already parked
// on this queue (holding a reference to the *Queue, not the registry)
// wakes immediately and returns QueueDoesNotExist rather than blocking
// until its own wait deadline.
func (m *Manager) DeleteQueue(name string) error {
	m.mu.Lock()
	q, ok := m.queues[name]
	if !ok {
		m.mu.Unlock()
		return ErrQueueDoesNotExist(name)
	}
	delete(m.queues, name)
	m.mu.Unlock()

	q.MarkDeleted()
	return nil
}

// ListQueues returns queue names sorted lexically, optionally filtered
// to those with the given prefix (prefix == "" means no filter).
func (m *Manager) ListQueues(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
