package dedupe

import (
	"context"
	"sync"
	"time"
)

// MemoryDedupe keeps seen ids in process memory. Entries expire after ttl;
// a zero ttl keeps them forever.
type MemoryDedupe struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	items map[string]time.Time // id -> expiry
}

func NewMemoryDedupe(ttl time.Duration) *MemoryDedupe {
	return &MemoryDedupe{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]time.Time, 1024),
	}
}

func (m *MemoryDedupe) Seen(_ context.Context, id string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.items[id]; ok && (exp.IsZero() || exp.After(now)) {
		return true, nil
	}

	var exp time.Time
	if m.ttl > 0 {
		exp = now.Add(m.ttl)
	}
	m.items[id] = exp

	return false, nil
}

func (m *MemoryDedupe) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries
func (m *MemoryDedupe) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, exp := range m.items {
		if !exp.IsZero() && !exp.After(now) {
			delete(m.items, id)
			removed++
		}
	}
	return removed
}
