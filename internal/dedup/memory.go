package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store with horizon-based eviction. Entries older
// than the retention window are swept on use, so the map stays bounded by
// the trigger volume of the last two days.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	retention time.Duration
	entries   map[string]time.Time
}

// NewMemory creates an in-memory store with the default retention.
func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		retention: Retention,
		entries:   make(map[string]time.Time),
	}
}

func (m *Memory) MarkOnce(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, at := range m.entries {
		if now.Sub(at) > m.retention {
			delete(m.entries, k)
		}
	}

	if _, ok := m.entries[key]; ok {
		return false, nil
	}

	m.entries[key] = now
	return true, nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
