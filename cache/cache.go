package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Byte cache for derived data, such as per version schedule
// summaries. A zero ttl never expires.
type Cache interface {
	// Returns the cached value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache key for a schedule version's summary at the given
// granularity ("route" or "direction").
func SummaryKey(version string, granularity string) string {
	return fmt.Sprintf("ghostbus:schedule:%s:%s", version, granularity)
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

type Memory struct {
	entries map[string]memoryEntry
	now     func() time.Time

	mutex sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, found := m.entries[key]
	if !found {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte{}, e.value...), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e := memoryEntry{value: append([]byte{}, value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}
