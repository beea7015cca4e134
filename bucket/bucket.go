package bucket

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("object not found")

// A flat object store. Keys are slash separated paths such as
// "bus_daily_summaries/2022-06-06.csv".
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Creates or overwrites the object.
	Put(ctx context.Context, key string, data []byte) error

	// Keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Rejects keys that could escape the bucket or collide after
// cleaning.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("invalid key '%s'", key)
	}
	if path.Clean(key) != key || strings.HasPrefix(key, "../") || key == ".." {
		return fmt.Errorf("invalid key '%s'", key)
	}
	return nil
}

type Memory struct {
	objects map[string][]byte

	mutex sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, found := m.objects[key]
	if !found {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte{}, data...), nil
}

func (m *Memory) Put(ctx context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.objects[key] = append([]byte{}, data...)
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	keys := []string{}
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
