package downloader

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memory keeps downloaded schedule zips in process memory. Concurrent
// misses on one URL share a single download.
type Memory struct {
	TimeNow func() time.Time

	mu      sync.Mutex
	entries map[string]cachedBody
	flight  singleflight.Group
}

type cachedBody struct {
	body    []byte
	expires time.Time // zero: never
}

func NewMemory() *Memory {
	return &Memory{
		TimeNow: time.Now,
		entries: map[string]cachedBody{},
	}
}

func (m *Memory) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	if body, ok := m.lookup(url); ok {
		return body, nil
	}

	v, err, _ := m.flight.Do(url, func() (interface{}, error) {
		body, err := HTTPGet(ctx, url, headers, options)
		if err != nil {
			return nil, err
		}
		m.store(url, body, options.CacheTTL)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (m *Memory) lookup(url string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[url]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !e.expires.After(m.TimeNow()) {
		delete(m.entries, url)
		return nil, false
	}
	return e.body, true
}

func (m *Memory) store(url string, body []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.TimeNow()
	for k, e := range m.entries {
		if !e.expires.IsZero() && !e.expires.After(now) {
			delete(m.entries, k)
		}
	}

	e := cachedBody{body: body}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.entries[url] = e
}
