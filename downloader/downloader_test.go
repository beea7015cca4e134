package downloader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihacknight/chn-ghost-buses/downloader"
)

// Serves body, failing the first `failures` requests with status.
func flakyServer(t *testing.T, failures int32, status int, body string) (*httptest.Server, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(body + r.Header.Get("X-Suffix")))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

var fast = downloader.GetOptions{
	Timeout:       time.Second,
	RetryInterval: time.Millisecond,
}

func TestHTTPGet(t *testing.T) {
	server, calls := flakyServer(t, 0, 0, "hello")

	body, err := downloader.HTTPGet(context.Background(), server.URL, map[string]string{"X-Suffix": "!"}, fast)
	require.NoError(t, err)
	assert.Equal(t, "hello!", string(body))
	assert.Equal(t, int32(1), *calls)

	opts := fast
	opts.MaxSize = 3
	body, err = downloader.HTTPGet(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(body))
}

func TestHTTPGetRetriesServerErrors(t *testing.T) {
	server, calls := flakyServer(t, 2, http.StatusServiceUnavailable, "zip")

	opts := fast
	opts.Retries = 3
	body, err := downloader.HTTPGet(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(body))
	assert.Equal(t, int32(3), *calls)
}

func TestHTTPGetGivesUp(t *testing.T) {
	server, calls := flakyServer(t, 10, http.StatusBadGateway, "zip")

	opts := fast
	opts.Retries = 2
	_, err := downloader.HTTPGet(context.Background(), server.URL, nil, opts)
	var statusErr *downloader.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(3), *calls)
}

func TestHTTPGetClientErrorIsPermanent(t *testing.T) {
	server, calls := flakyServer(t, 10, http.StatusNotFound, "zip")

	opts := fast
	opts.Retries = 5
	_, err := downloader.HTTPGet(context.Background(), server.URL, nil, opts)
	var statusErr *downloader.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), *calls)
}

func TestMemoryCache(t *testing.T) {
	server, calls := flakyServer(t, 0, 0, "feed")

	now := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	d := downloader.NewMemory()
	d.TimeNow = func() time.Time { return now }

	opts := fast
	opts.Cache = true
	opts.CacheTTL = time.Hour

	for i := 0; i < 3; i++ {
		body, err := d.Get(context.Background(), server.URL, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, "feed", string(body))
	}
	assert.Equal(t, int32(1), *calls)

	now = now.Add(2 * time.Hour)
	_, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), *calls)

	// Caching disabled
	opts.Cache = false
	_, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(3), *calls)
}

func TestFilesystemCache(t *testing.T) {
	server, calls := flakyServer(t, 0, 0, "feed")
	dir := t.TempDir()

	now := time.Now()
	d, err := downloader.NewFilesystem(dir)
	require.NoError(t, err)
	d.TimeNow = func() time.Time { return now }

	opts := fast
	opts.Cache = true
	opts.CacheTTL = time.Hour

	body, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "feed", string(body))

	// A fresh instance on the same directory hits the cache.
	d2, err := downloader.NewFilesystem(dir)
	require.NoError(t, err)
	d2.TimeNow = func() time.Time { return now }
	body, err = d2.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "feed", string(body))
	assert.Equal(t, int32(1), *calls)

	d2.TimeNow = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = d2.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), *calls)
}
