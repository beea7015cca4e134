package bucket

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Postgres runs when GHOSTBUS_TEST_POSTGRES holds a connection
// string.

type builder func(t *testing.T) Bucket

func testGetPut(t *testing.T, build builder) {
	ctx := context.Background()
	b := build(t)

	_, err := b.Get(ctx, "bus_daily_summaries/2022-06-06.csv")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, b.Put(ctx, "bus_daily_summaries/2022-06-06.csv", []byte("a,b\n1,2\n")))
	data, err := b.Get(ctx, "bus_daily_summaries/2022-06-06.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n1,2\n"), data)

	// Overwrite.
	require.NoError(t, b.Put(ctx, "bus_daily_summaries/2022-06-06.csv", []byte("x")))
	data, err = b.Get(ctx, "bus_daily_summaries/2022-06-06.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	// Empty objects are objects.
	require.NoError(t, b.Put(ctx, "empty.csv", []byte{}))
	data, err = b.Get(ctx, "empty.csv")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func testList(t *testing.T, build builder) {
	ctx := context.Background()
	b := build(t)

	for _, key := range []string{
		"bus_data/2022-06-07/07:00:00.json",
		"bus_data/2022-06-06/07:05:00.json",
		"bus_data/2022-06-06/07:00:00.json",
		"bus_data_old/2022-06-06.json",
		"busXdata/2022-06-06.json",
		"schedule_summaries/route_level/schedule_v20220601_route_hour.csv",
	} {
		require.NoError(t, b.Put(ctx, key, []byte("{}")))
	}

	keys, err := b.List(ctx, "bus_data/2022-06-06/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bus_data/2022-06-06/07:00:00.json",
		"bus_data/2022-06-06/07:05:00.json",
	}, keys)

	// '_' is not a wildcard.
	keys, err = b.List(ctx, "bus_data")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bus_data/2022-06-06/07:00:00.json",
		"bus_data/2022-06-06/07:05:00.json",
		"bus_data/2022-06-07/07:00:00.json",
		"bus_data_old/2022-06-06.json",
	}, keys)

	keys, err = b.List(ctx, "BUS_DATA")
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = b.List(ctx, "nothing/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = b.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 6)
}

func testInvalidKeys(t *testing.T, build builder) {
	ctx := context.Background()
	b := build(t)

	for _, key := range []string{"", "/abs", "dir/", "../escape", "a/../b", "a//b"} {
		assert.Error(t, b.Put(ctx, key, []byte("x")), key)
	}
}

func TestBucket(t *testing.T) {
	builders := map[string]builder{
		"memory": func(t *testing.T) Bucket {
			return NewMemory()
		},
		"filesystem": func(t *testing.T) Bucket {
			b, err := NewFilesystem(filepath.Join(t.TempDir(), "bucket"))
			require.NoError(t, err)
			return b
		},
		"sqlite": func(t *testing.T) Bucket {
			b, err := NewSQL(SQLite, ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
	if connStr := os.Getenv("GHOSTBUS_TEST_POSTGRES"); connStr != "" {
		builders["postgres"] = func(t *testing.T) Bucket {
			b, err := NewSQL(Postgres, connStr)
			require.NoError(t, err)
			_, err = b.db.Exec(`DELETE FROM bucket_objects`)
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		}
	}

	for _, test := range []struct {
		Name string
		Test func(t *testing.T, build builder)
	}{
		{"GetPut", testGetPut},
		{"List", testList},
		{"InvalidKeys", testInvalidKeys},
	} {
		for name, build := range builders {
			t.Run(test.Name+" "+name, func(t *testing.T) {
				test.Test(t, build)
			})
		}
	}
}

func TestFilesystemLayout(t *testing.T) {
	root := t.TempDir()
	b, err := NewFilesystem(root)
	require.NoError(t, err)

	require.NoError(t, b.Put(context.Background(), "bus_full_day_data_v2/2022-06-06.csv", []byte("x")))

	buf, err := os.ReadFile(filepath.Join(root, "bus_full_day_data_v2", "2022-06-06.csv"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), buf)

	entries, err := os.ReadDir(filepath.Join(root, "bus_full_day_data_v2"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// Fails the first n calls of each operation.
type flaky struct {
	Bucket
	failures int
	calls    int
}

func (f *flaky) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.Bucket.Get(ctx, key)
}

func TestRetrying(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	require.NoError(t, inner.Put(ctx, "k", []byte("v")))

	f := &flaky{Bucket: inner, failures: 2}
	retries := 0
	r := NewRetrying(f, 3)
	r.InitialInterval = time.Millisecond
	r.MaxInterval = time.Millisecond
	r.OnRetry = func(op, key string, err error, wait time.Duration) {
		assert.Equal(t, "get", op)
		assert.Equal(t, "k", key)
		retries++
	}

	data, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, 2, retries)
	assert.Equal(t, 3, f.calls)

	// Give up after MaxRetries.
	f = &flaky{Bucket: inner, failures: 10}
	r.Bucket = f
	_, err = r.Get(ctx, "k")
	assert.Error(t, err)
	assert.Equal(t, 4, f.calls)

	// Missing objects fail at once.
	f = &flaky{Bucket: inner}
	r.Bucket = f
	_, err = r.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 1, f.calls)

	// Writes and listings pass through.
	require.NoError(t, r.Put(ctx, "other", []byte("x")))
	keys, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "other"}, keys)
}

func TestRetryingCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &flaky{Bucket: NewMemory(), failures: 100}
	r := NewRetrying(f, 100)
	r.InitialInterval = time.Millisecond
	_, err := r.Get(ctx, "k")
	assert.Error(t, err)
	assert.Less(t, f.calls, 100)
}
