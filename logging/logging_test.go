package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in    string
		level slog.Level
		err   bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	} {
		level, err := ParseLevel(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.level, level, tc.in)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	LogError(logger, "skipping version", errors.New("missing stops.txt"), slog.String("version", "20220507"))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"msg":"skipping version"`)
	assert.Contains(t, out, `"error":"missing stops.txt"`)
	assert.Contains(t, out, `"version":"20220507"`)

	// nil loggers are tolerated
	LogError(nil, "x", errors.New("y"))
}

func TestLogOperationSkipsZeroDuration(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	LogOperation(logger, "schedule_summarized", slog.String("version", "20220507"), slog.Duration("duration", 0))
	assert.Contains(t, buf.String(), `"msg":"schedule_summarized"`)
	assert.NotContains(t, buf.String(), `"duration"`)

	buf.Reset()
	LogOperation(logger, "schedule_summarized", slog.Duration("duration", time.Second))
	assert.Contains(t, buf.String(), `"duration"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelError)

	LogWarning(logger, "date unavailable", slog.String("date", "2022-07-04"))
	assert.Empty(t, buf.String())
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	SafeCloseWithLogging(failingCloser{}, logger, "closing bucket")
	assert.Empty(t, buf.String())

	SafeCloseWithLogging(failingCloser{errors.New("boom")}, logger, "closing bucket")
	assert.Contains(t, buf.String(), `"msg":"failed to close resource"`)
	assert.Contains(t, buf.String(), `"operation":"closing bucket"`)
}

func TestHandleDeferredError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	run := func(original error) (err error) {
		defer HandleDeferredError(&err, func() error { return errors.New("flush failed") }, logger, "closing writer")
		return original
	}

	err := run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing writer failed")

	original := errors.New("parse failed")
	err = run(original)
	assert.Equal(t, original, err)
}
