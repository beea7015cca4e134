package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.ScheduleLoaded()
	c.ScheduleLoaded()
	c.ScheduleFailed()
	c.DateCompared()
	c.DateUnavailable()
	c.Dropped("tmstmp_parse", 3)
	c.Dropped("tmstmp_parse", 0)
	c.Dropped("bad_batch", 1)
	c.CacheLookup("hit")
	c.BucketRetry()
	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	c.NATSSetConnected(true)
	c.ObserveStage("compare_feed", 150*time.Millisecond)
	c.PublishObserve(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.SchedulesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ScheduleFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DatesCompared))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DatesUnavailable))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.RowsDropped.WithLabelValues("tmstmp_parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RowsDropped.WithLabelValues("bad_batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BucketRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))

	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ScheduleLoaded()
		c.ScheduleFailed()
		c.DateCompared()
		c.DateUnavailable()
		c.Dropped("tmstmp_parse", 1)
		c.CacheLookup("miss")
		c.BucketRetry()
		c.ObserveStage("schedule_summary", time.Second)
		c.NATSPublishedInc()
		c.NATSPublishErrInc()
		c.PublishObserve(time.Second)
		c.NATSSetConnected(true)
	})
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ScheduleLoaded()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ghostbus_schedules_loaded_total 1")
}
