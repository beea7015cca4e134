package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the pipeline. All methods are safe to call
// on a nil *Collector, which records nothing.
type Collector struct {
	reg *prometheus.Registry

	SchedulesLoaded  prometheus.Counter
	ScheduleFailures prometheus.Counter

	DatesCompared    prometheus.Counter
	DatesUnavailable prometheus.Counter

	// reason label: stop_time_parse|unknown_trip|tmstmp_parse|bad_batch
	RowsDropped *prometheus.CounterVec

	// result label: hit|miss|error
	CacheLookups *prometheus.CounterVec

	BucketRetries prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	// stage label: load_schedule|schedule_summary|combine_day|compare_feed
	StageDuration   *prometheus.HistogramVec
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SchedulesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_schedules_loaded_total",
			Help: "Schedule versions parsed and summarized.",
		}),
		ScheduleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_schedule_failures_total",
			Help: "Schedule versions that could not be loaded.",
		}),
		DatesCompared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_dates_compared_total",
			Help: "Dates with realtime data compared against the schedule.",
		}),
		DatesUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_dates_unavailable_total",
			Help: "Dates skipped for lack of realtime data.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostbus_rows_dropped_total",
			Help: "Input rows dropped instead of failing the whole input.",
		}, []string{"reason"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostbus_cache_lookups_total",
			Help: "Schedule summary cache lookups.",
		}, []string{"result"}),
		BucketRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_bucket_retries_total",
			Help: "Bucket operations retried after a transient failure.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghostbus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ghostbus_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghostbus_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"stage"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghostbus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.SchedulesLoaded, c.ScheduleFailures,
		c.DatesCompared, c.DatesUnavailable,
		c.RowsDropped, c.CacheLookups, c.BucketRetries,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.StageDuration, c.PublishDuration,
	)

	return c
}

func (c *Collector) ScheduleLoaded() {
	if c != nil {
		c.SchedulesLoaded.Inc()
	}
}

func (c *Collector) ScheduleFailed() {
	if c != nil {
		c.ScheduleFailures.Inc()
	}
}

func (c *Collector) DateCompared() {
	if c != nil {
		c.DatesCompared.Inc()
	}
}

func (c *Collector) DateUnavailable() {
	if c != nil {
		c.DatesUnavailable.Inc()
	}
}

func (c *Collector) Dropped(reason string, n int) {
	if c != nil && n > 0 {
		c.RowsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (c *Collector) CacheLookup(result string) {
	if c != nil {
		c.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (c *Collector) BucketRetry() {
	if c != nil {
		c.BucketRetries.Inc()
	}
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c != nil {
		c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
