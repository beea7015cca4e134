package ghostbuses

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chihacknight/chn-ghost-buses/bucket"
	"github.com/chihacknight/chn-ghost-buses/cache"
	"github.com/chihacknight/chn-ghost-buses/config"
	"github.com/chihacknight/chn-ghost-buses/downloader"
	"github.com/chihacknight/chn-ghost-buses/logging"
	"github.com/chihacknight/chn-ghost-buses/metrics"
	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/parse"
	"github.com/chihacknight/chn-ghost-buses/publish"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

const (
	DefaultStaticTimeout = 60 * time.Second
	DefaultStaticMaxSize = 800 << 20 // 800 MB
	DefaultConcurrency   = 4
	DefaultRetries       = 3
	DefaultTimezone      = "America/Chicago"
)

// Object key prefixes in the data buckets.
const (
	RawBusDataPrefix      = "bus_data/"
	FullDayDataPrefix     = "bus_full_day_data_v2/"
	FullDayErrorsPrefix   = "bus_full_day_errors_v2/"
	DailySummaryPrefix    = "bus_daily_summaries/"
	ScheduleSummaryPrefix = "schedule_summaries/route_level/"
	ComparisonPrefix      = "schedule_rt_comparisons/route_level/"
	ScheduleZipPrefix     = "cta_schedule_zipfiles_raw/"
)

func ScheduleZipKey(version string) string {
	return fmt.Sprintf("%sgoogle_transit_%s.zip", ScheduleZipPrefix, version)
}

func RouteHourKey(version string) string {
	return fmt.Sprintf("%sschedule_v%s_route_hour.csv", ScheduleSummaryPrefix, version)
}

func RouteDirectionHourKey(version string) string {
	return fmt.Sprintf("%sschedule_v%s_route_direction_hour.csv", ScheduleSummaryPrefix, version)
}

func DailySummaryKey(date string) string {
	return DailySummaryPrefix + date + ".csv"
}

func ComparisonKey(feed model.FeedDescriptor) string {
	return fmt.Sprintf(
		"%sschedule_v%s_realtime_rt_level_comparison_%s_to_%s.csv",
		ComparisonPrefix, feed.ScheduleVersion, feed.FeedStartDate, feed.FeedEndDate,
	)
}

func DailyComparisonKey(feed model.FeedDescriptor) string {
	return fmt.Sprintf(
		"%sdaily/schedule_v%s_realtime_rt_level_daily_%s_to_%s.csv",
		ComparisonPrefix, feed.ScheduleVersion, feed.FeedStartDate, feed.FeedEndDate,
	)
}

const CombinedComparisonKey = ComparisonPrefix + "combined_schedule_realtime_rt_level_comparison.csv"

// Manager runs the schedule vs realtime pipeline over a pair of data
// buckets.
type Manager struct {
	Public  bucket.Bucket
	Private bucket.Bucket

	// Which bucket derived data is read from and written to,
	// config.OutputPublic or config.OutputPrivate. Schedule zips
	// are always read from Private.
	Output string

	// Download URL for a schedule version. Zips are read from the
	// private bucket when nil or when it returns "".
	ScheduleURL   func(version string) string
	Downloader    downloader.Downloader
	StaticTimeout time.Duration
	StaticMaxSize int

	Cache     cache.Cache
	CacheTTL  time.Duration
	Publisher publish.Publisher
	Metrics   *metrics.Collector
	Logger    *slog.Logger

	Classifier *DayTypeClassifier

	// Timezone vehicle positions feeds are rendered in.
	Location *time.Location

	// Bound on versions, and dates within a version, processed
	// concurrently.
	Concurrency int

	// Retries of failed bucket reads and downloads.
	Retries       uint64
	RetryInterval time.Duration

	storage storage.Storage
	loads   singleflight.Group
}

// Creates a new Manager on top of the given schedule storage and
// buckets. Schedule summaries are cached in memory and results are
// not published, unless configured otherwise.
func NewManager(s storage.Storage, public, private bucket.Bucket) *Manager {
	classifier, err := NewDayTypeClassifier(DefaultHolidays)
	if err != nil {
		panic(err)
	}

	location, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		location = time.UTC
	}

	return &Manager{
		Public:        public,
		Private:       private,
		Output:        config.OutputPublic,
		Downloader:    downloader.NewMemory(),
		StaticTimeout: DefaultStaticTimeout,
		StaticMaxSize: DefaultStaticMaxSize,
		Cache:         cache.NewMemory(),
		Publisher:     publish.Nop{},
		Logger:        slog.Default(),
		Classifier:    classifier,
		Location:      location,
		Concurrency:   DefaultConcurrency,
		Retries:       DefaultRetries,
		RetryInterval: downloader.DefaultRetryInterval,
		storage:       s,
	}
}

func (m *Manager) output() bucket.Bucket {
	if m.Output == config.OutputPrivate {
		return m.retrying(m.Private)
	}
	return m.retrying(m.Public)
}

func (m *Manager) location() *time.Location {
	if m.Location == nil {
		return time.UTC
	}
	return m.Location
}

func (m *Manager) retrying(b bucket.Bucket) bucket.Bucket {
	r := bucket.NewRetrying(b, m.Retries)
	if m.RetryInterval > 0 {
		r.InitialInterval = m.RetryInterval
	}
	r.OnRetry = func(op string, key string, err error, wait time.Duration) {
		m.Metrics.BucketRetry()
		logging.LogWarning(
			m.Logger,
			"retrying bucket operation",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
	}
	return r
}

// Loads a schedule version, parsing it into storage unless already
// there. Concurrent loads of the same version share one parse.
func (m *Manager) LoadSchedule(ctx context.Context, version string) (*Static, error) {
	v, err, _ := m.loads.Do(version, func() (interface{}, error) {
		return m.loadSchedule(ctx, version)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Static), nil
}

func (m *Manager) loadSchedule(ctx context.Context, version string) (*Static, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{Version: version})
	if err != nil {
		return nil, &VersionError{version, fmt.Errorf("listing feeds: %w", err)}
	}
	if len(feeds) > 0 {
		reader, err := m.storage.GetReader(feeds[0].ID())
		if err != nil {
			return nil, &VersionError{version, fmt.Errorf("getting reader: %w", err)}
		}
		return NewStatic(reader, feeds[0])
	}

	start := time.Now()

	body, url, err := m.fetchSchedule(ctx, version)
	if err != nil {
		m.Metrics.ScheduleFailed()
		return nil, &VersionError{version, err}
	}

	metadata := &storage.FeedMetadata{Version: version}
	writer, err := m.storage.GetWriter(metadata.ID())
	if err != nil {
		return nil, &VersionError{version, fmt.Errorf("getting writer: %w", err)}
	}

	parsed, stats, err := parse.ParseStatic(writer, body)
	if err != nil {
		// ParseStatic only closes the writer on success.
		logging.SafeCloseWithLogging(writer, m.Logger, "closing feed writer")
		m.Metrics.ScheduleFailed()
		return nil, &VersionError{version, fmt.Errorf("parsing: %w", err)}
	}
	m.logParseStats(version, stats)

	parsed.Version = version
	parsed.URL = url
	parsed.SHA256 = fmt.Sprintf("%x", sha256.Sum256(body))
	parsed.RetrievedAt = time.Now().UTC()

	err = m.storage.WriteFeedMetadata(parsed)
	if err != nil {
		return nil, &VersionError{version, fmt.Errorf("writing metadata: %w", err)}
	}

	reader, err := m.storage.GetReader(parsed.ID())
	if err != nil {
		return nil, &VersionError{version, fmt.Errorf("getting reader: %w", err)}
	}

	m.Metrics.ScheduleLoaded()
	m.Metrics.ObserveStage("load_schedule", time.Since(start))
	logging.LogOperation(
		m.Logger,
		"schedule loaded",
		slog.String("version", version),
		slog.String("calendar_start", parsed.CalendarStartDate),
		slog.String("calendar_end", parsed.CalendarEndDate),
		slog.Duration("duration", time.Since(start)),
	)

	return NewStatic(reader, parsed)
}

// Gets a schedule zip by URL if one is configured, or else from the
// private bucket. Returns the body and the URL used, if any.
func (m *Manager) fetchSchedule(ctx context.Context, version string) ([]byte, string, error) {
	url := ""
	if m.ScheduleURL != nil {
		url = m.ScheduleURL(version)
	}

	if url == "" {
		body, err := m.retrying(m.Private).Get(ctx, ScheduleZipKey(version))
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", ScheduleZipKey(version), err)
		}
		return body, "", nil
	}

	body, err := m.Downloader.Get(ctx, url, nil, downloader.GetOptions{
		Cache:         true,
		Timeout:       m.StaticTimeout,
		MaxSize:       m.StaticMaxSize,
		Retries:       m.Retries,
		RetryInterval: m.RetryInterval,
	})
	if err != nil {
		return nil, "", fmt.Errorf("downloading %s: %w", url, err)
	}
	return body, url, nil
}

func (m *Manager) logParseStats(version string, stats *parse.Stats) {
	m.Metrics.Dropped("stop_time_parse", stats.TimeParseErrors)
	m.Metrics.Dropped("unknown_trip", stats.UnknownTrips)

	if len(stats.MissingOptional) > 0 {
		logging.LogWarning(
			m.Logger,
			"optional schedule tables missing",
			slog.String("version", version),
			slog.String("files", strings.Join(stats.MissingOptional, ",")),
		)
	}
	if stats.Dropped() > 0 {
		samples := make([]string, 0, len(stats.Samples))
		for _, err := range stats.Samples {
			samples = append(samples, err.Error())
		}
		logging.LogWarning(
			m.Logger,
			"stop_times rows dropped",
			slog.String("version", version),
			slog.Int("time_parse_errors", stats.TimeParseErrors),
			slog.Int("unknown_trips", stats.UnknownTrips),
			slog.Any("samples", samples),
		)
	}
	if stats.HourMismatches > 0 {
		logging.LogWarning(
			m.Logger,
			"stops with arrival and departure in different hours",
			slog.String("version", version),
			slog.Int("count", stats.HourMismatches),
		)
	}
}

// Route level schedule summary of a version. Looked up in the cache,
// then in the output bucket, and computed from the schedule as a last
// resort. Computed summaries are written to both.
func (m *Manager) ScheduleSummary(ctx context.Context, version string) (*ScheduleSummary, error) {
	summary, err := m.cachedSummary(ctx, version)
	if err != nil {
		logging.LogError(m.Logger, "reading cached schedule summary", err, slog.String("version", version))
		m.Metrics.CacheLookup("error")
	}
	if summary != nil {
		m.Metrics.CacheLookup("hit")
		return summary, nil
	}
	m.Metrics.CacheLookup("miss")

	out := m.output()

	summary, err = m.storedSummary(ctx, out, version)
	if err != nil {
		return nil, &VersionError{version, err}
	}

	if summary == nil {
		static, err := m.LoadSchedule(ctx, version)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		summary, err = static.ScheduleSummary(DateRange{})
		if err != nil {
			return nil, &VersionError{version, fmt.Errorf("summarizing: %w", err)}
		}
		m.Metrics.ObserveStage("schedule_summary", time.Since(start))

		err = putCSV(ctx, out, RouteHourKey(version), toRouteHourRows(summary.ByRoute))
		if err != nil {
			return nil, &VersionError{version, err}
		}
		err = putCSV(ctx, out, RouteDirectionHourKey(version), summary.ByDirection)
		if err != nil {
			return nil, &VersionError{version, err}
		}
	}

	if err := m.cacheSummary(ctx, version, summary); err != nil {
		logging.LogError(m.Logger, "caching schedule summary", err, slog.String("version", version))
	}

	return summary, nil
}

func (m *Manager) cachedSummary(ctx context.Context, version string) (*ScheduleSummary, error) {
	summary := &ScheduleSummary{}
	for granularity, dst := range map[string]*[]model.ScheduledTripCount{
		"route":     &summary.ByRoute,
		"direction": &summary.ByDirection,
	} {
		data, found, err := m.Cache.Get(ctx, cache.SummaryKey(version, granularity))
		if err != nil || !found {
			return nil, err
		}
		rows, err := UnmarshalCSV[model.ScheduledTripCount](data)
		if err != nil {
			return nil, fmt.Errorf("decoding cached %s summary: %w", granularity, err)
		}
		*dst = rows
	}
	return summary, nil
}

func (m *Manager) cacheSummary(ctx context.Context, version string, summary *ScheduleSummary) error {
	for granularity, rows := range map[string][]model.ScheduledTripCount{
		"route":     summary.ByRoute,
		"direction": summary.ByDirection,
	} {
		data, err := MarshalCSV(rows)
		if err != nil {
			return err
		}
		err = m.Cache.Set(ctx, cache.SummaryKey(version, granularity), data, m.CacheTTL)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reads a previously written summary from the bucket. Returns nil if
// either table is missing.
func (m *Manager) storedSummary(ctx context.Context, b bucket.Bucket, version string) (*ScheduleSummary, error) {
	routeData, err := b.Get(ctx, RouteHourKey(version))
	if errors.Is(err, bucket.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", RouteHourKey(version), err)
	}

	directionData, err := b.Get(ctx, RouteDirectionHourKey(version))
	if errors.Is(err, bucket.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", RouteDirectionHourKey(version), err)
	}

	routeRows, err := UnmarshalCSV[routeHourRow](routeData)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", RouteHourKey(version), err)
	}
	directionRows, err := UnmarshalCSV[model.ScheduledTripCount](directionData)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", RouteDirectionHourKey(version), err)
	}

	return &ScheduleSummary{
		ByRoute:     fromRouteHourRows(routeRows),
		ByDirection: directionRows,
	}, nil
}

// Row of the route level schedule summary file, which has no
// direction column.
type routeHourRow struct {
	Date      string `csv:"date"`
	RouteID   string `csv:"route_id"`
	Hour      int    `csv:"hour"`
	TripCount int    `csv:"trip_count"`
}

func toRouteHourRows(rows []model.ScheduledTripCount) []routeHourRow {
	out := make([]routeHourRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, routeHourRow{r.Date, r.RouteID, r.Hour, r.TripCount})
	}
	return out
}

func fromRouteHourRows(rows []routeHourRow) []model.ScheduledTripCount {
	out := make([]model.ScheduledTripCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ScheduledTripCount{
			Date:      r.Date,
			RouteID:   r.RouteID,
			Hour:      r.Hour,
			TripCount: r.TripCount,
		})
	}
	return out
}

// Outcome of combining a day of scraper batches.
type DaySummary struct {
	Date     string
	Combined *CombinedDay

	// Nil when the day had no vehicle rows, in which case no
	// summary file is written.
	Observed []model.ObservedTripCount
}

// Combines the raw batches stored for a date (YYYY-MM-DD) into full
// day data and error files plus the day's observed trip counts.
// Returns ErrDataUnavailable if the date has no batches or they
// cannot be read.
func (m *Manager) CombineDay(ctx context.Context, date string) (*DaySummary, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}

	start := time.Now()
	out := m.output()

	keys, err := out.List(ctx, RawBusDataPrefix+date+"/")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: listing batches: %v", ErrDataUnavailable, date, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s: no batches", ErrDataUnavailable, date)
	}

	batches := make([]Batch, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			body, err := out.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", key, err)
			}
			batches[i] = Batch{ID: path.Base(key), Body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, date, err)
	}

	combined := CombineBatches(batches, m.location())
	for _, err := range combined.BadBatches {
		logging.LogError(m.Logger, "skipping undecodable batch", err, slog.String("date", date))
	}
	m.Metrics.Dropped("bad_batch", len(combined.BadBatches))
	m.Metrics.Dropped("tmstmp_parse", len(combined.TimeParseErrors))
	if len(combined.TimeParseErrors) > 0 {
		logging.LogWarning(
			m.Logger,
			"vehicle rows dropped",
			slog.String("date", date),
			slog.Int("count", len(combined.TimeParseErrors)),
			slog.String("first", combined.TimeParseErrors[0].Error()),
		)
	}

	day := &DaySummary{Date: date, Combined: combined}

	if len(combined.Vehicles) == 0 && len(combined.Errors) == 0 {
		logging.LogWarning(m.Logger, "no rows in batches", slog.String("date", date), slog.Int("batches", len(keys)))
		return day, nil
	}

	err = putCSV(ctx, out, FullDayDataPrefix+date+".csv", combined.Vehicles)
	if err != nil {
		return nil, err
	}
	err = putCSV(ctx, out, FullDayErrorsPrefix+date+".csv", combined.Errors)
	if err != nil {
		return nil, err
	}

	day.Observed = AggregateObservations(combined.Vehicles)
	if day.Observed != nil {
		err = putCSV(ctx, out, DailySummaryKey(date), day.Observed)
		if err != nil {
			return nil, err
		}
	}

	m.Metrics.ObserveStage("combine_day", time.Since(start))
	logging.LogOperation(
		m.Logger,
		"day combined",
		slog.String("date", date),
		slog.Int("batches", len(keys)),
		slog.Int("vehicles", len(combined.Vehicles)),
		slog.Int("errors", len(combined.Errors)),
		slog.Int("buckets", len(day.Observed)),
		slog.Duration("duration", time.Since(start)),
	)

	return day, nil
}

// Observed trip counts for a date. A date whose summary is missing or
// cannot be read after retries is reported as ErrDataUnavailable.
func (m *Manager) LoadObserved(ctx context.Context, date string) ([]model.ObservedTripCount, error) {
	data, err := m.output().Get(ctx, DailySummaryKey(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, date, err)
	}

	rows, err := UnmarshalCSV[model.ObservedTripCount](data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decoding: %v", ErrDataUnavailable, date, err)
	}

	return rows, nil
}

// Outcome of comparing a set of feed periods.
type CompareResult struct {
	// Comparisons of the versions that loaded, in feed order.
	Feeds    []*FeedComparison
	Combined []model.DayTypeComparison

	// Versions that could not be loaded.
	Failed []*VersionError

	// Dates without realtime data, across all compared feeds.
	Unavailable []string
}

// Compares every feed period against realtime data, writing one
// comparison file per version and a combined one, and publishing
// each. Versions are processed concurrently. A version that fails to
// load is reported in the result without affecting the others.
//
// Returns ErrNoSchedules if no version loaded, and ErrNoRealtimeData
// if no date in any loaded period had data.
func (m *Manager) Compare(ctx context.Context, feeds []model.FeedDescriptor) (*CompareResult, error) {
	if len(feeds) == 0 {
		return nil, errors.New("no feeds to compare")
	}

	comparisons := make([]*FeedComparison, len(feeds))
	failures := make([]*VersionError, len(feeds))

	g := &errgroup.Group{}
	g.SetLimit(m.concurrency())
	for i, feed := range feeds {
		i, feed := i, feed
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fc, err := m.compareFeed(ctx, feed)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var vErr *VersionError
				if !errors.As(err, &vErr) {
					vErr = &VersionError{feed.ScheduleVersion, err}
				}
				failures[i] = vErr
				logging.LogError(m.Logger, "comparing feed", err, slog.String("feed", feed.String()))
				return nil
			}
			comparisons[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &CompareResult{}
	observedDates := 0
	for i := range feeds {
		if failures[i] != nil {
			result.Failed = append(result.Failed, failures[i])
			continue
		}
		fc := comparisons[i]
		result.Feeds = append(result.Feeds, fc)
		result.Unavailable = append(result.Unavailable, fc.MissingDates...)

		observedDates += len(fc.ObservedDates)
	}
	sort.Strings(result.Unavailable)

	if len(result.Feeds) == 0 {
		errs := make([]error, 0, len(result.Failed))
		for _, err := range result.Failed {
			errs = append(errs, err)
		}
		return result, fmt.Errorf("%w: %w", ErrNoSchedules, errors.Join(errs...))
	}
	if observedDates == 0 {
		return result, fmt.Errorf(
			"%w: %s to %s",
			ErrNoRealtimeData,
			result.Feeds[0].Feed.FeedStartDate,
			result.Feeds[len(result.Feeds)-1].Feed.FeedEndDate,
		)
	}

	result.Combined = CombineComparisons(result.Feeds)

	err := putCSV(ctx, m.output(), CombinedComparisonKey, result.Combined)
	if err != nil {
		return result, err
	}
	m.publish(ctx, publish.ComparisonMessage{Rows: result.Combined})

	logging.LogOperation(
		m.Logger,
		"comparison complete",
		slog.Int("feeds", len(result.Feeds)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("observed_dates", observedDates),
		slog.Int("unavailable_dates", len(result.Unavailable)),
	)

	return result, nil
}

// Compares a single feed period, writing and publishing its result.
func (m *Manager) compareFeed(ctx context.Context, feed model.FeedDescriptor) (*FeedComparison, error) {
	dates, err := feed.Dates()
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed, err)
	}

	summary, err := m.ScheduleSummary(ctx, feed.ScheduleVersion)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	observed := map[string][]model.ObservedTripCount{}
	var mutex sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())
	for _, date := range dates {
		date := date
		g.Go(func() error {
			rows, err := m.LoadObserved(gctx, date)
			if errors.Is(err, ErrDataUnavailable) {
				m.Metrics.DateUnavailable()
				logging.LogWarning(
					m.Logger,
					"skipping date",
					slog.String("date", date),
					slog.String("version", feed.ScheduleVersion),
					slog.String("reason", err.Error()),
				)
				return nil
			}
			if err != nil {
				return err
			}

			mutex.Lock()
			defer mutex.Unlock()
			observed[date] = rows
			m.Metrics.DateCompared()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fc, err := CompareFeed(feed, summary.ByRoute, observed, m.Classifier)
	if err != nil {
		return nil, err
	}

	out := m.output()
	err = putCSV(ctx, out, ComparisonKey(feed), fc.ByDayType)
	if err != nil {
		return nil, err
	}
	err = putCSV(ctx, out, DailyComparisonKey(feed), fc.Daily)
	if err != nil {
		return nil, err
	}

	m.publish(ctx, publish.ComparisonMessage{
		Feed: publish.NewFeedPeriod(feed),
		Rows: fc.ByDayType,
	})

	m.Metrics.ObserveStage("compare_feed", time.Since(start))
	logging.LogOperation(
		m.Logger,
		"feed compared",
		slog.String("feed", feed.String()),
		slog.Int("dates", len(dates)),
		slog.Int("missing_dates", len(fc.MissingDates)),
		slog.Int("rows", len(fc.ByDayType)),
		slog.Duration("duration", time.Since(start)),
	)

	return fc, nil
}

// Publication failures are logged, not returned.
func (m *Manager) publish(ctx context.Context, msg publish.ComparisonMessage) {
	err := m.Publisher.PublishComparison(ctx, msg)
	if err != nil {
		logging.LogError(m.Logger, "publishing comparison", err, slog.String("subject", msg.Subject()))
	}
}

func (m *Manager) concurrency() int {
	if m.Concurrency < 1 {
		return 1
	}
	return m.Concurrency
}

func putCSV[T any](ctx context.Context, b bucket.Bucket, key string, rows []T) error {
	data, err := MarshalCSV(rows)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	err = b.Put(ctx, key, data)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
