package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ghostbuses "github.com/chihacknight/chn-ghost-buses"
	"github.com/chihacknight/chn-ghost-buses/bucket"
	"github.com/chihacknight/chn-ghost-buses/cache"
	"github.com/chihacknight/chn-ghost-buses/config"
	"github.com/chihacknight/chn-ghost-buses/downloader"
	"github.com/chihacknight/chn-ghost-buses/logging"
	"github.com/chihacknight/chn-ghost-buses/metrics"
	"github.com/chihacknight/chn-ghost-buses/publish"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

var rootCmd = &cobra.Command{
	Use:          "ghostbus",
	Short:        "Ghost bus tool",
	Long:         "Compares scheduled bus trips with trips seen in realtime data",
	SilenceUsage: true,
}

var (
	configPath string
	outputFlag string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "", "", "Bucket to write to (public or private), overrides configuration")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if outputFlag != "" {
		cfg.Output = outputFlag
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewStructuredLogger(os.Stderr, level)
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// Everything a command needs, and how to release it.
type env struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *ghostbuses.Manager
	Metrics *metrics.Collector

	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func setup(ctx context.Context) (*env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	e := &env{Config: cfg, Logger: logger, Metrics: metrics.NewCollector()}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := e.Metrics.Serve(cfg.MetricsAddr, logger)
		e.closers = append(e.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		})
	}

	s, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	public, err := openBucket(e, cfg.Bucket.Type, cfg.Bucket.Public)
	if err != nil {
		return nil, fmt.Errorf("opening public bucket: %w", err)
	}
	private, err := openBucket(e, cfg.Bucket.Type, cfg.Bucket.Private)
	if err != nil {
		return nil, fmt.Errorf("opening private bucket: %w", err)
	}

	classifier, err := ghostbuses.NewDayTypeClassifier(holidays(cfg))
	if err != nil {
		return nil, err
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	m := ghostbuses.NewManager(s, public, private)
	m.Output = cfg.Output
	m.ScheduleURL = cfg.ScheduleURL
	m.StaticTimeout = cfg.Schedule.Timeout
	m.CacheTTL = cfg.Schedule.CacheTTL
	m.Classifier = classifier
	m.Location = location
	m.Concurrency = cfg.Concurrency
	m.Retries = cfg.Retries
	m.Metrics = e.Metrics
	m.Logger = logger

	if cfg.Schedule.CacheDir != "" {
		fs, err := downloader.NewFilesystem(cfg.Schedule.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		m.Downloader = fs
	}

	if cfg.Redis.Addr != "" {
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		})
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { logging.SafeCloseWithLogging(r, logger, "closing redis") })
		m.Cache = r
	}

	if cfg.NATS.URL != "" {
		p, err := publish.NewNATS(cfg.NATS.URL, logger, e.Metrics)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, p.Close)
		m.Publisher = p
	}

	e.Manager = m
	ok = true
	return e, nil
}

func holidays(cfg *config.Config) []string {
	if len(cfg.Holidays) > 0 {
		return cfg.Holidays
	}
	return ghostbuses.DefaultHolidays
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "postgres":
		return storage.NewPSQLStorage(cfg.PostgresURL, false)
	default:
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    cfg.Directory != "",
			Directory: cfg.Directory,
		})
	}
}

func openBucket(e *env, kind string, location string) (bucket.Bucket, error) {
	switch kind {
	case "memory":
		return bucket.NewMemory(), nil
	case "sqlite", "postgres":
		dialect := bucket.SQLite
		if kind == "postgres" {
			dialect = bucket.Postgres
		}
		b, err := bucket.NewSQL(dialect, location)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { logging.SafeCloseWithLogging(b, e.Logger, "closing bucket") })
		return b, nil
	default:
		return bucket.NewFilesystem(location)
	}
}
