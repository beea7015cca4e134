package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// Which bucket outputs are written to.
const (
	OutputPublic  = "public"
	OutputPrivate = "private"
)

type Config struct {
	Bucket  BucketConfig  `yaml:"bucket"`
	Storage StorageConfig `yaml:"storage"`

	// Bucket comparison outputs go to, public or private.
	Output string `yaml:"output" validate:"oneof=public private"`

	Schedule ScheduleConfig `yaml:"schedule"`

	// Explicit feed periods. When empty, periods are derived from
	// Versions and LastDate.
	Feeds    []FeedConfig `yaml:"feeds" validate:"dive"`
	Versions []string     `yaml:"versions" validate:"dive,len=8,numeric"`
	LastDate string       `yaml:"last_date" validate:"omitempty,datetime=2006-01-02"`

	// YYYY-MM-DD or MM-DD.
	Holidays []string `yaml:"holidays"`

	// Timezone of the realtime feed, for vehicle positions batches.
	Timezone string `yaml:"timezone" validate:"timezone"`

	Redis RedisConfig `yaml:"redis"`
	NATS  NATSConfig  `yaml:"nats"`

	// Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	Concurrency int    `yaml:"concurrency" validate:"min=1,max=64"`
	Retries     uint64 `yaml:"retries" validate:"max=20"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

type BucketConfig struct {
	// fs: Public and Private are directories. sqlite: database
	// files. postgres: connection strings. memory: unused.
	Type    string `yaml:"type" validate:"oneof=fs memory sqlite postgres"`
	Public  string `yaml:"public" validate:"required_unless=Type memory"`
	Private string `yaml:"private" validate:"required_unless=Type memory"`
}

type StorageConfig struct {
	// Where parsed schedules are kept: memory, sqlite or postgres.
	Type string `yaml:"type" validate:"oneof=memory sqlite postgres"`

	// SQLite directory. In memory if empty.
	Directory string `yaml:"directory"`

	PostgresURL string `yaml:"postgres_url" validate:"required_if=Type postgres"`
}

type ScheduleConfig struct {
	// Download URL for schedule zips, with "{version}" replaced by
	// the schedule version. Zips are read from the private bucket
	// when empty.
	URLTemplate string `yaml:"url_template"`

	// Local directory caching downloaded zips.
	CacheDir string `yaml:"cache_dir"`

	Timeout time.Duration `yaml:"timeout"`

	// How long schedule summaries stay cached. Zero keeps them
	// forever, schedule versions being immutable.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type FeedConfig struct {
	ScheduleVersion string `yaml:"schedule_version" validate:"required,len=8,numeric"`
	StartDate       string `yaml:"feed_start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string `yaml:"feed_end_date" validate:"required,datetime=2006-01-02"`
}

type RedisConfig struct {
	// Schedule summaries are cached in memory when empty.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type NATSConfig struct {
	// Results are not published when empty.
	URL string `yaml:"url"`
}

func Default() *Config {
	return &Config{
		Bucket: BucketConfig{
			Type:    "fs",
			Public:  "data/public",
			Private: "data/private",
		},
		Storage: StorageConfig{
			Type: "sqlite",
		},
		Output:   OutputPublic,
		Timezone: "America/Chicago",
		Schedule: ScheduleConfig{
			Timeout: 2 * time.Minute,
		},
		Concurrency: 4,
		Retries:     3,
		LogLevel:    "info",
	}
}

// Loads configuration from an optional YAML file, then applies
// environment overrides. A .env file in the working directory, if
// any, is loaded into the environment first.
func Load(path string) (*Config, error) {
	// Ignore if missing
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Bucket.Type, "GHOSTBUS_BUCKET_TYPE")
	setString(&c.Bucket.Public, "BUCKET_PUBLIC")
	setString(&c.Bucket.Private, "BUCKET_PRIVATE")
	setString(&c.Output, "GHOSTBUS_OUTPUT")
	setString(&c.Storage.Type, "GHOSTBUS_STORAGE")
	setString(&c.Storage.Directory, "GHOSTBUS_STORAGE_DIR")
	setString(&c.Storage.PostgresURL, "DATABASE_URL")
	setString(&c.Schedule.URLTemplate, "GHOSTBUS_SCHEDULE_URL")
	setString(&c.Schedule.CacheDir, "GHOSTBUS_SCHEDULE_CACHE")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.LogLevel, "GHOSTBUS_LOG_LEVEL")
	setString(&c.LastDate, "GHOSTBUS_LAST_DATE")
	setString(&c.Timezone, "GHOSTBUS_TIMEZONE")

	if v := os.Getenv("GHOSTBUS_HOLIDAYS"); v != "" {
		c.Holidays = splitList(v)
	}
	if v := os.Getenv("GHOSTBUS_VERSIONS"); v != "" {
		c.Versions = splitList(v)
	}

	if v := os.Getenv("GHOSTBUS_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GHOSTBUS_CONCURRENCY: %q", v)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("GHOSTBUS_RETRIES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GHOSTBUS_RETRIES: %q", v)
		}
		c.Retries = n
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Feed periods must be ordered and disjoint. Gaps are fine.
	for i, f := range c.Feeds {
		if f.EndDate < f.StartDate {
			return fmt.Errorf("feed %s ends before it starts", f.ScheduleVersion)
		}
		if i > 0 && f.StartDate <= c.Feeds[i-1].EndDate {
			return fmt.Errorf("feed %s overlaps feed %s", f.ScheduleVersion, c.Feeds[i-1].ScheduleVersion)
		}
	}

	return nil
}

// Feed periods to compare. lastDate (YYYY-MM-DD) bounds the final
// period when periods are derived from versions and no last_date is
// configured.
func (c *Config) FeedDescriptors(lastDate string) ([]model.FeedDescriptor, error) {
	if len(c.Feeds) > 0 {
		feeds := make([]model.FeedDescriptor, 0, len(c.Feeds))
		for _, f := range c.Feeds {
			feeds = append(feeds, model.FeedDescriptor{
				ScheduleVersion: f.ScheduleVersion,
				FeedStartDate:   f.StartDate,
				FeedEndDate:     f.EndDate,
			})
		}
		return feeds, nil
	}

	if len(c.Versions) == 0 {
		return nil, errors.New("no feeds or versions configured")
	}

	if c.LastDate != "" {
		lastDate = c.LastDate
	}
	return model.FeedsFromVersions(c.Versions, lastDate)
}

// Download URL of a schedule version, or "" if zips come from the
// private bucket.
func (c *Config) ScheduleURL(version string) string {
	if c.Schedule.URLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(c.Schedule.URLTemplate, "{version}", version)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	items := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
