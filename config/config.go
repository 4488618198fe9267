package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Vendor      VendorConfig      `yaml:"vendor"`
	Downstream  DownstreamConfig  `yaml:"downstream"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Retention   RetentionConfig   `yaml:"retention"`
	Database    DatabaseConfig    `yaml:"database"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// VendorConfig holds the EcoFlow API credentials and client settings.
type VendorConfig struct {
	BaseURL         string  `yaml:"base_url"`
	AccessKey       string  `yaml:"access_key"`
	SecretKey       string  `yaml:"secret_key"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// DownstreamConfig holds the billing endpoint settings for the forwarder.
type DownstreamConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig holds the cadences of the periodic jobs.
type SchedulerConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	IngestIntervalSeconds    int           `yaml:"ingest_interval_seconds"`
	AggregateIntervalSeconds int           `yaml:"aggregate_interval_seconds"`
	RetentionIntervalSeconds int           `yaml:"retention_interval_seconds"`
	PushIntervalSeconds      int           `yaml:"push_interval_seconds"`
	IngestInterval           time.Duration `yaml:"-"`
	AggregateInterval        time.Duration `yaml:"-"`
	RetentionInterval        time.Duration `yaml:"-"`
	PushInterval             time.Duration `yaml:"-"`
}

// AggregationConfig holds the resampling bucket width.
type AggregationConfig struct {
	BucketSeconds int `yaml:"bucket_seconds"`
}

// RetentionConfig holds the raw-sample retention window.
type RetentionConfig struct {
	MaxAgeHours int           `yaml:"max_age_hours"`
	MaxAge      time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// WorkerPoolConfig holds the configuration for the aggregation worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Scheduler.IngestIntervalSeconds <= 0 {
		cfg.Scheduler.IngestIntervalSeconds = 10
	}
	if cfg.Scheduler.AggregateIntervalSeconds <= 0 {
		cfg.Scheduler.AggregateIntervalSeconds = 300
	}
	if cfg.Scheduler.RetentionIntervalSeconds <= 0 {
		cfg.Scheduler.RetentionIntervalSeconds = 3600
	}
	if cfg.Scheduler.PushIntervalSeconds <= 0 {
		cfg.Scheduler.PushIntervalSeconds = 3600
	}
	cfg.Scheduler.IngestInterval = time.Duration(cfg.Scheduler.IngestIntervalSeconds) * time.Second
	cfg.Scheduler.AggregateInterval = time.Duration(cfg.Scheduler.AggregateIntervalSeconds) * time.Second
	cfg.Scheduler.RetentionInterval = time.Duration(cfg.Scheduler.RetentionIntervalSeconds) * time.Second
	cfg.Scheduler.PushInterval = time.Duration(cfg.Scheduler.PushIntervalSeconds) * time.Second

	if cfg.Aggregation.BucketSeconds <= 0 {
		cfg.Aggregation.BucketSeconds = 300
	}

	if cfg.Retention.MaxAgeHours <= 0 {
		cfg.Retention.MaxAgeHours = 2
	}
	cfg.Retention.MaxAge = time.Duration(cfg.Retention.MaxAgeHours) * time.Hour

	if cfg.Vendor.TimeoutSeconds <= 0 {
		cfg.Vendor.TimeoutSeconds = 30
	}
	if cfg.Downstream.TimeoutSeconds <= 0 {
		cfg.Downstream.TimeoutSeconds = 30
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
