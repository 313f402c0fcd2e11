package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionflow   OptionflowConfig   `yaml:"optionflow"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Channels     ChannelsConfig     `yaml:"channels"`
	Fetch        FetchConfig        `yaml:"fetch"`
	Scanner      ScannerConfig      `yaml:"scanner"`
	OpenInterest OpenInterestConfig `yaml:"open_interest"`
	Clusters     ClusterConfig      `yaml:"clusters"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Pricing      PricingConfig      `yaml:"pricing"`
	Feed         FeedConfig         `yaml:"feed"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	ChannelSize bool `yaml:"channel_size"`
	RateLimit   bool `yaml:"rate_limit"`
}

type ChannelsConfig struct {
	AlertBuffer  int `yaml:"alert_buffer"`
	OIBuffer     int `yaml:"oi_buffer"`
	SignalBuffer int `yaml:"signal_buffer"`
}

// FetchConfig drives the anti-ban fetch client: fingerprint rotation,
// cooperative per-host throttling, retry/backoff and session lifecycle.
type FetchConfig struct {
	Profiles       []string             `yaml:"profiles"`
	Timeout        Duration             `yaml:"timeout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
	Session        SessionConfig        `yaml:"session"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	// JitterPct is the symmetric random jitter applied to each delay,
	// expressed as a fraction (0.2 = ±20%).
	JitterPct float64 `yaml:"jitter_pct"`
}

type SessionConfig struct {
	// MaxRequests retires a session after this many requests even when the
	// vendor never rejects it.
	MaxRequests int      `yaml:"max_requests"`
	MaxAge      Duration `yaml:"max_age"`
}

type CircuitBreakerConfig struct {
	FailureThreshold    int      `yaml:"failure_threshold"`
	RecoveryTimeout     Duration `yaml:"recovery_timeout"`
	HalfOpenMaxRequests int      `yaml:"half_open_max_requests"`
}

type ScannerConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// Interval is the cadence between scan cycles for each ticker.
	Interval   Duration        `yaml:"interval"`
	Timeout    Duration        `yaml:"timeout"`
	Tickers    []string        `yaml:"tickers"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
}

type ThresholdConfig struct {
	MinVolume       int64   `yaml:"min_volume"`
	MinOpenInterest int64   `yaml:"min_open_interest"`
	MinPremium      float64 `yaml:"min_premium"`
	DeltaMin        float64 `yaml:"delta_min"`
	DeltaMax        float64 `yaml:"delta_max"`
}

type OpenInterestConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	PageSize int      `yaml:"page_size"`
	// PagesPerSession forces a fresh session after this many pages even when
	// the vendor has not rejected the current one.
	PagesPerSession int      `yaml:"pages_per_session"`
	Tickers         []string `yaml:"tickers"`
}

type ClusterConfig struct {
	MinCount int      `yaml:"min_count"`
	MaxGap   Duration `yaml:"max_gap"`
	// HistoryLimit bounds the per-lineage record history the processor keeps.
	HistoryLimit int `yaml:"history_limit"`
}

type OrchestratorConfig struct {
	MaxWorkers   int      `yaml:"max_workers"`
	CycleTimeout Duration `yaml:"cycle_timeout"`
}

type PricingConfig struct {
	RiskFreeRate      float64 `yaml:"risk_free_rate"`
	DefaultConfidence float64 `yaml:"default_confidence"`
}

type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	// History bounds the number of alert and cluster records the feed retains
	// per ticker for late joiners.
	History int `yaml:"history"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	FlushInterval   Duration      `yaml:"flush_interval"`
	MaxBuffer       int           `yaml:"max_buffer"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// defaultProfiles lists the browser fingerprint families the vendors tolerate.
// Rotation never hands the same profile to the same host twice in a row.
var defaultProfiles = []string{
	"chrome110", "chrome116", "chrome119", "chrome120", "chrome123", "chrome124",
	"edge99", "edge101",
	"safari15_3", "safari15_5", "safari17_0",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ChannelSize: true,
			RateLimit:   true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Fetch.Profiles) == 0 {
		cfg.Fetch.Profiles = append([]string(nil), defaultProfiles...)
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = Duration(30 * time.Second)
	}
	if cfg.Fetch.RateLimit.RequestsPerSecond <= 0 {
		cfg.Fetch.RateLimit.RequestsPerSecond = 2
	}
	if cfg.Fetch.RateLimit.BurstSize <= 0 {
		cfg.Fetch.RateLimit.BurstSize = 1
	}
	if cfg.Fetch.Retry.MaxAttempts <= 0 {
		cfg.Fetch.Retry.MaxAttempts = 4
	}
	if cfg.Fetch.Retry.BaseDelay <= 0 {
		cfg.Fetch.Retry.BaseDelay = Duration(time.Second)
	}
	if cfg.Fetch.Retry.MaxDelay <= 0 {
		cfg.Fetch.Retry.MaxDelay = Duration(30 * time.Second)
	}
	if cfg.Fetch.Retry.JitterPct <= 0 {
		cfg.Fetch.Retry.JitterPct = 0.2
	}
	if cfg.Fetch.Session.MaxRequests <= 0 {
		cfg.Fetch.Session.MaxRequests = 40
	}
	if cfg.Fetch.Session.MaxAge <= 0 {
		cfg.Fetch.Session.MaxAge = Duration(15 * time.Minute)
	}
	if cfg.Fetch.CircuitBreaker.FailureThreshold <= 0 {
		cfg.Fetch.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.Fetch.CircuitBreaker.RecoveryTimeout <= 0 {
		cfg.Fetch.CircuitBreaker.RecoveryTimeout = Duration(time.Minute)
	}
	if cfg.Fetch.CircuitBreaker.HalfOpenMaxRequests <= 0 {
		cfg.Fetch.CircuitBreaker.HalfOpenMaxRequests = 1
	}

	if cfg.Scanner.Interval <= 0 {
		cfg.Scanner.Interval = Duration(5 * time.Minute)
	}
	if cfg.Scanner.Timeout <= 0 {
		cfg.Scanner.Timeout = Duration(45 * time.Second)
	}
	if cfg.Scanner.Thresholds.MinVolume <= 0 {
		cfg.Scanner.Thresholds.MinVolume = 30000
	}
	if cfg.Scanner.Thresholds.MinOpenInterest <= 0 {
		cfg.Scanner.Thresholds.MinOpenInterest = 10000
	}
	if cfg.Scanner.Thresholds.MinPremium <= 0 {
		cfg.Scanner.Thresholds.MinPremium = 5000000
	}
	if cfg.Scanner.Thresholds.DeltaMin == 0 && cfg.Scanner.Thresholds.DeltaMax == 0 {
		cfg.Scanner.Thresholds.DeltaMin = -1
		cfg.Scanner.Thresholds.DeltaMax = 1
	}

	if cfg.OpenInterest.PageSize <= 0 {
		cfg.OpenInterest.PageSize = 1000
	}
	if cfg.OpenInterest.PagesPerSession <= 0 {
		cfg.OpenInterest.PagesPerSession = 10
	}
	if cfg.OpenInterest.Interval <= 0 {
		cfg.OpenInterest.Interval = Duration(10 * time.Minute)
	}
	if cfg.OpenInterest.Timeout <= 0 {
		cfg.OpenInterest.Timeout = Duration(2 * time.Minute)
	}

	if cfg.Clusters.MinCount <= 0 {
		cfg.Clusters.MinCount = 3
	}
	if cfg.Clusters.MaxGap <= 0 {
		cfg.Clusters.MaxGap = Duration(30 * time.Minute)
	}
	if cfg.Clusters.HistoryLimit <= 0 {
		cfg.Clusters.HistoryLimit = 500
	}

	if cfg.Orchestrator.MaxWorkers <= 0 {
		cfg.Orchestrator.MaxWorkers = 4
	}
	if cfg.Orchestrator.CycleTimeout <= 0 {
		cfg.Orchestrator.CycleTimeout = Duration(3 * time.Minute)
	}

	if cfg.Pricing.RiskFreeRate <= 0 {
		cfg.Pricing.RiskFreeRate = 0.045
	}
	if cfg.Pricing.DefaultConfidence <= 0 {
		cfg.Pricing.DefaultConfidence = 0.68
	}

	if cfg.Feed.History <= 0 {
		cfg.Feed.History = 200
	}

	if cfg.Storage.S3.FlushInterval <= 0 {
		cfg.Storage.S3.FlushInterval = Duration(time.Minute)
	}
	if cfg.Storage.S3.MaxBuffer <= 0 {
		cfg.Storage.S3.MaxBuffer = 5000
	}

	if cfg.Channels.AlertBuffer <= 0 {
		cfg.Channels.AlertBuffer = 1024
	}
	if cfg.Channels.OIBuffer <= 0 {
		cfg.Channels.OIBuffer = 4096
	}
	if cfg.Channels.SignalBuffer <= 0 {
		cfg.Channels.SignalBuffer = 256
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Optionflow.Name == "" {
		return fmt.Errorf("optionflow.name is required")
	}

	if cfg.Optionflow.Version == "" {
		return fmt.Errorf("optionflow.version is required")
	}

	if len(cfg.Fetch.Profiles) < 2 {
		return fmt.Errorf("fetch.profiles needs at least 2 entries for rotation")
	}

	if cfg.Fetch.Retry.MaxDelay < cfg.Fetch.Retry.BaseDelay {
		return fmt.Errorf("fetch.retry.max_delay must be >= fetch.retry.base_delay")
	}

	if cfg.Fetch.Retry.JitterPct >= 1 {
		return fmt.Errorf("fetch.retry.jitter_pct must be below 1.0")
	}

	if cfg.Scanner.Enabled {
		if cfg.Scanner.URL == "" {
			return fmt.Errorf("scanner.url is required when the scanner is enabled")
		}
		// Watchlist files may supply tickers later; only production-like
		// deployments require them up front.
		if len(cfg.Scanner.Tickers) == 0 && IsProductionLike(AppEnvironment()) {
			return fmt.Errorf("scanner.tickers must not be empty when the scanner is enabled")
		}
	}

	if cfg.Scanner.Thresholds.DeltaMin >= cfg.Scanner.Thresholds.DeltaMax {
		return fmt.Errorf("scanner.thresholds.delta_min must be below delta_max")
	}

	if cfg.OpenInterest.Enabled && cfg.OpenInterest.URL == "" {
		return fmt.Errorf("open_interest.url is required when the open-interest fetcher is enabled")
	}

	if cfg.Feed.Enabled && cfg.Feed.Address == "" {
		return fmt.Errorf("feed.address is required when the feed is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
