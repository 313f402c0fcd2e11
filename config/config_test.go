package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `optionflow:
  name: "TestApp"
  version: "1.0"
scanner:
  enabled: true
  url: "https://example.com/chain"
  tickers: ["SPY"]
open_interest:
  enabled: true
  url: "https://example.com/oi"
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Optionflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Optionflow.Name)
	}
	if cfg.OpenInterest.PageSize != 1000 {
		t.Errorf("expected default page size 1000, got %d", cfg.OpenInterest.PageSize)
	}
	if cfg.Clusters.MinCount != 3 {
		t.Errorf("expected default cluster min count 3, got %d", cfg.Clusters.MinCount)
	}
	if cfg.Fetch.Retry.MaxAttempts != 4 {
		t.Errorf("expected default max attempts 4, got %d", cfg.Fetch.Retry.MaxAttempts)
	}
	if cfg.Fetch.Retry.JitterPct != 0.2 {
		t.Errorf("expected default jitter 0.2, got %v", cfg.Fetch.Retry.JitterPct)
	}
	if len(cfg.Fetch.Profiles) < 2 {
		t.Errorf("expected default profile pool, got %v", cfg.Fetch.Profiles)
	}
}

func TestLoadConfigRejectsMissingScannerURL(t *testing.T) {
	content := `optionflow:
  name: "TestApp"
  version: "1.0"
scanner:
  enabled: true
  tickers: ["SPY"]
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected validation error for missing scanner.url")
	}
}

func TestLoadWatchlists(t *testing.T) {
	content := `watchlists:
- name: "indices"
  tickers: ["spy", "QQQ"]
  oi_tickers: ["SPY"]
- name: "mega"
  tickers: ["AAPL", "SPY"]
`
	f, err := os.CreateTemp("", "watch-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	lists, err := LoadWatchlists(f.Name())
	if err != nil {
		t.Fatalf("LoadWatchlists failed: %v", err)
	}
	if len(lists.Lists) != 2 {
		t.Fatalf("expected 2 watchlists, got %d", len(lists.Lists))
	}
	all := lists.AllTickers()
	want := []string{"SPY", "QQQ", "AAPL"}
	if len(all) != len(want) {
		t.Fatalf("unexpected union %v", all)
	}
	for i, w := range want {
		if all[i] != w {
			t.Errorf("union[%d] = %s, want %s", i, all[i], w)
		}
	}
	if oi := lists.AllOITickers(); len(oi) != 1 || oi[0] != "SPY" {
		t.Errorf("unexpected oi union %v", oi)
	}
}

func TestDurationsParsed(t *testing.T) {
	content := `optionflow:
  name: "TestApp"
  version: "1.0"
fetch:
  retry:
    base_delay: 500ms
    max_delay: 10s
clusters:
  max_gap: 2m
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Fetch.Retry.BaseDelay.Std() != 500*time.Millisecond {
		t.Errorf("base delay = %v", cfg.Fetch.Retry.BaseDelay)
	}
	if cfg.Clusters.MaxGap.Std() != 2*time.Minute {
		t.Errorf("max gap = %v", cfg.Clusters.MaxGap)
	}
}

func TestEmptyTickersAllowedOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	content := `optionflow:
  name: "TestApp"
  version: "1.0"
scanner:
  enabled: true
  url: "https://example.com/chain"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if _, err := LoadConfig(f.Name()); err != nil {
		t.Fatalf("expected watchlist-supplied tickers to be acceptable in development: %v", err)
	}

	t.Setenv("APP_ENV", "production")
	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected production to require tickers up front")
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"prod":       EnvironmentProduction,
		"stag":       EnvironmentStaging,
		"":           EnvironmentDevelopment,
		"production": EnvironmentProduction,
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment with APP_ENV=%q = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
