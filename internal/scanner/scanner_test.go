package scanner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "optionflow/config"
	alertchannel "optionflow/internal/channel/alerts"
	"optionflow/internal/fetch"
	"optionflow/internal/models"
	"optionflow/logger"
)

const chainBody = `{
	"ticker": "NVDA",
	"timestamp": 1718800000000,
	"contracts": [
		{"symbol": "NVDA240920C00120000", "strike": 120, "expiration": "2024-09-20", "type": "CALL",
		 "volume": 45000, "openInterest": 15000, "lastPrice": 12.5, "bid": 12.3, "ask": 12.5, "delta": 0.55, "impliedVolatility": 0.42},
		{"symbol": "NVDA240920C00130000", "strike": 130, "expiration": "2024-09-20", "type": "CALL",
		 "volume": 100, "openInterest": 50, "lastPrice": 5.0, "bid": 4.9, "ask": 5.1, "delta": 0.3},
		{"symbol": "NVDA240920P00110000", "strike": 110, "expiration": "2024-09-20", "type": "PUT",
		 "volume": 60000, "openInterest": 20000, "lastPrice": 9.0, "bid": 9.0, "ask": 9.2, "delta": -0.45},
		{"symbol": "NVDA240920C00140000", "strike": 140, "expiration": "2024-09-20", "type": "CALL",
		 "openInterest": 99999, "lastPrice": 1.0}
	]
}`

func testScannerConfig(url string) appconfig.ScannerConfig {
	return appconfig.ScannerConfig{
		Enabled:    true,
		URL:        url,
		Timeout:    appconfig.Duration(2 * time.Second),
		Tickers:    []string{"NVDA"},
		Thresholds: appconfig.ThresholdConfig{
			MinVolume:       30000,
			MinOpenInterest: 10000,
			MinPremium:      5000000,
			DeltaMin:        -1,
			DeltaMax:        1,
		},
	}
}

func testClient(t *testing.T) func(url string) *fetch.Client {
	t.Helper()
	return func(url string) *fetch.Client {
		return fetch.NewClient(appconfig.FetchConfig{
			Profiles:  []string{"chrome120", "chrome124"},
			Timeout:   appconfig.Duration(2 * time.Second),
			RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100},
			Retry: appconfig.RetryConfig{
				MaxAttempts: 2,
				BaseDelay:   appconfig.Duration(time.Millisecond),
				MaxDelay:    appconfig.Duration(4 * time.Millisecond),
				JitterPct:   0.2,
			},
			Session: appconfig.SessionConfig{MaxRequests: 50, MaxAge: appconfig.Duration(time.Hour)},
			CircuitBreaker: appconfig.CircuitBreakerConfig{
				FailureThreshold:    50,
				RecoveryTimeout:     appconfig.Duration(time.Second),
				HalfOpenMaxRequests: 1,
			},
		}, logger.Logger())
	}
}

func TestScanFiltersByThresholds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ticker") != "NVDA" {
			t.Errorf("missing ticker query parameter")
		}
		w.Write([]byte(chainBody))
	}))
	defer srv.Close()

	s := NewScanner(testScannerConfig(srv.URL), testClient(t)(srv.URL), alertchannel.NewChannels(16))
	snapshot, records, err := s.Scan(context.Background(), "nvda")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// the contract missing volume/strike is dropped, the rest parse
	if len(snapshot.Contracts) != 3 {
		t.Fatalf("expected 3 parsed contracts, got %d", len(snapshot.Contracts))
	}
	// only the 120C (premium 56.25M) and 110P (premium 54M) clear every threshold
	if len(records) != 2 {
		t.Fatalf("expected 2 unusual-activity records, got %d", len(records))
	}
	if records[0].Contract.Symbol != "NVDA240920C00120000" {
		t.Fatalf("unexpected first record: %s", records[0].Contract.Symbol)
	}
	if records[0].Side != models.SideAsk {
		t.Fatalf("120C printed at the ask, got side %s", records[0].Side)
	}
	if records[1].Side != models.SideBid {
		t.Fatalf("110P printed at the bid, got side %s", records[1].Side)
	}
}

func TestScanParseFailureProducesNoRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker": "NVDA", "contracts": `))
	}))
	defer srv.Close()

	s := NewScanner(testScannerConfig(srv.URL), testClient(t)(srv.URL), alertchannel.NewChannels(16))
	snapshot, records, err := s.Scan(context.Background(), "NVDA")
	if !IsParseFailure(err) {
		t.Fatalf("expected parse failure, got %v", err)
	}
	if snapshot != nil || records != nil {
		t.Fatal("parse failure must not yield partial results")
	}
}

func TestScanRejectsMismatchedTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker": "TSLA", "contracts": [{"symbol": "X", "strike": 1, "expiration": "2024-09-20", "type": "CALL", "volume": 1, "openInterest": 1, "lastPrice": 1}]}`))
	}))
	defer srv.Close()

	s := NewScanner(testScannerConfig(srv.URL), testClient(t)(srv.URL), alertchannel.NewChannels(16))
	if _, _, err := s.Scan(context.Background(), "NVDA"); !IsParseFailure(err) {
		t.Fatalf("expected parse failure for mismatched ticker, got %v", err)
	}
}

func TestScanCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	s := NewScanner(testScannerConfig(srv.URL), testClient(t)(srv.URL), alertchannel.NewChannels(16))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := s.Scan(ctx, "NVDA")
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestScanTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	cfg := testScannerConfig(srv.URL)
	cfg.Timeout = appconfig.Duration(50 * time.Millisecond)
	s := NewScanner(cfg, testClient(t)(srv.URL), alertchannel.NewChannels(16))

	_, _, err := s.Scan(context.Background(), "NVDA")
	var se *ScanError
	if !errors.As(err, &se) || se.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestPublishDeliversRecords(t *testing.T) {
	ch := alertchannel.NewChannels(4)
	s := NewScanner(testScannerConfig("http://vendor.example/chain"), testClient(t)(""), ch)

	records := []models.UnusualActivityRecord{
		{Ticker: "NVDA"},
		{Ticker: "NVDA"},
	}
	s.Publish(context.Background(), records)

	if got := len(ch.Alerts); got != 2 {
		t.Fatalf("expected 2 queued alerts, got %d", got)
	}
}
