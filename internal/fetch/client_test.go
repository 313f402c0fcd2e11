package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"optionflow/config"
	"optionflow/logger"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Profiles: []string{"chrome120", "chrome124", "safari17_0"},
		Timeout:  config.Duration(5 * time.Second),
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 1000,
			BurstSize:         100,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   config.Duration(time.Millisecond),
			MaxDelay:    config.Duration(8 * time.Millisecond),
			JitterPct:   0.2,
		},
		Session: config.SessionConfig{
			MaxRequests: 100,
			MaxAge:      config.Duration(time.Hour),
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold:    50,
			RecoveryTimeout:     config.Duration(time.Second),
			HalfOpenMaxRequests: 1,
		},
	}
}

func TestBackoffSchedule(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second, 0)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := b.DelayFor(i); got != w {
			t.Fatalf("attempt %d: got %v want %v", i, got, w)
		}
	}

	// pre-jitter sequence is non-decreasing and capped
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.DelayFor(i)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", i, d, prev)
		}
		if d > 8*time.Second {
			t.Fatalf("delay exceeded ceiling: %v", d)
		}
		prev = d
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0.2)
	for i := 0; i < 50; i++ {
		b.Reset()
		d := b.Next()
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside +-20%% of base", d)
		}
	}
}

func TestSessionRetiredAfterTwoRejections(t *testing.T) {
	pool := NewSessionPool([]string{"chrome120", "chrome124"}, 100, time.Hour)

	s := pool.Acquire("vendor.example")
	if retired := pool.RecordRejection(s); retired {
		t.Fatal("session retired after a single rejection")
	}
	if retired := pool.RecordRejection(s); !retired {
		t.Fatal("session not retired after two consecutive rejections")
	}

	next := pool.Acquire("vendor.example")
	if next.ID == s.ID {
		t.Fatal("retired session was reused")
	}
}

func TestSessionRejectionStreakResetsOnSuccess(t *testing.T) {
	pool := NewSessionPool([]string{"chrome120", "chrome124"}, 100, time.Hour)

	s := pool.Acquire("vendor.example")
	pool.RecordRejection(s)
	pool.RecordSuccess(s)
	if retired := pool.RecordRejection(s); retired {
		t.Fatal("non-consecutive rejections retired the session")
	}
}

func TestProfileRotationAvoidsImmediateReuse(t *testing.T) {
	pool := NewSessionPool([]string{"chrome120", "chrome124", "safari17_0"}, 1, time.Hour)

	prev := pool.Acquire("vendor.example").Profile
	for i := 0; i < 20; i++ {
		// MaxRequests=1 forces a fresh session per acquire
		profile := pool.Acquire("vendor.example").Profile
		if profile == prev {
			t.Fatalf("profile %q reused back to back", profile)
		}
		prev = profile
	}
}

func TestClientRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		tokens = append(tokens, r.Header.Get("X-Session-Token"))
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(testFetchConfig(), logger.Logger())
	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	// 429 must retire the session: the follow-up request carries a new token
	if tokens[1] == tokens[0] || tokens[2] == tokens[1] {
		t.Fatalf("session token reused across rate-limit renewals: %v", tokens)
	}
}

func TestClientExhaustsOnPersistentRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(testFetchConfig(), logger.Logger())
	_, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil)
	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestClientLimiterWaitBeyondDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.BurstSize = 1
	client := NewClient(cfg, logger.Logger())

	// consume the single burst token
	if _, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil); err != nil {
		t.Fatalf("warm-up request failed: %v", err)
	}

	// the next token is ~1000s away; the limiter refuses the wait up front,
	// before the context itself expires
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	resp, err := client.Do(ctx, http.MethodGet, srv.URL, nil)
	if err == nil {
		t.Fatalf("expected error, got resp=%v err=nil", resp)
	}
	if resp != nil {
		t.Fatalf("response must be nil on error, got %v", resp)
	}
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestClientExhaustsOnPersistentRejection(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(testFetchConfig(), logger.Logger())
	_, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil)

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindSessionRejected {
		t.Fatalf("expected session_rejected error, got %v", err)
	}
	if fe.Status != http.StatusForbidden {
		t.Fatalf("status = %d", fe.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestClientCancelledMidBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.Retry.BaseDelay = config.Duration(5 * time.Second)
	cfg.Retry.MaxDelay = config.Duration(5 * time.Second)
	client := NewClient(cfg, logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Do(ctx, http.MethodGet, srv.URL, nil)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancellation did not abort the backoff sleep promptly")
	}
}

func TestClientFailsFastOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testFetchConfig(), logger.Logger())
	_, err := client.Do(context.Background(), http.MethodGet, srv.URL, nil)
	if err == nil || IsExhausted(err) {
		t.Fatalf("expected immediate transport error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx responses must not be retried, got %d attempts", calls)
	}
}
