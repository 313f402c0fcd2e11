package rate

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"optionflow/logger"
)

func TestExtractInts(t *testing.T) {
	cases := []struct {
		in   string
		want []int64
	}{
		{"30", []int64{30}},
		{"wait 30s then 60s", []int64{30, 60}},
		{"no digits here", []int64{}},
		{"", []int64{}},
	}
	for _, tc := range cases {
		got := extractInts(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("extractInts(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("extractInts(%q) = %v, want %v", tc.in, got, tc.want)
				break
			}
		}
	}
}

func TestRetryAfterHintSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "45")
	if got := RetryAfterHint(h); got != 45*time.Second {
		t.Fatalf("expected 45s, got %v", got)
	}
}

func TestRetryAfterHintMissing(t *testing.T) {
	if got := RetryAfterHint(http.Header{}); got != 0 {
		t.Fatalf("expected zero hint, got %v", got)
	}
}

func TestRetryAfterHintHTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().UTC().Add(90*time.Second).Format(http.TimeFormat))
	got := RetryAfterHint(h)
	if got <= 80*time.Second || got > 90*time.Second {
		t.Fatalf("expected roughly 90s, got %v", got)
	}
}

func TestRetryAfterHintPastDateIgnored(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().UTC().Add(-time.Minute).Format(http.TimeFormat))
	if got := RetryAfterHint(h); got != 0 {
		t.Fatalf("expected zero hint for past date, got %v", got)
	}
}

func TestRetryAfterHintCapped(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "86400")
	if got := RetryAfterHint(h); got != maxRetryAfterHint {
		t.Fatalf("expected cap %v, got %v", maxRetryAfterHint, got)
	}
}

func TestReportFromStatusRouting(t *testing.T) {
	cases := []struct {
		status int
		metric string
	}{
		{http.StatusTooManyRequests, "rate_limit_exceeded"},
		{http.StatusForbidden, "session_rejected"},
	}
	for _, tc := range cases {
		log := logger.Logger()
		var buf bytes.Buffer
		log.SetOutput(&buf)

		ReportFromStatus(log, "Vendor.Example", "chrome120", "/chain", tc.status)
		if !strings.Contains(buf.String(), tc.metric) {
			t.Errorf("status %d: expected %q metric, got:\n%s", tc.status, tc.metric, buf.String())
		}
	}
}

func TestReportFromStatusIgnoresOtherStatuses(t *testing.T) {
	log := logger.Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	ReportFromStatus(log, "vendor.example", "chrome120", "/chain", http.StatusInternalServerError)
	if strings.Contains(buf.String(), "metric_type") {
		t.Fatalf("5xx must not emit a rejection metric:\n%s", buf.String())
	}
}
