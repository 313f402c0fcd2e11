package rate

import (
	"net/http"
	"strings"

	"optionflow/logger"
)

// ReportRateLimitExceeded increments the rate limit counter for the given
// vendor host and emits the metric to CloudWatch. The fingerprint profile in
// use when the vendor rejected the request is attached so bans can be
// correlated with specific profiles.
func ReportRateLimitExceeded(log *logger.Log, host, profile, stream string) {
	l := log.WithComponent("fetch")
	fields := logger.Fields{
		"host":    strings.ToLower(host),
		"profile": profile,
		"stream":  strings.ToLower(stream),
	}
	l.LogMetric("fetch", "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportSessionRejected increments the session rejection counter for the given
// vendor host and emits the metric to CloudWatch.
func ReportSessionRejected(log *logger.Log, host, profile, stream string) {
	l := log.WithComponent("fetch")
	fields := logger.Fields{
		"host":    strings.ToLower(host),
		"profile": profile,
		"stream":  strings.ToLower(stream),
	}
	l.LogMetric("fetch", "session_rejected", int64(1), "counter", fields)
	l.WithFields(fields).Warn("session rejected")
}

// ReportFromStatus records the appropriate metric for a vendor rejection
// status. Statuses that signal neither throttling nor a rejected session are
// ignored.
func ReportFromStatus(log *logger.Log, host, profile, stream string, status int) {
	switch status {
	case http.StatusTooManyRequests:
		ReportRateLimitExceeded(log, host, profile, stream)
	case http.StatusForbidden:
		ReportSessionRejected(log, host, profile, stream)
	}
}
