package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestLogMetricEmitsOnce(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.LogMetric("fetch", "rate_limit_exceeded", int64(1), "counter", Fields{"host": "vendor.example"})

	lines := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"metric_type"`) {
			lines++
		}
	}
	if lines != 1 {
		t.Fatalf("metric logged %d times, want exactly one line:\n%s", lines, buf.String())
	}
}

func TestLogMetricLeavesFieldsUntouched(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	fields := Fields{"host": "vendor.example"}
	log.LogMetric("fetch", "session_rejected", int64(1), "counter", fields)

	if len(fields) != 1 {
		t.Fatalf("caller's field map was modified: %v", fields)
	}
	if !strings.Contains(buf.String(), `"metric":"session_rejected"`) {
		t.Fatalf("metric line missing tags:\n%s", buf.String())
	}
}
