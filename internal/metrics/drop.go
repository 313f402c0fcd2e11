package metrics

import "optionflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricAlert records dropped unusual-activity records.
	DropMetricAlert DropMetric = "alert_records_dropped"
	// DropMetricOIBatch records dropped open-interest batches.
	DropMetricOIBatch DropMetric = "oi_batches_dropped"
	// DropMetricSignal records dropped cluster events.
	DropMetricSignal DropMetric = "signal_events_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel message.
// The value is always one so callers invoke this helper per dropped message.
// The ticker and stage are attached when provided so drops aggregate per
// stream downstream.
func EmitDropMetric(log *logger.Log, metric DropMetric, ticker, stage string) {
	fields := logger.Fields{}
	if ticker != "" {
		fields["ticker"] = ticker
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
