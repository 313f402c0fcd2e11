package metrics

import (
	"context"
	"time"

	"optionflow/internal/channel"
	"optionflow/logger"
)

// StartChannelSizeMetrics emits occupancy metrics for the alert, open-interest
// and signal channel buffers. Metrics are logged every `interval` until the
// context is cancelled. When interval <=0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if channels.Alerts != nil {
					EmitMetric(log, component, "alert_buffer_length", len(channels.Alerts.Alerts), "gauge", logger.Fields{
						"buffer":   "alerts",
						"capacity": cap(channels.Alerts.Alerts),
					})
				}
				if channels.OI != nil {
					EmitMetric(log, component, "oi_buffer_length", len(channels.OI.Batches), "gauge", logger.Fields{
						"buffer":   "oi_batches",
						"capacity": cap(channels.OI.Batches),
					})
				}
				if channels.Signals != nil {
					EmitMetric(log, component, "signal_buffer_length", len(channels.Signals.Events), "gauge", logger.Fields{
						"buffer":   "signals",
						"capacity": cap(channels.Signals.Events),
					})
				}
			}
		}
	}()
}
