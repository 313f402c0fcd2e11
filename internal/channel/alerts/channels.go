package alerts

import (
	"context"
	"sync"

	"optionflow/internal/models"
	"optionflow/logger"
)

// ChannelStats keeps counters for telemetry.
type ChannelStats struct {
	Sent    int64
	Dropped int64
}

// Channels exposes the unusual-activity alert stream.
type Channels struct {
	Alerts chan models.UnusualActivityRecord

	stats ChannelStats
	mu    sync.RWMutex
	log   *logger.Log
}

// NewChannels constructs the alert channel group.
func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	ch := &Channels{
		Alerts: make(chan models.UnusualActivityRecord, bufferSize),
		log:    log,
	}

	log.WithComponent("alert_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("alert channels initialized")

	return ch
}

// Close releases all resources.
func (c *Channels) Close() {
	close(c.Alerts)
	c.log.WithComponent("alert_channels").Info("alert channels closed")
}

// Send attempts to enqueue an alert without blocking the scanner.
func (c *Channels) Send(ctx context.Context, rec models.UnusualActivityRecord) bool {
	select {
	case c.Alerts <- rec:
		c.incrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementDropped()
		return false
	}
}

// GetStats returns a snapshot of the channel counters.
func (c *Channels) GetStats() ChannelStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Channels) incrementSent() {
	c.mu.Lock()
	c.stats.Sent++
	c.mu.Unlock()
}

func (c *Channels) incrementDropped() {
	c.mu.Lock()
	c.stats.Dropped++
	c.mu.Unlock()
}
