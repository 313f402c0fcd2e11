package signals

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

// Channels carries closed cluster events from the signal processor to the
// downstream consumers (feed, storage).
type Channels struct {
	Events chan models.ClusterEvent

	stats ChannelStats
	mu    sync.RWMutex
	log   *logger.Log
}

// NewChannels constructs the signal channel group.
func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	ch := &Channels{
		Events: make(chan models.ClusterEvent, bufferSize),
		log:    log,
	}

	log.WithComponent("signal_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("signal channels initialized")

	return ch
}

// Close releases all resources.
func (c *Channels) Close() {
	close(c.Events)
	c.log.WithComponent("signal_channels").Info("signal channels closed")
}

// Send attempts to enqueue an event without blocking the processor.
func (c *Channels) Send(ctx context.Context, evt models.ClusterEvent) bool {
	select {
	case c.Events <- evt:
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
