package oi

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

// Channels carries per-ticker open-interest batches from the paginated
// fetcher to the signal processor. A batch is the complete, deduplicated
// result of one fetchAll; partial pages never enter the channel.
type Channels struct {
	Batches chan models.OIBatch

	stats ChannelStats
	mu    sync.RWMutex
	log   *logger.Log
}

// NewChannels constructs the open-interest channel group.
func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	ch := &Channels{
		Batches: make(chan models.OIBatch, bufferSize),
		log:     log,
	}

	log.WithComponent("oi_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("open-interest channels initialized")

	return ch
}

// Close releases all resources.
func (c *Channels) Close() {
	close(c.Batches)
	c.log.WithComponent("oi_channels").Info("open-interest channels closed")
}

// Send attempts to enqueue a batch without blocking the fetcher.
func (c *Channels) Send(ctx context.Context, batch models.OIBatch) bool {
	select {
	case c.Batches <- batch:
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
