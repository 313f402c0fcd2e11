package channel

import (
	"optionflow/internal/channel/alerts"
	"optionflow/internal/channel/oi"
	"optionflow/internal/channel/signals"
)

// Channels groups the three pipeline streams: unusual-activity alerts from
// the scanner, open-interest batches from the paginated fetcher, and cluster
// events from the signal processor.
type Channels struct {
	Alerts  *alerts.Channels
	OI      *oi.Channels
	Signals *signals.Channels
}

func NewChannels(alertBuffer, oiBuffer, signalBuffer int) *Channels {
	return &Channels{
		Alerts:  alerts.NewChannels(alertBuffer),
		OI:      oi.NewChannels(oiBuffer),
		Signals: signals.NewChannels(signalBuffer),
	}
}

func (c *Channels) Close() {
	if c.Alerts != nil {
		c.Alerts.Close()
	}
	if c.OI != nil {
		c.OI.Close()
	}
	if c.Signals != nil {
		c.Signals.Close()
	}
}
