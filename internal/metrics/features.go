package metrics

import (
	"sync"

	appconfig "optionflow/config"
)

// Feature gates optional metric emitters.
type Feature string

const (
	FeatureChannelSize Feature = "channel_size"
	FeatureRateLimit   Feature = "rate_limit"
)

var (
	featureMu sync.RWMutex
	features  = map[Feature]bool{
		FeatureChannelSize: true,
		FeatureRateLimit:   true,
	}
)

// Configure applies the metrics feature toggles from configuration.
func Configure(cfg appconfig.MetricsConfig) {
	featureMu.Lock()
	features[FeatureChannelSize] = cfg.ChannelSize
	features[FeatureRateLimit] = cfg.RateLimit
	featureMu.Unlock()
}

// IsFeatureEnabled reports whether the given metric emitter is active.
func IsFeatureEnabled(f Feature) bool {
	featureMu.RLock()
	defer featureMu.RUnlock()
	return features[f]
}
