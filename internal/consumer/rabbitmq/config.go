package rabbitmq

import (
	"errors"

	"github.com/spf13/viper"
)

const (
	urlKey      = "_URL"
	queueKey    = "_QUEUE"
	prefetchKey = "_PREFETCH_COUNT"
)

// Config configures the queue consumer. Prefetch bounds the number of
// unacknowledged deliveries the broker will push at once.
type Config struct {
	URL           string
	Queue         string
	PrefetchCount int
}

// BuildConfigFromEnv builds the consumer config from <envPrefix>_* keys.
// URL and queue are mandatory. Prefetch falls back to the configured input
// worker count so the broker keeps every worker fed.
func BuildConfigFromEnv(envPrefix string, defaultPrefetch int) (*Config, error) {
	if !viper.IsSet(envPrefix + urlKey) {
		return nil, errors.New(envPrefix + urlKey + " not set")
	}
	if !viper.IsSet(envPrefix + queueKey) {
		return nil, errors.New(envPrefix + queueKey + " not set")
	}
	viper.SetDefault(envPrefix+prefetchKey, defaultPrefetch)
	return &Config{
		URL:           viper.GetString(envPrefix + urlKey),
		Queue:         viper.GetString(envPrefix + queueKey),
		PrefetchCount: viper.GetInt(envPrefix + prefetchKey),
	}, nil
}
