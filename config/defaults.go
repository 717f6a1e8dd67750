// Default values for every configuration section.
package config

import "time"

// DefaultConfig returns the full default configuration. The provider list
// defaults to empty; callers typically register the built-in profiles and
// let YAML entries override them.
func DefaultConfig() *Config {
	return &Config{
		Log:     DefaultLogConfig(),
		Retry:   DefaultRetrySpec(),
		Cache:   DefaultCacheConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultRetrySpec returns the default retry policy settings.
func DefaultRetrySpec() RetrySpec {
	return RetrySpec{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// DefaultCacheConfig returns the default cache settings. The cache is
// disabled until explicitly enabled.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    false,
		Addr:       "localhost:6379",
		DefaultTTL: 15 * time.Minute,
		PoolSize:   10,
	}
}

// DefaultMetricsConfig returns the default metrics settings.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "pixelgate",
	}
}
