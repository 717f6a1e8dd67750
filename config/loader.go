// Package config loads gateway configuration from defaults, an optional
// YAML file and environment variable overrides, in that precedence order.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("pixelgate.yaml").
//	    WithEnvPrefix("PIXELGATE").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pixelgate/pixelgate/gateway"
)

// Config is the complete pixelgate configuration.
type Config struct {
	// Log controls the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Retry is the dispatch retry/backoff policy.
	Retry RetrySpec `yaml:"retry" env:"RETRY"`

	// Cache configures the optional Redis result cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Metrics configures the Prometheus exposition endpoint.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Providers overrides or extends the built-in provider profiles.
	// Entries here replace a built-in profile of the same name wholesale.
	Providers []ProviderSpec `yaml:"providers"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console
	Format string `yaml:"format" env:"FORMAT"`
}

// RetrySpec mirrors the dispatcher retry policy with env override support.
type RetrySpec struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter      bool          `yaml:"jitter" env:"JITTER"`
	// PerProvider caps attempts for individual providers.
	PerProvider map[string]int `yaml:"per_provider"`
}

// ToRetryConfig converts the YAML retry settings into the dispatcher's
// policy type.
func (r RetrySpec) ToRetryConfig() gateway.RetryConfig {
	return gateway.RetryConfig{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.Multiplier,
		Jitter:      r.Jitter,
		PerProvider: r.PerProvider,
	}
}

// CacheConfig configures the Redis result cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Addr       string        `yaml:"addr" env:"ADDR"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	DB         int           `yaml:"db" env:"DB"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	PoolSize   int           `yaml:"pool_size" env:"POOL_SIZE"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Addr      string `yaml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// ProviderSpec is the YAML shape of one provider profile.
type ProviderSpec struct {
	Name               string        `yaml:"name"`
	Endpoint           string        `yaml:"endpoint"`
	RequiredParams     []string      `yaml:"required_params"`
	SupportedSizes     []string      `yaml:"supported_sizes"`
	SupportedQualities []string      `yaml:"supported_qualities"`
	SupportedStyles    []string      `yaml:"supported_styles"`
	RateLimit          RateLimitSpec `yaml:"rate_limit"`
	MinCount           int           `yaml:"min_count"`
	MaxCount           int           `yaml:"max_count"`
	MaxInFlight        int           `yaml:"max_in_flight"`
}

// RateLimitSpec is the YAML shape of a provider's declared rate limits.
type RateLimitSpec struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`
}

// ToProfile converts the YAML provider entry into a gateway profile. The profile is not
// validated here; Profiles runs CheckComplete over the whole set.
func (p ProviderSpec) ToProfile() gateway.ProviderProfile {
	return gateway.ProviderProfile{
		Name:               p.Name,
		Endpoint:           p.Endpoint,
		RequiredParams:     p.RequiredParams,
		SupportedSizes:     p.SupportedSizes,
		SupportedQualities: p.SupportedQualities,
		SupportedStyles:    p.SupportedStyles,
		RateLimit: gateway.RateLimitSpec{
			RequestsPerMinute: p.RateLimit.RequestsPerMinute,
			TokensPerMinute:   p.RateLimit.TokensPerMinute,
		},
		MinCount:    p.MinCount,
		MaxCount:    p.MaxCount,
		MaxInFlight: p.MaxInFlight,
	}
}

// Profiles converts every configured provider spec into a validated
// gateway profile. Any structural gap aborts the whole conversion so a
// bad config never half-loads.
func (c *Config) Profiles() ([]gateway.ProviderProfile, error) {
	profiles := make([]gateway.ProviderProfile, 0, len(c.Providers))
	for _, spec := range c.Providers {
		profile := spec.ToProfile()
		if err := profile.CheckComplete(); err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the PIXELGATE env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PIXELGATE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults and environment still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then YAML, then env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively; only fields carrying an
// env tag participate, so the provider list stays YAML-only.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks scalar settings for obviously broken values.
func (c *Config) Validate() error {
	var errs []string

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must not be negative")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when the cache is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
