// Package pixelgate provides a top-level convenience entry point for
// creating an image-generation dispatcher with minimal boilerplate.
//
// Usage:
//
//	import "github.com/pixelgate/pixelgate"
//
//	d, err := pixelgate.New()
//	d, err := pixelgate.New(pixelgate.WithProviders("openai", "flux"))
//	d, err := pixelgate.New(pixelgate.WithCredentials(gateway.StaticCredentialSource{"openai": key}))
//
// The dispatcher comes wired with every built-in provider adapter and
// reads credentials from the environment (<PROVIDER>_API_KEY) unless a
// credential source is supplied. For full control over profiles, caching
// and metrics, build a gateway.Dispatcher directly.
package pixelgate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
	"github.com/pixelgate/pixelgate/gateway/adapters/flux"
	"github.com/pixelgate/pixelgate/gateway/adapters/jimeng"
	"github.com/pixelgate/pixelgate/gateway/adapters/openai"
	"github.com/pixelgate/pixelgate/gateway/adapters/stability"
)

// Option configures the dispatcher created by [New].
type Option func(*settings)

type settings struct {
	providers   []string
	logger      *zap.Logger
	client      adapters.HTTPDoer
	credentials gateway.CredentialSource
	cache       gateway.Cache
	metrics     gateway.Metrics
	retry       gateway.RetryConfig
}

// WithProviders restricts the registered providers to the named built-ins
// (openai, jimeng, stability, flux). The default registers all of them.
func WithProviders(names ...string) Option {
	return func(s *settings) { s.providers = names }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithHTTPClient substitutes the outbound HTTP client used by every
// adapter.
func WithHTTPClient(client adapters.HTTPDoer) Option {
	return func(s *settings) { s.client = client }
}

// WithCredentials overrides the environment-based credential source.
func WithCredentials(source gateway.CredentialSource) Option {
	return func(s *settings) { s.credentials = source }
}

// WithCache attaches a result cache.
func WithCache(cache gateway.Cache) Option {
	return func(s *settings) { s.cache = cache }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics gateway.Metrics) Option {
	return func(s *settings) { s.metrics = metrics }
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg gateway.RetryConfig) Option {
	return func(s *settings) { s.retry = cfg }
}

// New creates a ready-to-use dispatcher over the built-in providers.
func New(opts ...Option) (*gateway.Dispatcher, error) {
	s := &settings{
		providers: []string{"openai", "jimeng", "stability", "flux"},
		retry:     gateway.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = adapters.DefaultClient()
	}

	builtins := map[string]struct {
		profile gateway.ProviderProfile
		factory gateway.AdapterFactory
	}{
		"openai":    {openai.DefaultProfile(), openai.Factory(s.client, s.logger)},
		"jimeng":    {jimeng.DefaultProfile(), jimeng.Factory(s.client, s.logger)},
		"stability": {stability.DefaultProfile(), stability.Factory(s.client, s.logger)},
		"flux":      {flux.DefaultProfile(), flux.Factory(s.client, s.logger)},
	}

	registry := gateway.NewRegistry()
	for _, name := range s.providers {
		b, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown built-in provider %q", name)
		}
		if err := registry.Register(b.profile, b.factory); err != nil {
			return nil, err
		}
	}

	return gateway.NewDispatcher(gateway.DispatcherConfig{
		Registry:    registry,
		Credentials: s.credentials,
		Cache:       s.cache,
		Metrics:     s.metrics,
		Retry:       s.retry,
		Logger:      s.logger,
	}), nil
}
