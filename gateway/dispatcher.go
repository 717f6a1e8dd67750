package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/pixelgate/pixelgate/gateway"

// DispatcherConfig wires the dispatcher's collaborators. Registry is
// required; everything else has a working default.
type DispatcherConfig struct {
	Registry    *Registry
	Credentials CredentialSource
	Cache       Cache   // optional
	Metrics     Metrics // optional
	Retry       RetryConfig
	Logger      *zap.Logger
}

// Dispatcher resolves the provider for each request and drives the
// validate -> rate-limit -> call -> retry pipeline, plus concurrent batch
// fan-out. It is safe for concurrent use.
type Dispatcher struct {
	registry    *Registry
	credentials CredentialSource
	cache       Cache
	metrics     Metrics
	limiter     *RateLimiter
	retrier     *Retrier
	logger      *zap.Logger
	tracer      trace.Tracer

	mu       sync.Mutex
	adapters map[string]Adapter // built lazily, dropped on reload
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	credentials := cfg.Credentials
	if credentials == nil {
		credentials = &EnvCredentialSource{}
	}
	limiter := NewRateLimiter(cfg.Registry, logger)
	retrier := NewRetrier(cfg.Retry, limiter, logger)
	retrier.metrics = metrics
	return &Dispatcher{
		registry:    cfg.Registry,
		credentials: credentials,
		cache:       cfg.Cache,
		metrics:     metrics,
		limiter:     limiter,
		retrier:     retrier,
		logger:      logger.With(zap.String("component", "dispatcher")),
		tracer:      otel.Tracer(tracerName),
		adapters:    make(map[string]Adapter),
	}
}

// ListProviders returns registered provider names in registration order.
func (d *Dispatcher) ListProviders() []string {
	return d.registry.List()
}

// GetProviderProfile returns the capability profile for name, or an
// UNKNOWN_PROVIDER error.
func (d *Dispatcher) GetProviderProfile(name string) (ProviderProfile, error) {
	return d.registry.Lookup(name)
}

// Reload atomically replaces the profile set, resets rate-limit state and
// drops cached adapter instances so the next dispatch rebuilds them
// against the fresh profiles.
func (d *Dispatcher) Reload(profiles []ProviderProfile) error {
	if err := d.registry.Reload(profiles); err != nil {
		return err
	}
	d.limiter.Reset()
	d.mu.Lock()
	d.adapters = make(map[string]Adapter)
	d.mu.Unlock()
	d.logger.Info("profile set reloaded", zap.Int("providers", len(profiles)))
	return nil
}

// Generate runs one request through the full pipeline and always returns
// a normalized GenerationResult. The error return carries the same
// classified *Error for callers that prefer errors.As over inspecting
// the result; it is nil exactly when the result is successful.
func (d *Dispatcher) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "gateway.Generate",
		trace.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.Int("count", req.CountOrDefault()),
		))
	defer span.End()

	profile, err := d.registry.Lookup(req.Provider)
	if err != nil {
		// Programming error: surfaces before any work begins.
		span.SetStatus(codes.Error, "unknown provider")
		d.metrics.ObserveGeneration(req.Provider, string(ErrUnknownProvider), time.Since(start).Seconds())
		return FailureResult(req.Provider, AsGatewayError(err, req.Provider)), err
	}

	if err := Validate(req, &profile); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		d.metrics.ObserveGeneration(req.Provider, string(ErrValidation), time.Since(start).Seconds())
		return FailureResult(req.Provider, AsGatewayError(err, req.Provider)), err
	}

	key := CacheKey(req)
	if d.cache != nil {
		if cached, ok := d.cache.Get(ctx, key); ok {
			d.metrics.AddCacheHit(req.Provider)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			d.metrics.ObserveGeneration(req.Provider, "success", time.Since(start).Seconds())
			return cached, nil
		}
		d.metrics.AddCacheMiss(req.Provider)
	}

	adapter, err := d.adapter(req.Provider, profile)
	if err != nil {
		span.SetStatus(codes.Error, "adapter unavailable")
		gerr := AsGatewayError(err, req.Provider)
		d.metrics.ObserveGeneration(req.Provider, string(gerr.Code), time.Since(start).Seconds())
		return FailureResult(req.Provider, gerr), err
	}

	result, err := d.retrier.Invoke(ctx, adapter, req)
	normalized := Normalize(req.Provider, result, err)
	if !normalized.Success {
		gerr := AsGatewayError(err, req.Provider)
		span.SetStatus(codes.Error, string(gerr.Code))
		d.metrics.ObserveGeneration(req.Provider, string(normalized.ErrorKind), time.Since(start).Seconds())
		return normalized, gerr
	}

	if d.cache != nil {
		d.cache.Put(ctx, key, normalized)
	}
	d.metrics.ObserveGeneration(req.Provider, "success", time.Since(start).Seconds())
	d.logger.Debug("generation complete",
		zap.String("provider", req.Provider),
		zap.Int("images", len(normalized.Images)),
		zap.Duration("elapsed", time.Since(start)))
	return normalized, nil
}

// BatchGenerate fans the requests out concurrently, bounded per provider
// by the profile's in-flight limit, and returns results index-aligned
// with the input. One request's failure never cancels or blocks its
// siblings; slots for unknown providers carry UNKNOWN_PROVIDER results.
func (d *Dispatcher) BatchGenerate(ctx context.Context, requests []GenerationRequest) []*GenerationResult {
	job := &BatchJob{
		ID:       uuid.NewString(),
		Requests: requests,
		Results:  make([]*GenerationResult, len(requests)),
	}
	d.metrics.ObserveBatch(len(requests))

	ctx, span := d.tracer.Start(ctx, "gateway.BatchGenerate",
		trace.WithAttributes(
			attribute.String("batch_id", job.ID),
			attribute.Int("size", len(requests)),
		))
	defer span.End()

	sems := d.providerSemaphores(requests)

	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			req := &job.Requests[slot]

			if sem, ok := sems[req.Provider]; ok {
				if err := sem.Acquire(ctx, 1); err != nil {
					job.Results[slot] = FailureResult(req.Provider,
						NewError(ErrCancelled, "cancelled before dispatch").
							WithProvider(req.Provider).WithCause(err))
					return
				}
				defer sem.Release(1)
			}

			result, _ := d.Generate(ctx, req)
			job.Results[slot] = result
		}(i)
	}
	wg.Wait()

	d.logger.Info("batch complete",
		zap.String("batch_id", job.ID),
		zap.Int("requests", len(job.Requests)))
	return job.Results
}

// providerSemaphores builds one in-flight semaphore per distinct known
// provider in the batch. Unknown providers get none; their slots fail in
// Generate without touching any shared state.
func (d *Dispatcher) providerSemaphores(requests []GenerationRequest) map[string]*semaphore.Weighted {
	sems := make(map[string]*semaphore.Weighted)
	for i := range requests {
		name := requests[i].Provider
		if _, ok := sems[name]; ok {
			continue
		}
		profile, err := d.registry.Lookup(name)
		if err != nil {
			continue
		}
		sems[name] = semaphore.NewWeighted(int64(profile.InFlightLimit()))
	}
	return sems
}

// adapter returns the cached adapter for the provider, building it on
// first use once the credential resolves.
func (d *Dispatcher) adapter(name string, profile ProviderProfile) (Adapter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.adapters[name]; ok {
		return a, nil
	}
	factory, err := d.registry.Factory(name)
	if err != nil {
		return nil, err
	}
	credential, err := d.credentials.Credential(name)
	if err != nil {
		return nil, err
	}
	a, err := factory(profile, credential)
	if err != nil {
		return nil, AsGatewayError(err, name)
	}
	d.adapters[name] = a
	return a, nil
}
