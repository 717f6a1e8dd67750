package gateway

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig holds retry/backoff policy for adapter invocations.
type RetryConfig struct {
	MaxAttempts int            `json:"max_attempts" yaml:"max_attempts"` // total attempts including the first, default 3
	BaseDelay   time.Duration  `json:"base_delay" yaml:"base_delay"`     // default 500ms
	MaxDelay    time.Duration  `json:"max_delay" yaml:"max_delay"`       // default 30s
	Multiplier  float64        `json:"multiplier" yaml:"multiplier"`     // default 2.0
	Jitter      bool           `json:"jitter" yaml:"jitter"`             // full jitter when true
	PerProvider map[string]int `json:"per_provider,omitempty" yaml:"per_provider"`
}

// DefaultRetryConfig returns the gateway retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Retrier wraps a single adapter invocation with bounded retries on
// transient failures. Permanent failures and cancellation short-circuit;
// every retry re-enters the rate limiter so backoff cannot be used to
// evade a provider's declared rate. Polling adapters are capped at one
// resubmission per outer request regardless of the configured ceiling,
// since the submitted job may already be running.
type Retrier struct {
	config  RetryConfig
	limiter *RateLimiter
	logger  *zap.Logger
	metrics Metrics
	// rng kept injectable for deterministic jitter in tests
	randFloat func() float64
}

// NewRetrier creates a retry controller over the given rate limiter.
func NewRetrier(config RetryConfig, limiter *RateLimiter, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier < 1.0 {
		config.Multiplier = 2.0
	}
	return &Retrier{
		config:    config,
		limiter:   limiter,
		logger:    logger.With(zap.String("component", "retrier")),
		metrics:   NopMetrics{},
		randFloat: rand.Float64,
	}
}

// Invoke runs the adapter through the admit->call loop and returns either
// the adapter's successful result or the classified *Error of the final
// attempt. Exhausted transient failures collapse into
// RATE_EXCEEDED_OR_UNAVAILABLE.
func (r *Retrier) Invoke(ctx context.Context, adapter Adapter, req *GenerationRequest) (*GenerationResult, error) {
	ceiling := r.attemptCeiling(adapter)

	var lastErr error
	for attempt := 1; attempt <= ceiling; attempt++ {
		if attempt > 1 {
			r.metrics.AddRetryAttempt(adapter.Name())
			delay := r.backoffDelay(attempt)
			r.logger.Debug("backing off before retry",
				zap.String("provider", adapter.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, NewError(ErrCancelled, "cancelled during backoff").
					WithProvider(adapter.Name()).WithCause(ctx.Err())
			case <-timer.C:
			}
		}

		// A retried call still consumes a token.
		if err := r.limiter.Wait(ctx, adapter.Name()); err != nil {
			return nil, err
		}

		result, err := adapter.Generate(ctx, req)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded",
					zap.String("provider", adapter.Name()),
					zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			// Cancellation is not retried; it outranks whatever the
			// adapter classified the in-flight failure as.
			return nil, NewError(ErrCancelled, "cancelled during backend call").
				WithProvider(adapter.Name()).WithCause(ctxErr)
		}
		if !IsRetryable(err) {
			return nil, err
		}
		r.logger.Warn("transient backend failure",
			zap.String("provider", adapter.Name()),
			zap.Int("attempt", attempt),
			zap.Int("ceiling", ceiling),
			zap.Error(err))
	}

	return nil, NewError(ErrRateExhausted, "retries exhausted").
		WithProvider(adapter.Name()).WithCause(lastErr)
}

func (r *Retrier) attemptCeiling(adapter Adapter) int {
	ceiling := r.config.MaxAttempts
	if override, ok := r.config.PerProvider[adapter.Name()]; ok && override > 0 {
		ceiling = override
	}
	// One resubmission at most for polling backends.
	if adapter.Kind() == KindPolling && ceiling > 2 {
		ceiling = 2
	}
	return ceiling
}

// backoffDelay computes the wait before the given attempt (attempt >= 2)
// as exponential backoff with optional full jitter.
func (r *Retrier) backoffDelay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt-2))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		delay *= r.randFloat()
	}
	return time.Duration(delay)
}

// AsGatewayError coerces any error into a *Error, defaulting unclassified
// errors to PERMANENT_FAILURE so they are never silently retried.
func AsGatewayError(err error, provider string) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return NewError(ErrPermanent, err.Error()).WithProvider(provider).WithCause(err)
}
