package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter gates every backend call with a per-provider token bucket.
// Capacity and refill rate come from the profile's RateLimitSpec:
// the bucket refills at RequestsPerMinute/60 tokens per second up to a
// burst of RequestsPerMinute. This is the single synchronization point
// protecting each provider's external rate contract; no call path
// bypasses it, including retries.
type RateLimiter struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter backed by the given registry.
func NewRateLimiter(registry *Registry, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		registry: registry,
		logger:   logger.With(zap.String("component", "rate_limiter")),
		buckets:  make(map[string]*rate.Limiter),
	}
}

// Admit consumes one token from the provider's bucket. It returns zero
// when the call may proceed immediately, else the delay the caller must
// honor before the reserved token becomes available. The reservation is
// made either way, so concurrent callers cannot exceed the bucket.
func (l *RateLimiter) Admit(provider string) (time.Duration, error) {
	res, err := l.reserve(provider)
	if err != nil {
		return 0, err
	}
	delay := res.Delay()
	if delay > 0 {
		l.logger.Debug("admission delayed",
			zap.String("provider", provider),
			zap.Duration("delay", delay))
	}
	return delay, nil
}

// Wait admits the call and sleeps out any returned delay, honoring ctx.
// Cancellation during the wait returns the reserved token to the bucket
// and maps to a CANCELLED error.
func (l *RateLimiter) Wait(ctx context.Context, provider string) error {
	res, err := l.reserve(provider)
	if err != nil {
		return err
	}
	delay := res.Delay()
	if delay <= 0 {
		return nil
	}
	l.logger.Debug("admission delayed",
		zap.String("provider", provider),
		zap.Duration("delay", delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		res.Cancel()
		return NewError(ErrCancelled, "cancelled while waiting for rate limit").
			WithProvider(provider).WithCause(ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (l *RateLimiter) reserve(provider string) (*rate.Reservation, error) {
	bucket, err := l.bucket(provider)
	if err != nil {
		return nil, err
	}
	res := bucket.Reserve()
	if !res.OK() {
		return nil, NewError(ErrRateExhausted,
			fmt.Sprintf("provider %q bucket cannot satisfy request", provider)).WithProvider(provider)
	}
	return res, nil
}

// Reset discards all bucket state. Called on profile reload so fresh
// limits take effect; buckets rebuild lazily on next admission.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*rate.Limiter)
}

func (l *RateLimiter) bucket(provider string) (*rate.Limiter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[provider]; ok {
		return b, nil
	}
	profile, err := l.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}
	rpm := profile.RateLimit.RequestsPerMinute
	b := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	l.buckets[provider] = b
	return b, nil
}
