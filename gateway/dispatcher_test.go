package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingMetrics records outcome labels for assertions.
type countingMetrics struct {
	mu          sync.Mutex
	outcomes    map[string]int
	retries     int
	cacheHits   int
	cacheMisses int
	batchSizes  []int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: make(map[string]int)}
}

func (m *countingMetrics) ObserveGeneration(provider, outcome string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[provider+"/"+outcome]++
}
func (m *countingMetrics) AddRetryAttempt(string) { m.mu.Lock(); m.retries++; m.mu.Unlock() }
func (m *countingMetrics) AddCacheHit(string)     { m.mu.Lock(); m.cacheHits++; m.mu.Unlock() }
func (m *countingMetrics) AddCacheMiss(string)    { m.mu.Lock(); m.cacheMisses++; m.mu.Unlock() }
func (m *countingMetrics) ObserveBatch(size int) {
	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, size)
	m.mu.Unlock()
}

func newTestDispatcher(t *testing.T, cfg DispatcherConfig, adapters ...*fakeAdapter) *Dispatcher {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	creds := StaticCredentialSource{}
	for _, a := range adapters {
		require.NoError(t, cfg.Registry.Register(testProfile(a.name, 6000), staticFactory(a)))
		creds[a.name] = "sk-" + a.name
	}
	if cfg.Credentials == nil {
		cfg.Credentials = creds
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetryConfig(3)
	}
	return NewDispatcher(cfg)
}

func TestDispatcher_GenerateSuccess(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	metrics := newCountingMetrics()
	d := newTestDispatcher(t, DispatcherConfig{Metrics: metrics}, adapter)

	result, err := d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "a fox"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Images, 1)
	assert.Equal(t, 1, adapter.callCount())
	assert.Equal(t, 1, metrics.outcomes["alpha/success"])
}

func TestDispatcher_UnknownProvider(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{})

	result, err := d.Generate(context.Background(), &GenerationRequest{Provider: "ghost", Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, ErrUnknownProvider, GetErrorCode(err))

	// The caller still receives a normalized failure result.
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, ErrUnknownProvider, result.ErrorKind)
	assert.Equal(t, "ghost", result.Provider)
}

func TestDispatcher_ValidationFailureSkipsAdapter(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	d := newTestDispatcher(t, DispatcherConfig{}, adapter)

	result, err := d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "x", Size: "999x999"})
	require.Error(t, err)
	assert.Equal(t, ErrValidation, GetErrorCode(err))
	assert.Equal(t, ErrValidation, result.ErrorKind)
	// No network attempt, no token consumed.
	assert.Equal(t, 0, adapter.callCount())
}

func TestDispatcher_MissingCredential(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	registry := NewRegistry()
	require.NoError(t, registry.Register(testProfile("alpha", 100), staticFactory(adapter)))

	d := NewDispatcher(DispatcherConfig{
		Registry:    registry,
		Credentials: StaticCredentialSource{},
		Retry:       fastRetryConfig(3),
	})

	result, err := d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, ErrNotConfigured, GetErrorCode(err))
	assert.Equal(t, ErrNotConfigured, result.ErrorKind)
	assert.Equal(t, 0, adapter.callCount())
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	adapter := scriptedAdapter("alpha", KindSyncJSON, transientErr("alpha"))
	metrics := newCountingMetrics()
	d := newTestDispatcher(t, DispatcherConfig{Metrics: metrics}, adapter)

	result, err := d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "x"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, adapter.callCount())
	assert.Equal(t, 1, metrics.retries)
}

func TestDispatcher_CacheHitShortCircuits(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	cache := newMemoryCache()
	metrics := newCountingMetrics()
	d := newTestDispatcher(t, DispatcherConfig{Cache: cache, Metrics: metrics}, adapter)

	req := &GenerationRequest{Provider: "alpha", Prompt: "a fox", Size: "1024x1024"}

	first, err := d.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.callCount())
	assert.Equal(t, 1, metrics.cacheMisses)
	assert.Equal(t, 1, cache.puts)

	second, err := d.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.callCount(), "cache hit must not call the backend")
	assert.Equal(t, 1, metrics.cacheHits)
	assert.Equal(t, first.Images, second.Images)
}

func TestDispatcher_FailuresAreNotCached(t *testing.T) {
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON}
	adapter.generate = func(context.Context, *GenerationRequest) (*GenerationResult, error) {
		return nil, NewError(ErrPermanent, "bad").WithProvider("alpha")
	}
	cache := newMemoryCache()
	d := newTestDispatcher(t, DispatcherConfig{Cache: cache}, adapter)

	_, err := d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "x"})
	require.Error(t, err)
	assert.Zero(t, cache.puts)
}

func TestDispatcher_ListAndProfile(t *testing.T) {
	a := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	b := &fakeAdapter{name: "beta", kind: KindSyncJSON, generate: successFor("beta")}
	d := newTestDispatcher(t, DispatcherConfig{}, a, b)

	assert.Equal(t, []string{"alpha", "beta"}, d.ListProviders())

	profile, err := d.GetProviderProfile("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", profile.Name)

	_, err = d.GetProviderProfile("ghost")
	assert.Equal(t, ErrUnknownProvider, GetErrorCode(err))
}

func TestDispatcher_Reload(t *testing.T) {
	factoryCalls := 0
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	registry := NewRegistry()
	require.NoError(t, registry.Register(testProfile("alpha", 6000), func(ProviderProfile, string) (Adapter, error) {
		factoryCalls++
		return adapter, nil
	}))

	d := NewDispatcher(DispatcherConfig{
		Registry:    registry,
		Credentials: StaticCredentialSource{"alpha": "sk"},
		Retry:       fastRetryConfig(3),
	})

	_, err := d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, factoryCalls)

	// Second call reuses the built adapter.
	_, err = d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "y"})
	require.NoError(t, err)
	assert.Equal(t, 1, factoryCalls)

	// Reload drops cached adapters; the next call rebuilds against the
	// fresh profile.
	require.NoError(t, d.Reload([]ProviderProfile{testProfile("alpha", 3000)}))
	_, err = d.Generate(context.Background(), &GenerationRequest{Provider: "alpha", Prompt: "z"})
	require.NoError(t, err)
	assert.Equal(t, 2, factoryCalls)

	profile, err := d.GetProviderProfile("alpha")
	require.NoError(t, err)
	assert.Equal(t, 3000, profile.RateLimit.RequestsPerMinute)
}

func TestDispatcher_BatchResultsAreIndexAligned(t *testing.T) {
	alpha := &fakeAdapter{name: "alpha", kind: KindSyncJSON, generate: successFor("alpha")}
	beta := &fakeAdapter{name: "beta", kind: KindSyncJSON, generate: successFor("beta")}
	metrics := newCountingMetrics()
	d := newTestDispatcher(t, DispatcherConfig{Metrics: metrics}, alpha, beta)

	requests := []GenerationRequest{
		{Provider: "alpha", Prompt: "one"},
		{Provider: "ghost", Prompt: "two"},
		{Provider: "beta", Prompt: "three"},
		{Provider: "alpha", Prompt: ""}, // validation failure
	}
	results := d.BatchGenerate(context.Background(), requests)

	require.Len(t, results, len(requests))
	assert.True(t, results[0].Success)
	assert.Equal(t, "alpha", results[0].Provider)

	assert.False(t, results[1].Success)
	assert.Equal(t, ErrUnknownProvider, results[1].ErrorKind)

	assert.True(t, results[2].Success)
	assert.Equal(t, "beta", results[2].Provider)

	assert.False(t, results[3].Success)
	assert.Equal(t, ErrValidation, results[3].ErrorKind)

	assert.Equal(t, []int{4}, metrics.batchSizes)
}

func TestDispatcher_BatchEmptyInput(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{})
	results := d.BatchGenerate(context.Background(), nil)
	assert.Empty(t, results)
}

func TestDispatcher_BatchHonorsInFlightLimit(t *testing.T) {
	var inFlight, peak int64
	adapter := &fakeAdapter{name: "alpha", kind: KindSyncJSON}
	adapter.generate = func(context.Context, *GenerationRequest) (*GenerationResult, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return successFor("alpha")(context.Background(), nil)
	}

	registry := NewRegistry()
	profile := testProfile("alpha", 6000)
	profile.MaxInFlight = 2
	require.NoError(t, registry.Register(profile, staticFactory(adapter)))

	d := NewDispatcher(DispatcherConfig{
		Registry:    registry,
		Credentials: StaticCredentialSource{"alpha": "sk"},
		Retry:       fastRetryConfig(3),
	})

	requests := make([]GenerationRequest, 8)
	for i := range requests {
		requests[i] = GenerationRequest{Provider: "alpha", Prompt: "x"}
	}
	results := d.BatchGenerate(context.Background(), requests)

	require.Len(t, results, 8)
	for _, r := range results {
		assert.True(t, r.Success)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
	assert.Equal(t, 8, adapter.callCount())
}

func TestDispatcher_BatchSiblingIsolation(t *testing.T) {
	// One slot fails permanently; its siblings still complete.
	flaky := &fakeAdapter{name: "alpha", kind: KindSyncJSON}
	flaky.generate = func(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
		if req.Prompt == "poison" {
			return nil, NewError(ErrPermanent, "bad prompt").WithProvider("alpha")
		}
		return successFor("alpha")(ctx, req)
	}
	d := newTestDispatcher(t, DispatcherConfig{}, flaky)

	results := d.BatchGenerate(context.Background(), []GenerationRequest{
		{Provider: "alpha", Prompt: "poison"},
		{Provider: "alpha", Prompt: "fine"},
		{Provider: "alpha", Prompt: "fine too"},
	})

	require.Len(t, results, 3)
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded)
}
