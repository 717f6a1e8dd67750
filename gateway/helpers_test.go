package gateway

import (
	"context"
	"sync"
	"time"
)

// fakeAdapter scripts backend behavior for pipeline tests and records
// every invocation.
type fakeAdapter struct {
	name     string
	kind     AdapterKind
	generate func(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Kind() AdapterKind { return f.kind }

func (f *fakeAdapter) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.generate(ctx, req)
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func staticFactory(a Adapter) AdapterFactory {
	return func(ProviderProfile, string) (Adapter, error) {
		return a, nil
	}
}

func testProfile(name string, rpm int) ProviderProfile {
	return ProviderProfile{
		Name:               name,
		Endpoint:           "https://" + name + ".example.test/v1/images",
		RequiredParams:     []string{"prompt"},
		SupportedSizes:     []string{"1024x1024", "512x512"},
		SupportedQualities: []string{"standard", "hd"},
		SupportedStyles:    []string{"vivid", "natural"},
		RateLimit:          RateLimitSpec{RequestsPerMinute: rpm},
	}
}

func successFor(name string) func(context.Context, *GenerationRequest) (*GenerationResult, error) {
	return func(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
		return &GenerationResult{
			Provider:  name,
			Success:   true,
			Images:    []ImageData{{URL: "https://cdn.example.test/" + name + ".png"}},
			CreatedAt: time.Now(),
		}, nil
	}
}

// memoryCache is an in-process Cache for dispatcher tests.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*GenerationResult
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*GenerationResult)}
}

func (c *memoryCache) Get(_ context.Context, key string) (*GenerationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *memoryCache) Put(_ context.Context, key string, result *GenerationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
	c.puts++
}
