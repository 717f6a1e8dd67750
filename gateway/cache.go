package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Cache is the optional result-cache collaborator consulted by the
// dispatcher before the pipeline runs. Absence or failure of the cache
// never changes result correctness, only latency: lookup errors are
// logged and treated as misses, store errors are logged and dropped.
type Cache interface {
	// Get returns the cached result for key, or (nil, false) on a miss.
	Get(ctx context.Context, key string) (*GenerationResult, bool)
	// Put stores a result under key.
	Put(ctx context.Context, key string, result *GenerationResult)
}

// CacheKey derives a stable key from the request's identity fields.
// Requests with a seed of zero are non-deterministic upstream and are
// still cached: the gateway's contract is "same request, same result
// within the TTL", matching the original caching behavior.
func CacheKey(req *GenerationRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		req.Provider, req.Prompt, req.Size, req.Quality, req.Style, req.Seed, req.CountOrDefault())))
	return "pixelgate:result:" + hex.EncodeToString(sum[:])
}
