// Package jimeng adapts the Jimeng AI images API to the gateway contract.
// The wire shape is OpenAI-compatible bearer-token JSON, with seed
// support.
package jimeng

import (
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
	"github.com/pixelgate/pixelgate/gateway/adapters/openaicompat"
)

// DefaultEndpoint is the production images endpoint.
const DefaultEndpoint = "https://api.jimeng.ai/v1/images/generations"

// DefaultProfile returns the stock Jimeng capability profile.
func DefaultProfile() gateway.ProviderProfile {
	return gateway.ProviderProfile{
		Name:               "jimeng",
		Endpoint:           DefaultEndpoint,
		RequiredParams:     []string{"prompt"},
		SupportedSizes:     []string{"1024x1024", "512x512", "256x256"},
		SupportedQualities: []string{"standard", "hd"},
		SupportedStyles:    []string{"natural", "anime", "realistic"},
		RateLimit:          gateway.RateLimitSpec{RequestsPerMinute: 60, TokensPerMinute: 10000},
	}
}

// Factory returns the adapter factory for Jimeng.
func Factory(client adapters.HTTPDoer, logger *zap.Logger) gateway.AdapterFactory {
	return openaicompat.Factory(openaicompat.Options{
		DefaultModel: "jimeng-v1",
		DefaultSize:  "1024x1024",
		SendSeed:     true,
	}, client, logger)
}
