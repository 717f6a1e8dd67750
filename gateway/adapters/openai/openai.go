// Package openai adapts OpenAI's DALL-E images API (bearer-token JSON
// family) to the gateway contract.
package openai

import (
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
	"github.com/pixelgate/pixelgate/gateway/adapters/openaicompat"
)

// DefaultEndpoint is the production images endpoint.
const DefaultEndpoint = "https://api.openai.com/v1/images/generations"

// DefaultProfile returns the stock DALL-E capability profile.
func DefaultProfile() gateway.ProviderProfile {
	return gateway.ProviderProfile{
		Name:               "openai",
		Endpoint:           DefaultEndpoint,
		RequiredParams:     []string{"prompt"},
		SupportedSizes:     []string{"1024x1024", "1024x1792", "1792x1024"},
		SupportedQualities: []string{"standard", "hd"},
		SupportedStyles:    []string{"vivid", "natural"},
		RateLimit:          gateway.RateLimitSpec{RequestsPerMinute: 50, TokensPerMinute: 100000},
	}
}

// Factory returns the adapter factory for OpenAI. DALL-E 3 ignores seeds,
// so they are not sent.
func Factory(client adapters.HTTPDoer, logger *zap.Logger) gateway.AdapterFactory {
	return openaicompat.Factory(openaicompat.Options{
		DefaultModel: "dall-e-3",
		DefaultSize:  "1024x1024",
	}, client, logger)
}
