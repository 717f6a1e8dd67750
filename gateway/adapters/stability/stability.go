// Package stability adapts the Stability AI stable-image API (multipart
// form-upload family) to the gateway contract.
package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
)

// DefaultEndpoint is the stable-image core generation endpoint.
const DefaultEndpoint = "https://api.stability.ai/v2beta/stable-image/generate/core"

// DefaultProfile returns the stock Stability capability profile.
func DefaultProfile() gateway.ProviderProfile {
	return gateway.ProviderProfile{
		Name:               "stability",
		Endpoint:           DefaultEndpoint,
		RequiredParams:     []string{"prompt"},
		SupportedSizes:     []string{"1024x1024", "512x512", "768x768"},
		SupportedQualities: []string{"standard", "high"},
		SupportedStyles:    []string{"realistic", "artistic", "cartoon"},
		RateLimit:          gateway.RateLimitSpec{RequestsPerMinute: 100, TokensPerMinute: 50000},
	}
}

// Adapter posts multipart form requests and decodes base64 image bodies.
type Adapter struct {
	profile gateway.ProviderProfile
	apiKey  string
	client  adapters.HTTPDoer
	logger  *zap.Logger
}

var _ gateway.Adapter = (*Adapter)(nil)

// New creates a Stability adapter for the given profile and credential.
func New(profile gateway.ProviderProfile, apiKey string, client adapters.HTTPDoer, logger *zap.Logger) *Adapter {
	if client == nil {
		client = adapters.DefaultClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		profile: profile,
		apiKey:  apiKey,
		client:  client,
		logger:  logger.With(zap.String("adapter", profile.Name)),
	}
}

// Factory returns the adapter factory for Stability.
func Factory(client adapters.HTTPDoer, logger *zap.Logger) gateway.AdapterFactory {
	return func(profile gateway.ProviderProfile, credential string) (gateway.Adapter, error) {
		return New(profile, credential, client, logger), nil
	}
}

func (a *Adapter) Name() string              { return a.profile.Name }
func (a *Adapter) Kind() gateway.AdapterKind { return gateway.KindMultipart }

type wireResponse struct {
	Image        string `json:"image"` // base64 PNG
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finish_reason"`
}

// translateRequest renders the multipart body. Pure apart from the
// multipart boundary, which the writer picks.
func (a *Adapter) translateRequest(req *gateway.GenerationRequest) (body *bytes.Buffer, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"prompt":        req.Prompt,
		"output_format": "png",
	}
	if req.Size != "" {
		fields["aspect_ratio"] = aspectRatio(req.Size)
	}
	if req.Style != "" {
		fields["style_preset"] = req.Style
	}
	if req.Seed != 0 {
		fields["seed"] = strconv.FormatInt(req.Seed, 10)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Generate performs one multipart call per requested image. The backend
// returns a single image per call, so Count fans out sequentially within
// the attempt; the whole attempt fails on the first classified error.
func (a *Adapter) Generate(ctx context.Context, req *gateway.GenerationRequest) (*gateway.GenerationResult, error) {
	count := req.CountOrDefault()
	images := make([]gateway.ImageData, 0, count)
	var lastSeed int64

	for i := 0; i < count; i++ {
		img, err := a.generateOne(ctx, req)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
		lastSeed = img.Seed
	}

	return &gateway.GenerationResult{
		Provider:  a.Name(),
		Success:   true,
		Images:    images,
		CreatedAt: time.Now(),
		RawMetadata: map[string]any{
			"seed": lastSeed,
		},
	}, nil
}

func (a *Adapter) generateOne(ctx context.Context, req *gateway.GenerationRequest) (*gateway.ImageData, error) {
	body, contentType, err := a.translateRequest(req)
	if err != nil {
		return nil, gateway.NewError(gateway.ErrPermanent, "failed to encode multipart request").
			WithProvider(a.Name()).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.profile.Endpoint, body)
	if err != nil {
		return nil, gateway.NewError(gateway.ErrPermanent, "failed to build request").
			WithProvider(a.Name()).WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, adapters.TransportError(err, a.Name())
	}
	defer adapters.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := adapters.ReadErrorMessage(resp.Body)
		a.logger.Warn("backend rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, adapters.MapHTTPError(resp.StatusCode, msg, a.Name())
	}

	var raw wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, adapters.DecodeError(err, a.Name())
	}
	if raw.Image == "" {
		return nil, gateway.NewError(gateway.ErrPermanent, "backend response missing image").
			WithProvider(a.Name())
	}
	return &gateway.ImageData{
		URL:  "data:image/png;base64," + raw.Image,
		Seed: raw.Seed,
	}, nil
}

// aspectRatio converts a WxH size string into the nearest aspect ratio
// the backend accepts.
func aspectRatio(size string) string {
	var width, height int
	if _, err := fmt.Sscanf(size, "%dx%d", &width, &height); err != nil || width <= 0 || height <= 0 {
		return "1:1"
	}
	switch {
	case width == height:
		return "1:1"
	case width > height:
		return "16:9"
	default:
		return "9:16"
	}
}
