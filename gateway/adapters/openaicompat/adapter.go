// Package openaicompat implements the bearer-token JSON adapter family
// shared by OpenAI-compatible image backends (DALL-E, Jimeng and other
// /images/generations clones).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
)

// Options tunes the adapter for one concrete backend.
type Options struct {
	// DefaultModel is sent when the profile does not pin a model.
	DefaultModel string
	// DefaultSize is sent when the request leaves Size empty.
	DefaultSize string
	// SendSeed includes the request seed in the payload; backends that
	// reject unknown fields should leave it off.
	SendSeed bool
}

// Adapter calls an OpenAI-compatible images/generations endpoint.
type Adapter struct {
	profile gateway.ProviderProfile
	apiKey  string
	opts    Options
	client  adapters.HTTPDoer
	logger  *zap.Logger
}

var _ gateway.Adapter = (*Adapter)(nil)

// New creates an adapter for the given profile and credential. A nil
// client falls back to the default HTTP client.
func New(profile gateway.ProviderProfile, apiKey string, opts Options, client adapters.HTTPDoer, logger *zap.Logger) *Adapter {
	if client == nil {
		client = adapters.DefaultClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		profile: profile,
		apiKey:  apiKey,
		opts:    opts,
		client:  client,
		logger:  logger.With(zap.String("adapter", profile.Name)),
	}
}

// Factory returns a gateway.AdapterFactory binding these options.
func Factory(opts Options, client adapters.HTTPDoer, logger *zap.Logger) gateway.AdapterFactory {
	return func(profile gateway.ProviderProfile, credential string) (gateway.Adapter, error) {
		return New(profile, credential, opts, client, logger), nil
	}
}

func (a *Adapter) Name() string              { return a.profile.Name }
func (a *Adapter) Kind() gateway.AdapterKind { return gateway.KindSyncJSON }

type wirePayload struct {
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n,omitempty"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
	Seed    int64  `json:"seed,omitempty"`
}

type wireResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
		Seed          int64  `json:"seed,omitempty"`
	} `json:"data"`
}

// translateRequest builds the backend payload. Pure: no network effects.
func (a *Adapter) translateRequest(req *gateway.GenerationRequest) wirePayload {
	p := wirePayload{
		Model:   a.opts.DefaultModel,
		Prompt:  req.Prompt,
		N:       req.CountOrDefault(),
		Size:    req.Size,
		Quality: req.Quality,
		Style:   req.Style,
	}
	if p.Size == "" {
		p.Size = a.opts.DefaultSize
	}
	if a.opts.SendSeed && req.Seed != 0 {
		p.Seed = req.Seed
	}
	return p
}

// Generate performs one backend invocation: translate, call, translate
// back. Failures come back classified for the retry controller.
func (a *Adapter) Generate(ctx context.Context, req *gateway.GenerationRequest) (*gateway.GenerationResult, error) {
	payload, err := json.Marshal(a.translateRequest(req))
	if err != nil {
		return nil, gateway.NewError(gateway.ErrPermanent, "failed to encode request").
			WithProvider(a.Name()).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.profile.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, gateway.NewError(gateway.ErrPermanent, "failed to build request").
			WithProvider(a.Name()).WithCause(err)
	}
	adapters.BearerTokenHeaders(httpReq, a.apiKey)

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
	return a.translateResponse(raw), nil
}

// translateResponse folds the wire shape into the normalized result. It
// never fails: an empty data array is handed upward and rejected by the
// normalizer as a permanent failure.
func (a *Adapter) translateResponse(raw wireResponse) *gateway.GenerationResult {
	images := make([]gateway.ImageData, 0, len(raw.Data))
	for _, d := range raw.Data {
		url := d.URL
		if url == "" && d.B64JSON != "" {
			url = "data:image/png;base64," + d.B64JSON
		}
		images = append(images, gateway.ImageData{
			URL:           url,
			RevisedPrompt: d.RevisedPrompt,
			Seed:          d.Seed,
		})
	}

	created := time.Now()
	if raw.Created > 0 {
		created = time.Unix(raw.Created, 0)
	}
	return &gateway.GenerationResult{
		Provider:  a.Name(),
		Success:   true,
		Images:    images,
		CreatedAt: created,
		RawMetadata: map[string]any{
			"model":   a.opts.DefaultModel,
			"created": raw.Created,
		},
	}
}
