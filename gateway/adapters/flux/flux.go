// Package flux adapts Black Forest Labs' Flux API (submit-then-poll
// asynchronous family) to the gateway contract. A generation request is
// submitted once and its result fetched by polling the returned URL at a
// fixed interval inside a wall-clock budget.
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
)

// DefaultEndpoint is the global generation endpoint.
const DefaultEndpoint = "https://api.bfl.ai/v1/flux-pro-1.1"

// DefaultProfile returns the stock Flux capability profile.
func DefaultProfile() gateway.ProviderProfile {
	return gateway.ProviderProfile{
		Name:           "flux",
		Endpoint:       DefaultEndpoint,
		RequiredParams: []string{"prompt"},
		SupportedSizes: []string{"1024x1024", "1024x768", "768x1024", "1536x1024", "1024x1536"},
		RateLimit:      gateway.RateLimitSpec{RequestsPerMinute: 24, TokensPerMinute: 10000},
	}
}

const (
	// DefaultPollInterval is the fixed wait between result polls.
	DefaultPollInterval = 2 * time.Second
	// DefaultPollBudget bounds the whole poll loop; exceeding it is a
	// TRANSIENT_FAILURE, though the retry controller resubmits at most
	// once since the job may still complete upstream.
	DefaultPollBudget = 4 * time.Minute
)

// Adapter submits generations and polls for their results.
type Adapter struct {
	profile      gateway.ProviderProfile
	apiKey       string
	client       adapters.HTTPDoer
	logger       *zap.Logger
	pollInterval time.Duration
	pollBudget   time.Duration
}

var _ gateway.Adapter = (*Adapter)(nil)

// New creates a Flux adapter for the given profile and credential.
func New(profile gateway.ProviderProfile, apiKey string, client adapters.HTTPDoer, logger *zap.Logger) *Adapter {
	if client == nil {
		client = adapters.DefaultClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		profile:      profile,
		apiKey:       apiKey,
		client:       client,
		logger:       logger.With(zap.String("adapter", profile.Name)),
		pollInterval: DefaultPollInterval,
		pollBudget:   DefaultPollBudget,
	}
}

// Factory returns the adapter factory for Flux.
func Factory(client adapters.HTTPDoer, logger *zap.Logger) gateway.AdapterFactory {
	return func(profile gateway.ProviderProfile, credential string) (gateway.Adapter, error) {
		return New(profile, credential, client, logger), nil
	}
}

// WithPolling overrides the poll interval and budget. Zero values keep
// the current settings.
func (a *Adapter) WithPolling(interval, budget time.Duration) *Adapter {
	if interval > 0 {
		a.pollInterval = interval
	}
	if budget > 0 {
		a.pollBudget = budget
	}
	return a
}

func (a *Adapter) Name() string              { return a.profile.Name }
func (a *Adapter) Kind() gateway.AdapterKind { return gateway.KindPolling }

type wireRequest struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	Seed         int64  `json:"seed,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

type wireResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PollingURL string `json:"polling_url,omitempty"`
	Result     struct {
		Sample string `json:"sample"` // signed URL, short-lived
	} `json:"result,omitempty"`
}

// translateRequest builds the submission payload. Pure.
func (a *Adapter) translateRequest(req *gateway.GenerationRequest) wireRequest {
	w := wireRequest{
		Prompt:       req.Prompt,
		AspectRatio:  aspectRatio(req.Size),
		OutputFormat: "jpeg",
	}
	if req.Seed != 0 {
		w.Seed = req.Seed
	}
	return w
}

// Generate submits the job and polls until it is ready, the budget runs
// out, or the context is cancelled.
func (a *Adapter) Generate(ctx context.Context, req *gateway.GenerationRequest) (*gateway.GenerationResult, error) {
	submitted, err := a.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	final := submitted
	if !isReady(submitted.Status) {
		pollingURL := submitted.PollingURL
		if pollingURL == "" {
			return nil, gateway.NewError(gateway.ErrPermanent, "submission response missing polling_url").
				WithProvider(a.Name())
		}
		final, err = a.poll(ctx, pollingURL)
		if err != nil {
			return nil, err
		}
	}

	if final.Result.Sample == "" {
		return nil, gateway.NewError(gateway.ErrPermanent, "backend result missing sample URL").
			WithProvider(a.Name())
	}
	return &gateway.GenerationResult{
		Provider:  a.Name(),
		Success:   true,
		Images:    []gateway.ImageData{{URL: final.Result.Sample, Seed: req.Seed}},
		CreatedAt: time.Now(),
		RawMetadata: map[string]any{
			"task_id": final.ID,
			"status":  final.Status,
		},
	}, nil
}

func (a *Adapter) submit(ctx context.Context, req *gateway.GenerationRequest) (*wireResponse, error) {
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
	a.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, adapters.TransportError(err, a.Name())
	}
	defer adapters.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return nil, adapters.MapHTTPError(resp.StatusCode, msg, a.Name())
	}
	var raw wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, adapters.DecodeError(err, a.Name())
	}
	return &raw, nil
}

// poll fetches the task status at a fixed interval until it is ready.
// Budget exhaustion maps to TRANSIENT_FAILURE; an explicit upstream
// failure status is PERMANENT_FAILURE.
func (a *Adapter) poll(ctx context.Context, pollingURL string) (*wireResponse, error) {
	deadline := time.Now().Add(a.pollBudget)
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, gateway.NewError(gateway.ErrCancelled, "cancelled while polling").
				WithProvider(a.Name()).WithCause(ctx.Err())
		case <-ticker.C:
		}

		raw, err := a.pollOnce(ctx, pollingURL)
		if err != nil {
			// Individual poll hiccups are absorbed; the budget bounds
			// how long we keep trying.
			a.logger.Debug("poll attempt failed", zap.Error(err))
			continue
		}
		switch raw.Status {
		case "Ready":
			return raw, nil
		case "Error", "Failed", "Content Moderated", "Request Moderated":
			return nil, gateway.NewError(gateway.ErrPermanent,
				fmt.Sprintf("generation failed upstream: %s", raw.Status)).WithProvider(a.Name())
		}
	}

	return nil, gateway.NewError(gateway.ErrTransient, "poll budget exhausted").
		WithRetryable(true).WithProvider(a.Name())
}

func (a *Adapter) pollOnce(ctx context.Context, pollingURL string) (*wireResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pollingURL, nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer adapters.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, adapters.MapHTTPError(resp.StatusCode, adapters.ReadErrorMessage(resp.Body), a.Name())
	}
	var raw wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (a *Adapter) setHeaders(r *http.Request) {
	r.Header.Set("x-key", a.apiKey)
	r.Header.Set("Accept", "application/json")
}

func isReady(status string) bool { return status == "Ready" }

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
