package gateway

import "context"

// AdapterKind identifies a backend call family. The retry controller uses
// it to decide resubmission policy: polling backends get at most one
// resubmission per outer request, since the job may already be running.
type AdapterKind string

const (
	// KindSyncJSON covers bearer-token JSON APIs that answer in one call.
	KindSyncJSON AdapterKind = "sync_json"
	// KindMultipart covers multipart form-upload APIs.
	KindMultipart AdapterKind = "multipart"
	// KindPolling covers submit-then-poll asynchronous APIs.
	KindPolling AdapterKind = "polling"
)

// Adapter translates the normalized request into one backend's call shape
// and its response back into the normalized result. Implementations split
// the work into a pure request translation, the backend call, and a
// response translation that never panics: decode failures come back as a
// PERMANENT_FAILURE *Error, transport/5xx/429 failures as a retryable
// TRANSIENT_FAILURE *Error.
type Adapter interface {
	// Name returns the provider name this adapter serves.
	Name() string

	// Kind returns the backend call family.
	Kind() AdapterKind

	// Generate performs one backend invocation for the given request.
	// On success the result has Success=true and at least one image.
	// On failure it returns a *Error classified transient or permanent.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)
}

// AdapterFactory builds an adapter for a registered profile. The
// credential is the secret resolved for the provider name; the factory is
// invoked lazily on first dispatch, after credential lookup succeeds.
type AdapterFactory func(profile ProviderProfile, credential string) (Adapter, error)
