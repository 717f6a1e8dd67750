package gateway

import "time"

// GenerationRequest is the uniform request accepted for every provider.
// It is a value object: build a new one instead of mutating.
type GenerationRequest struct {
	Provider string `json:"provider"`
	Prompt   string `json:"prompt"`
	Size     string `json:"size,omitempty"`    // e.g. "1024x1024"
	Quality  string `json:"quality,omitempty"` // e.g. "standard", "hd"
	Style    string `json:"style,omitempty"`   // e.g. "vivid", "natural"
	Seed     int64  `json:"seed,omitempty"`
	Count    int    `json:"count,omitempty"` // number of images, defaults to 1
}

// CountOrDefault returns the requested image count, defaulting to 1.
func (r *GenerationRequest) CountOrDefault() int {
	if r.Count <= 0 {
		return 1
	}
	return r.Count
}

// ImageData is one generated image in the normalized result shape.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
}

// GenerationResult is the single cross-provider result shape. Images is
// non-empty exactly when Success is true; provider-specific extras live in
// RawMetadata so downstream consumers can opt in without the gateway
// depending on them.
type GenerationResult struct {
	Provider     string         `json:"provider"`
	Success      bool           `json:"success"`
	Images       []ImageData    `json:"images,omitempty"`
	ErrorKind    ErrorCode      `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RawMetadata  map[string]any `json:"raw_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BatchJob groups an ordered request sequence with its index-aligned
// results. It exists only for the duration of one batch call.
type BatchJob struct {
	ID       string              `json:"id"`
	Requests []GenerationRequest `json:"requests"`
	Results  []*GenerationResult `json:"results"`
}
