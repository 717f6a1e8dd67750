package gateway

import (
	"fmt"
	"strings"
)

// Validate checks a request against a provider capability profile before
// any network call. It is pure: no I/O, no clock, no mutation. All
// violated rules are collected into a single ValidationError wrapped in a
// VALIDATION *Error, so callers get the complete diagnosis in one pass.
func Validate(req *GenerationRequest, profile *ProviderProfile) error {
	verr := &ValidationError{}

	if strings.TrimSpace(req.Prompt) == "" {
		verr.addMissing("prompt")
	}

	for _, param := range profile.RequiredParams {
		if !requestHasParam(req, param) {
			verr.addMissing(param)
		}
	}

	if req.Size != "" && !profile.SupportsSize(req.Size) {
		verr.addUnsupported("size", req.Size)
	}
	if req.Quality != "" && !profile.SupportsQuality(req.Quality) {
		verr.addUnsupported("quality", req.Quality)
	}
	if req.Style != "" && !profile.SupportsStyle(req.Style) {
		verr.addUnsupported("style", req.Style)
	}

	if min, max := profile.CountBounds(); req.Count != 0 && (req.Count < min || req.Count > max) {
		verr.addUnsupported("count", fmt.Sprintf("%d", req.Count))
	}

	if verr.Empty() {
		return nil
	}
	return NewError(ErrValidation, verr.Error()).
		WithProvider(profile.Name).
		WithCause(verr)
}

// requestHasParam reports whether the named parameter is present on the
// request. Parameter names follow the profile vocabulary (prompt, size,
// quality, style, seed, count); unknown names count as absent.
func requestHasParam(req *GenerationRequest, param string) bool {
	switch param {
	case "prompt":
		return strings.TrimSpace(req.Prompt) != ""
	case "size":
		return req.Size != ""
	case "quality":
		return req.Quality != ""
	case "style":
		return req.Style != ""
	case "seed":
		return req.Seed != 0
	case "count", "n":
		return req.Count > 0
	default:
		return false
	}
}
