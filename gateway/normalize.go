package gateway

import "time"

// Normalize folds one attempt sequence's outcome into the uniform
// GenerationResult shape. Adapters already return normalized results on
// success; this pass guarantees the invariants callers rely on: Images is
// empty whenever Success is false, Provider is always set, and failures
// carry an ErrorKind from the taxonomy.
func Normalize(provider string, result *GenerationResult, err error) *GenerationResult {
	if err != nil {
		return FailureResult(provider, AsGatewayError(err, provider))
	}
	if result == nil {
		return FailureResult(provider, NewError(ErrPermanent, "adapter returned no result").WithProvider(provider))
	}
	if result.Provider == "" {
		result.Provider = provider
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	if len(result.Images) == 0 {
		// A success with no images is a translation defect; surface it
		// rather than handing the caller an empty success.
		return FailureResult(provider, NewError(ErrPermanent, "backend returned no images").WithProvider(provider))
	}
	result.Success = true
	result.ErrorKind = ""
	result.ErrorMessage = ""
	return result
}

// FailureResult builds the failed GenerationResult for a classified error.
// RawMetadata keeps the structured details (missing params, unsupported
// values, upstream status) so batch consumers need no error-type plumbing.
func FailureResult(provider string, gerr *Error) *GenerationResult {
	res := &GenerationResult{
		Provider:     provider,
		Success:      false,
		ErrorKind:    gerr.Code,
		ErrorMessage: gerr.Message,
		CreatedAt:    time.Now(),
	}
	meta := map[string]any{}
	if gerr.HTTPStatus != 0 {
		meta["http_status"] = gerr.HTTPStatus
	}
	var verr *ValidationError
	if asValidation(gerr, &verr) {
		if len(verr.MissingParams) > 0 {
			meta["missing_params"] = verr.MissingParams
		}
		if len(verr.UnsupportedValue) > 0 {
			meta["unsupported_value"] = verr.UnsupportedValue
		}
	}
	if len(meta) > 0 {
		res.RawMetadata = meta
	}
	return res
}

func asValidation(gerr *Error, target **ValidationError) bool {
	if gerr.Cause == nil {
		return false
	}
	verr, ok := gerr.Cause.(*ValidationError)
	if !ok {
		return false
	}
	*target = verr
	return true
}
