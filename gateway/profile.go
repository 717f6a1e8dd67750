package gateway

// RateLimitSpec declares how fast a provider may be called. TokensPerMinute
// is carried for observability; only the request bucket is enforced.
type RateLimitSpec struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute" yaml:"tokens_per_minute"`
}

// ProviderProfile is the declarative capability description of one backend.
// Profiles are immutable once registered; a reload swaps a whole new
// profile set atomically, never a field in place.
type ProviderProfile struct {
	Name               string        `json:"name" yaml:"name"`
	Endpoint           string        `json:"endpoint" yaml:"endpoint"`
	RequiredParams     []string      `json:"required_params" yaml:"required_params"`
	SupportedSizes     []string      `json:"supported_sizes" yaml:"supported_sizes"`
	SupportedQualities []string      `json:"supported_qualities" yaml:"supported_qualities"`
	SupportedStyles    []string      `json:"supported_styles" yaml:"supported_styles"`
	RateLimit          RateLimitSpec `json:"rate_limit" yaml:"rate_limit"`

	// MinCount/MaxCount bound GenerationRequest.Count. Zero means the
	// gateway default of 1–10.
	MinCount int `json:"min_count,omitempty" yaml:"min_count"`
	MaxCount int `json:"max_count,omitempty" yaml:"max_count"`

	// MaxInFlight bounds concurrent batch requests against this provider.
	// Zero means min(10, RequestsPerMinute).
	MaxInFlight int `json:"max_in_flight,omitempty" yaml:"max_in_flight"`
}

const (
	defaultMinCount    = 1
	defaultMaxCount    = 10
	defaultMaxInFlight = 10
)

// CountBounds returns the effective inclusive bounds for the image count.
func (p *ProviderProfile) CountBounds() (min, max int) {
	min, max = p.MinCount, p.MaxCount
	if min <= 0 {
		min = defaultMinCount
	}
	if max <= 0 {
		max = defaultMaxCount
	}
	return min, max
}

// InFlightLimit returns the effective concurrency ceiling for batch
// dispatch against this provider.
func (p *ProviderProfile) InFlightLimit() int {
	if p.MaxInFlight > 0 {
		return p.MaxInFlight
	}
	limit := defaultMaxInFlight
	if p.RateLimit.RequestsPerMinute > 0 && p.RateLimit.RequestsPerMinute < limit {
		limit = p.RateLimit.RequestsPerMinute
	}
	return limit
}

// SupportsSize reports whether the profile declares the given size.
func (p *ProviderProfile) SupportsSize(size string) bool {
	return containsString(p.SupportedSizes, size)
}

// SupportsQuality reports whether the profile declares the given quality.
func (p *ProviderProfile) SupportsQuality(quality string) bool {
	return containsString(p.SupportedQualities, quality)
}

// SupportsStyle reports whether the profile declares the given style.
func (p *ProviderProfile) SupportsStyle(style string) bool {
	return containsString(p.SupportedStyles, style)
}

// CheckComplete validates structural completeness of a profile loaded from
// configuration. It returns an INVALID_PROFILE error when a required field
// is absent.
func (p *ProviderProfile) CheckComplete() error {
	switch {
	case p.Name == "":
		return NewError(ErrInvalidProfile, "profile missing name")
	case p.Endpoint == "":
		return NewError(ErrInvalidProfile, "profile missing endpoint").WithProvider(p.Name)
	case p.RateLimit.RequestsPerMinute <= 0:
		return NewError(ErrInvalidProfile, "profile missing rate_limit.requests_per_minute").WithProvider(p.Name)
	}
	if p.MinCount > 0 && p.MaxCount > 0 && p.MinCount > p.MaxCount {
		return NewError(ErrInvalidProfile, "profile min_count exceeds max_count").WithProvider(p.Name)
	}
	return nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
