package gateway

// Metrics receives dispatch observations. The production implementation
// lives in internal/metrics; NopMetrics keeps the dispatcher free of nil
// checks when no collector is wired.
type Metrics interface {
	// ObserveGeneration records one finished request with its outcome
	// (an ErrorCode, or "success") and wall-clock duration in seconds.
	ObserveGeneration(provider string, outcome string, seconds float64)
	// AddRetryAttempt counts one retried adapter invocation.
	AddRetryAttempt(provider string)
	// AddCacheHit / AddCacheMiss count cache collaborator outcomes.
	AddCacheHit(provider string)
	AddCacheMiss(provider string)
	// ObserveBatch records a batch fan-out of the given size.
	ObserveBatch(size int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ObserveGeneration(string, string, float64) {}
func (NopMetrics) AddRetryAttempt(string)                    {}
func (NopMetrics) AddCacheHit(string)                        {}
func (NopMetrics) AddCacheMiss(string)                       {}
func (NopMetrics) ObserveBatch(int)                          {}
