// Package gateway implements the provider abstraction and dispatch engine
// behind the uniform image-generation contract: capability registry,
// parameter validation, per-provider token-bucket rate limiting, retry
// with exponential backoff, adapter invocation and result normalization,
// plus concurrent batch fan-out.
//
// Callers interact with the Dispatcher:
//
//	reg := gateway.NewRegistry()
//	reg.Register(profile, openai.Factory(nil, logger))
//	d := gateway.NewDispatcher(gateway.DispatcherConfig{Registry: reg})
//	result, err := d.Generate(ctx, &gateway.GenerationRequest{
//	    Provider: "openai",
//	    Prompt:   "a lighthouse at dawn",
//	    Size:     "1024x1024",
//	})
//
// Every failure is classified into the ErrorCode taxonomy and folded into
// a GenerationResult, so callers always receive the normalized shape;
// referencing an unregistered provider additionally surfaces as an
// UNKNOWN_PROVIDER error before any work begins.
package gateway
