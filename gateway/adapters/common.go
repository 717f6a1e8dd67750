// Package adapters provides the plumbing shared by every backend adapter
// family: the outbound HTTP capability, HTTP status classification into
// the gateway error taxonomy, and header helpers.
package adapters

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pixelgate/pixelgate/gateway"
)

// HTTPDoer is the outbound-call capability adapters depend on. It is
// satisfied by *http.Client; tests substitute fakes so no adapter logic
// touches the network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultTimeout bounds a single backend call when the caller supplies no
// client of its own.
const DefaultTimeout = 120 * time.Second

// DefaultClient returns the HTTP client used when a factory receives nil.
func DefaultClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// MapHTTPError classifies an upstream HTTP status into the gateway
// taxonomy: 429 and 5xx are TRANSIENT_FAILURE (retryable), every other
// 4xx is PERMANENT_FAILURE. This classification is what the retry
// controller keys on.
func MapHTTPError(status int, msg string, provider string) *gateway.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return gateway.NewError(gateway.ErrTransient, msg).
			WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case status >= 500:
		return gateway.NewError(gateway.ErrTransient, msg).
			WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	default:
		return gateway.NewError(gateway.ErrPermanent, msg).
			WithHTTPStatus(status).WithProvider(provider)
	}
}

// TransportError wraps a transport-level failure (connect, DNS, timeout)
// as a retryable TRANSIENT_FAILURE.
func TransportError(err error, provider string) *gateway.Error {
	return gateway.NewError(gateway.ErrTransient, "backend request failed").
		WithRetryable(true).WithProvider(provider).WithCause(err)
}

// DecodeError wraps a malformed-payload failure as PERMANENT_FAILURE;
// resubmitting the same request cannot fix a body we cannot parse.
func DecodeError(err error, provider string) *gateway.Error {
	return gateway.NewError(gateway.ErrPermanent, "failed to decode backend response").
		WithProvider(provider).WithCause(err)
}

// ReadErrorMessage extracts a human-readable message from an error
// response body, trying the common {"error":{"message":...}} JSON shape
// first and falling back to the raw text.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		// Some backends put the message at the top level.
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			if errResp.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
			}
			return errResp.Error.Message
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// BearerTokenHeaders sets the standard bearer-token JSON headers.
func BearerTokenHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}

// SafeCloseBody closes an HTTP response body, ignoring errors.
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

// JoinEndpoint joins a base endpoint and path without doubling slashes.
func JoinEndpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
