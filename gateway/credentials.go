package gateway

import (
	"fmt"
	"os"
	"strings"
)

// CredentialSource resolves the secret for a provider name. The gateway
// never parses or persists secrets; it only hands the resolved value to
// the adapter factory.
type CredentialSource interface {
	// Credential returns the secret for the provider, or a
	// CREDENTIAL_NOT_CONFIGURED error when none is available.
	Credential(provider string) (string, error)
}

// EnvCredentialSource reads credentials from the process environment
// using the <PROVIDER>_API_KEY convention, with optional per-provider
// variable overrides.
type EnvCredentialSource struct {
	// Overrides maps a provider name to the environment variable holding
	// its key, for providers that do not follow the convention.
	Overrides map[string]string
}

var _ CredentialSource = (*EnvCredentialSource)(nil)

// Credential implements CredentialSource.
func (s *EnvCredentialSource) Credential(provider string) (string, error) {
	envVar := strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	if s.Overrides != nil {
		if v, ok := s.Overrides[provider]; ok {
			envVar = v
		}
	}
	key := strings.TrimSpace(os.Getenv(envVar))
	if key == "" {
		return "", NewError(ErrNotConfigured,
			fmt.Sprintf("no credential for provider %q (checked %s)", provider, envVar)).
			WithProvider(provider)
	}
	return key, nil
}

// StaticCredentialSource serves credentials from a fixed map. Useful for
// tests and embedded configuration.
type StaticCredentialSource map[string]string

var _ CredentialSource = StaticCredentialSource(nil)

// Credential implements CredentialSource.
func (s StaticCredentialSource) Credential(provider string) (string, error) {
	key, ok := s[provider]
	if !ok || key == "" {
		return "", NewError(ErrNotConfigured,
			fmt.Sprintf("no credential for provider %q", provider)).WithProvider(provider)
	}
	return key, nil
}
