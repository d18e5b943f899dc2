package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuthentication indicates the provider rejected our credentials.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrCircuitOpen indicates requests are suspended after repeated failures.
	ErrCircuitOpen = errors.New("provider circuit open")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown) || errors.Is(err, ErrCircuitOpen)
}
