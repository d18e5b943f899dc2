// Package provider defines the contract between substackulous and the LLM
// inference services it calls (Groq and other OpenAI-compatible APIs).
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g. modules/provider/groq)
// and typically also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize returns the maximum context window in tokens.
	ContextWindowSize() int

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing from the gateway's /health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is a point-in-time health report for one provider.
type Status struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Error     string `json:"error,omitempty"`
}
