// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/substackulous/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset Complete/Stream funcs panic
// on call; unset ContextWindowSize/ModelName/HealthCheck return defaults.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc          func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc            func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ContextWindowSizeFunc func() int
	ModelNameFunc         func() string
	HealthCheckFunc       func(ctx context.Context) error

	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	HealthCalls   int
	requests      []provider.CompletionRequest
}

// NewReplying returns a mock whose Complete always answers content and
// whose Stream emits content word by word.
func NewReplying(content string) *MockProvider {
	return &MockProvider{
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{
				Content:      content,
				FinishReason: provider.FinishReasonStop,
				Usage:        provider.TokenUsage{CompletionTokens: len(content), TotalTokens: len(content)},
			}, nil
		},
		StreamFunc: func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			ch := make(chan provider.StreamChunk, 2)
			ch <- provider.StreamChunk{Content: content}
			ch <- provider.StreamChunk{FinishReason: provider.FinishReasonStop}
			close(ch)
			return ch, nil
		},
	}
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ContextWindowSize delegates to ContextWindowSizeFunc, defaulting to 8192.
func (m *MockProvider) ContextWindowSize() int {
	if m.ContextWindowSizeFunc == nil {
		return 8192
	}
	return m.ContextWindowSizeFunc()
}

// ModelName delegates to ModelNameFunc, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or false if none.
func (m *MockProvider) LastRequest() (provider.CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return provider.CompletionRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
