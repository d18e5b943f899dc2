package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flemzord/substackulous/internal/provider"
)

// Wire types of the OpenAI-compatible chat completions API.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Groq reports streaming usage in an x_groq extension of the final chunk.
type groqExtension struct {
	Usage *chatUsage `json:"usage,omitempty"`
}

// buildRequest converts a provider.CompletionRequest into the wire format.
// cfg.MaxTokens is used when req.MaxTokens is zero.
func buildRequest(cfg Config, req provider.CompletionRequest, stream bool) chatRequest {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.MaxTokens
	}

	out := chatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Stream:      stream,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if req.ResponseFormat != provider.ResponseFormatText {
		out.ResponseFormat = &responseFormat{Type: string(req.ResponseFormat)}
	}
	return out
}

// parseResponse converts a chatResponse into a provider.CompletionResponse.
func parseResponse(resp chatResponse) provider.CompletionResponse {
	cr := provider.CompletionResponse{Usage: toUsage(resp.Usage)}
	if len(resp.Choices) == 0 {
		return cr
	}
	choice := resp.Choices[0]
	cr.Content = choice.Message.Content
	cr.FinishReason = mapFinishReason(choice.FinishReason)
	return cr
}

func toUsage(u chatUsage) provider.TokenUsage {
	return provider.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// mapFinishReason converts a finish_reason string to a provider.FinishReason.
// Unknown values are passed through.
func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(reason)
	}
}

// newRequest builds an authenticated request against the API.
func (p *Provider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	cfg := p.currentConfig()
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// doRequest executes a POST to the chat completions endpoint.
func (p *Provider) doRequest(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Caller cancellation is not a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return resp, nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// handleErrorResponse maps HTTP error status codes to sentinel errors.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusRequestEntityTooLarge:
		if isContextLengthError(body) {
			return fmt.Errorf("%w: %s", provider.ErrContextLength, body)
		}
		return fmt.Errorf("bad request: %s", body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrAuthentication, resp.StatusCode, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "reduce the length")
}
