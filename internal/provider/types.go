package provider

import "github.com/flemzord/substackulous/pkg/message"

// MessageRole identifies the sender of a message in a conversation.
type MessageRole = message.Role

// MessageRole constants for conversation messages.
const (
	MessageRoleSystem    = message.RoleSystem
	MessageRoleUser      = message.RoleUser
	MessageRoleAssistant = message.RoleAssistant
)

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants for model completion termination.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// ResponseFormat asks the model for a specific output encoding.
type ResponseFormat string

// Supported response formats.
const (
	ResponseFormatText ResponseFormat = ""
	ResponseFormatJSON ResponseFormat = "json_object"
)

// LLMMessage represents a single message in a conversation.
type LLMMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest is the input to a Provider.Complete or Provider.Stream call.
type CompletionRequest struct {
	Messages       []LLMMessage   `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	Stop           []string       `json:"stop,omitempty"`
	ResponseFormat ResponseFormat `json:"response_format,omitempty"`
}

// CompletionResponse is the output of a Provider.Complete call.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// StreamChunk represents one piece of a streaming completion response.
type StreamChunk struct {
	Content      string       `json:"content,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Float64 returns a pointer to v, for the optional sampling parameters.
func Float64(v float64) *float64 {
	return &v
}

// FromTranscript converts a chat transcript into provider messages.
func FromTranscript(t message.Transcript) []LLMMessage {
	out := make([]LLMMessage, len(t))
	for i, m := range t {
		out[i] = LLMMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
