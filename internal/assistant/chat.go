package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/flemzord/substackulous/pkg/message"
)

// Turn is the model input prepared for one chat turn.
type Turn struct {
	Request provider.CompletionRequest
	History history.Result
}

// prepare bounds transcript to the chat budget minus the system prompt and
// builds the completion request.
func (s *Service) prepare(transcript message.Transcript) (Turn, error) {
	if len(transcript) == 0 {
		return Turn{}, fmt.Errorf("%w: empty transcript", ErrInvalidRequest)
	}
	for i, m := range transcript {
		if !m.Role.Valid() {
			return Turn{}, fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidRequest, i, m.Role)
		}
	}
	last := transcript[len(transcript)-1]
	if last.Role != message.RoleUser {
		return Turn{}, fmt.Errorf("%w: last message must come from the user", ErrInvalidRequest)
	}
	if strings.TrimSpace(last.Content) == "" {
		return Turn{}, fmt.Errorf("%w: last message is empty", ErrInvalidRequest)
	}

	system := strings.TrimSpace(s.prompts.Chat.System)
	counter := s.bounder.Counter
	if counter == nil {
		counter = history.WhitespaceCounter{}
	}
	budget := s.bounder.MaxTokens - counter.Count(system)

	// The newest message is kept iff it fits on its own.
	if n := counter.Count(last.Content); n > budget {
		return Turn{}, fmt.Errorf("%w: latest message has %d tokens, history budget is %d", ErrInvalidRequest, n, budget)
	}
	res := s.bounder.WithBudget(budget).BoundWithStats(transcript)

	msgs := make([]provider.LLMMessage, 0, len(res.Transcript)+1)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: system})
	msgs = append(msgs, provider.FromTranscript(res.Transcript)...)

	return Turn{
		Request: provider.CompletionRequest{Messages: msgs},
		History: res,
	}, nil
}

// Chat answers the latest user message of transcript.
func (s *Service) Chat(ctx context.Context, userID string, transcript message.Transcript) (message.Message, error) {
	turn, err := s.prepare(transcript)
	if err != nil {
		return message.Message{}, err
	}

	refund, err := s.charge(ctx, userID, credit.ActionChat)
	if err != nil {
		return message.Message{}, err
	}

	resp, err := s.provider.Complete(ctx, turn.Request)
	s.observer.ObserveCompletion("chat", resp.Usage, err)
	if err != nil {
		refund()
		return message.Message{}, fmt.Errorf("chat completion: %w", err)
	}

	s.logger.Debug("chat turn",
		"user_id", userID,
		"history_tokens", turn.History.Tokens,
		"dropped", turn.History.Dropped,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return message.Message{
		Role:      message.RoleAssistant,
		Content:   strings.TrimSpace(resp.Content),
		Timestamp: s.now(),
	}, nil
}

// conversationKey scopes stored conversations to their owner.
func conversationKey(userID, conversationID string) string {
	return userID + "/" + conversationID
}

// ChatConversation appends text to a stored conversation, answers it and
// stores the reply. It requires WithConversations.
func (s *Service) ChatConversation(ctx context.Context, userID, conversationID, text string) (message.Message, error) {
	if s.conversations == nil {
		return message.Message{}, fmt.Errorf("%w: conversation storage is disabled", ErrInvalidRequest)
	}
	if conversationID == "" || strings.TrimSpace(text) == "" {
		return message.Message{}, fmt.Errorf("%w: conversation id and text are required", ErrInvalidRequest)
	}

	key := conversationKey(userID, conversationID)
	stored, err := s.conversations.Load(ctx, key)
	if err != nil {
		return message.Message{}, fmt.Errorf("load conversation: %w", err)
	}

	userMsg := message.Message{Role: message.RoleUser, Content: text, Timestamp: s.now()}
	transcript := append(stored.Clone(), userMsg)

	reply, err := s.Chat(ctx, userID, transcript)
	if err != nil {
		return message.Message{}, err
	}
	if err := s.conversations.Append(ctx, key, userMsg, reply); err != nil {
		s.logger.Error("store conversation failed", "user_id", userID, "conversation_id", conversationID, "error", err)
	}
	return reply, nil
}

// Conversation returns a stored conversation.
func (s *Service) Conversation(ctx context.Context, userID, conversationID string) (message.Transcript, error) {
	if s.conversations == nil {
		return message.Transcript{}, nil
	}
	return s.conversations.Load(ctx, conversationKey(userID, conversationID))
}

// DeleteConversation removes a stored conversation.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if s.conversations == nil {
		return nil
	}
	return s.conversations.Purge(ctx, conversationKey(userID, conversationID))
}

// Delta is one piece of a streamed reply. The final delta has Done set and
// carries the complete reply; an Err delta ends the stream.
type Delta struct {
	Content string          `json:"content,omitempty"`
	Done    bool            `json:"done,omitempty"`
	Reply   message.Message `json:"reply,omitzero"`
	Err     error           `json:"-"`
}

// ChatStream is Chat with incremental delivery. Credits are refunded if the
// stream fails before producing any content.
func (s *Service) ChatStream(ctx context.Context, userID string, transcript message.Transcript) (<-chan Delta, error) {
	turn, err := s.prepare(transcript)
	if err != nil {
		return nil, err
	}

	refund, err := s.charge(ctx, userID, credit.ActionChat)
	if err != nil {
		return nil, err
	}

	chunks, err := s.provider.Stream(ctx, turn.Request)
	if err != nil {
		s.observer.ObserveCompletion("chat_stream", provider.TokenUsage{}, err)
		refund()
		return nil, fmt.Errorf("chat stream: %w", err)
	}

	out := make(chan Delta, 16)
	go func() {
		defer close(out)

		var (
			b     strings.Builder
			usage provider.TokenUsage
		)
		send := func(d Delta) bool {
			select {
			case out <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for chunk := range chunks {
			if chunk.Err != nil {
				s.observer.ObserveCompletion("chat_stream", usage, chunk.Err)
				if b.Len() == 0 {
					refund()
				}
				send(Delta{Err: fmt.Errorf("chat stream: %w", chunk.Err)})
				return
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if chunk.Content == "" {
				continue
			}
			b.WriteString(chunk.Content)
			if !send(Delta{Content: chunk.Content}) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			if b.Len() == 0 {
				refund()
			}
			return
		}
		s.observer.ObserveCompletion("chat_stream", usage, nil)
		send(Delta{
			Done: true,
			Reply: message.Message{
				Role:      message.RoleAssistant,
				Content:   strings.TrimSpace(b.String()),
				Timestamp: s.now(),
			},
		})
	}()
	return out, nil
}

// ChatConversationStream is ChatConversation with incremental delivery. The
// turn is stored once the reply completes.
func (s *Service) ChatConversationStream(ctx context.Context, userID, conversationID, text string) (<-chan Delta, error) {
	if s.conversations == nil {
		return nil, fmt.Errorf("%w: conversation storage is disabled", ErrInvalidRequest)
	}
	if conversationID == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: conversation id and text are required", ErrInvalidRequest)
	}

	key := conversationKey(userID, conversationID)
	stored, err := s.conversations.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	userMsg := message.Message{Role: message.RoleUser, Content: text, Timestamp: s.now()}

	in, err := s.ChatStream(ctx, userID, append(stored.Clone(), userMsg))
	if err != nil {
		return nil, err
	}

	out := make(chan Delta, cap(in))
	go func() {
		defer close(out)
		for d := range in {
			if d.Done {
				if err := s.conversations.Append(context.WithoutCancel(ctx), key, userMsg, d.Reply); err != nil {
					s.logger.Error("store conversation failed", "user_id", userID, "conversation_id", conversationID, "error", err)
				}
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
