package groq

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flemzord/substackulous/internal/provider"
)

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Usage   *chatUsage     `json:"usage,omitempty"`
	XGroq   *groqExtension `json:"x_groq,omitempty"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamDelta struct {
	Content string `json:"content,omitempty"`
}

// parseSSEStream reads an SSE body and emits StreamChunks on the returned
// channel. The channel is closed on [DONE], on error, or on cancellation.
func parseSSEStream(ctx context.Context, scanner *bufio.Scanner) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, 16)

	go func() {
		defer close(ch)

		// send reports false once the consumer is gone.
		send := func(sc provider.StreamChunk) bool {
			select {
			case ch <- sc:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				send(provider.StreamChunk{Err: err})
				return
			}

			line := scanner.Text()

			var data string
			switch {
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimPrefix(line, "data:")
			default:
				continue
			}

			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				send(provider.StreamChunk{Err: fmt.Errorf("parse SSE chunk: %w", err)})
				return
			}

			sc := provider.StreamChunk{}
			usage := chunk.Usage
			if usage == nil && chunk.XGroq != nil {
				usage = chunk.XGroq.Usage
			}
			if usage != nil {
				u := toUsage(*usage)
				sc.Usage = &u
			}
			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				sc.Content = choice.Delta.Content
				if choice.FinishReason != nil {
					sc.FinishReason = mapFinishReason(*choice.FinishReason)
				}
			}

			if sc.Content != "" || sc.FinishReason != "" || sc.Usage != nil {
				if !send(sc) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				send(provider.StreamChunk{Err: ctx.Err()})
				return
			}
			send(provider.StreamChunk{
				Err: fmt.Errorf("%w: stream read error: %w", provider.ErrProviderDown, err),
			})
		}
	}()

	return ch
}
