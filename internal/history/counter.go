package history

import (
	"strings"

	"github.com/flemzord/substackulous/pkg/message"
)

// Counter estimates the token count of a string.
type Counter interface {
	Count(text string) int
}

// WhitespaceCounter counts whitespace-delimited segments.
// Empty or blank text counts as zero tokens.
type WhitespaceCounter struct{}

// Count implements Counter.
func (WhitespaceCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// CountTokens returns the approximate token count of a single message.
func CountTokens(m message.Message) int {
	return WhitespaceCounter{}.Count(m.Content)
}

// CountTranscript returns the approximate token count of a whole transcript.
func CountTranscript(counter Counter, t message.Transcript) int {
	if counter == nil {
		counter = WhitespaceCounter{}
	}
	total := 0
	for i := range t {
		total += counter.Count(t[i].Content)
	}
	return total
}
