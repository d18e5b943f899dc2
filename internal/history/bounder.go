package history

import (
	"slices"

	"github.com/flemzord/substackulous/pkg/message"
)

// DefaultMaxTokens mirrors the context window of the default inference model.
const DefaultMaxTokens = 8192

// Bound returns the messages of t that fit in maxTokens, preferring the most
// recent ones, in their original chronological order.
//
// Messages are visited newest first. A message is kept when adding its token
// count to the running total stays within maxTokens; only kept messages
// count towards the total. A large recent message that does not fit is
// therefore skipped while older, smaller messages may still be kept.
//
// The input is never modified and the result never aliases it. A
// non-positive budget yields an empty transcript.
func Bound(t message.Transcript, maxTokens int) message.Transcript {
	return Bounder{MaxTokens: maxTokens}.Bound(t)
}

// Bounder is a reusable bounding policy. The zero value uses the whitespace
// counter with a zero budget; use NewBounder for the defaults.
type Bounder struct {
	// Counter estimates tokens per message. Nil means WhitespaceCounter.
	Counter Counter

	// MaxTokens is the budget for the whole transcript.
	MaxTokens int
}

// NewBounder returns a Bounder with the whitespace counter. A non-positive
// maxTokens selects DefaultMaxTokens.
func NewBounder(maxTokens int) Bounder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return Bounder{Counter: WhitespaceCounter{}, MaxTokens: maxTokens}
}

// WithBudget returns a copy of b with a different budget.
func (b Bounder) WithBudget(maxTokens int) Bounder {
	b.MaxTokens = maxTokens
	return b
}

// Bound applies the policy to t. See the package-level Bound.
func (b Bounder) Bound(t message.Transcript) message.Transcript {
	if b.MaxTokens <= 0 || len(t) == 0 {
		return message.Transcript{}
	}

	counter := b.Counter
	if counter == nil {
		counter = WhitespaceCounter{}
	}

	kept := make(message.Transcript, 0, len(t))
	total := 0
	for i := len(t) - 1; i >= 0; i-- {
		n := counter.Count(t[i].Content)
		if total+n > b.MaxTokens {
			continue
		}
		total += n
		kept = append(kept, t[i])
	}

	slices.Reverse(kept)
	return kept
}

// Result describes the outcome of a bounding pass, for logging and metrics.
type Result struct {
	Transcript message.Transcript
	Tokens     int
	Dropped    int
}

// BoundWithStats is Bound plus the kept token total and the number of
// dropped messages.
func (b Bounder) BoundWithStats(t message.Transcript) Result {
	kept := b.Bound(t)
	return Result{
		Transcript: kept,
		Tokens:     CountTranscript(b.Counter, kept),
		Dropped:    len(t) - len(kept),
	}
}
