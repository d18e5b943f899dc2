package history_test

import (
	"math/rand/v2"
	"strings"

	"github.com/flemzord/substackulous/pkg/message"
)

// transcriptOf builds a transcript with one message per content string,
// alternating user and assistant roles.
func transcriptOf(contents ...string) message.Transcript {
	t := make(message.Transcript, len(contents))
	for i, c := range contents {
		role := message.RoleUser
		if i%2 == 1 {
			role = message.RoleAssistant
		}
		t[i] = message.Message{Role: role, Content: c}
	}
	return t
}

// randomTranscript builds n messages of 0..maxWords words each.
func randomTranscript(r *rand.Rand, n, maxWords int) message.Transcript {
	contents := make([]string, n)
	for i := range contents {
		words := r.IntN(maxWords + 1)
		contents[i] = strings.TrimSpace(strings.Repeat("w ", words))
	}
	return transcriptOf(contents...)
}

func contentsOf(t message.Transcript) []string {
	out := make([]string, len(t))
	for i := range t {
		out[i] = t[i].Content
	}
	return out
}

// isSubsequence reports whether sub appears in full in the same relative order.
func isSubsequence(sub, full message.Transcript) bool {
	j := 0
	for i := 0; i < len(full) && j < len(sub); i++ {
		if full[i] == sub[j] {
			j++
		}
	}
	return j == len(sub)
}
