package assistant

import (
	"context"
	"testing"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/flemzord/substackulous/internal/provider/providertest"
	"github.com/flemzord/substackulous/pkg/message"
)

const testPrompts = `
[chat]
system = "Be brief."

[illustration]
system = "Design an illustration."
user = "{{.Title}} {{.Style}} {{.Index}}/{{.Count}} {{.Content}}"

[notes]
system = "Schema: {{.Schema}}"
user = "{{.Count}} {{.Tone}} {{.Content}}"
`

// newTestService returns a Service over p with a funded in-memory store.
func newTestService(t *testing.T, p provider.Provider, balance int, opts ...Option) (*Service, *credit.MemoryStore) {
	t.Helper()

	prompts, err := ParsePrompts(testPrompts)
	if err != nil {
		t.Fatalf("ParsePrompts: %v", err)
	}
	store := credit.NewMemoryStore()
	if balance > 0 {
		if _, err := store.Grant(context.Background(), "u1", balance); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}

	svc, err := New(p, store, append([]Option{WithPrompts(prompts)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, store
}

func balanceOf(t *testing.T, store credit.Store) int {
	t.Helper()
	n, err := store.Balance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return n
}

func userTurns(contents ...string) message.Transcript {
	out := make(message.Transcript, len(contents))
	for i, c := range contents {
		role := message.RoleUser
		if i%2 == 1 {
			role = message.RoleAssistant
		}
		out[i] = message.Message{Role: role, Content: c}
	}
	return out
}

func lastRequest(t *testing.T, p *providertest.MockProvider) provider.CompletionRequest {
	t.Helper()
	req, ok := p.LastRequest()
	if !ok {
		t.Fatal("provider was not called")
	}
	return req
}
