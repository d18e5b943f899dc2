package history_test

import (
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/pkg/message"
)

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestBound_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		contents  []string
		maxTokens int
		want      []string
	}{
		{
			name:      "recency_bias",
			contents:  []string{"a", "b b", "c c c"},
			maxTokens: 5,
			want:      []string{"b b", "c c c"},
		},
		{
			name:      "oversized_newest_is_skipped",
			contents:  []string{"x", "a very long message with ten words total right"},
			maxTokens: 5,
			want:      []string{"x"},
		},
		{
			name:      "everything_fits",
			contents:  []string{"a", "b b", "c c c"},
			maxTokens: 6,
			want:      []string{"a", "b b", "c c c"},
		},
		{
			name:      "large_middle_message_skipped",
			contents:  []string{"a", "b b b b b b", "c"},
			maxTokens: 3,
			want:      []string{"a", "c"},
		},
		{
			name:      "only_newest_fits",
			contents:  []string{"a a a", "b b b"},
			maxTokens: 4,
			want:      []string{"b b b"},
		},
		{
			name:      "nothing_fits",
			contents:  []string{"a a a", "b b b"},
			maxTokens: 2,
			want:      []string{},
		},
		{
			name:      "empty_content_costs_nothing",
			contents:  []string{"", "a", ""},
			maxTokens: 1,
			want:      []string{"", "a", ""},
		},
		{
			name:      "zero_budget",
			contents:  []string{"", "a"},
			maxTokens: 0,
			want:      []string{},
		},
		{
			name:      "negative_budget",
			contents:  []string{"a"},
			maxTokens: -10,
			want:      []string{},
		},
		{
			name:      "empty_transcript",
			contents:  nil,
			maxTokens: history.DefaultMaxTokens,
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := history.Bound(transcriptOf(tt.contents...), tt.maxTokens)
			if got == nil {
				t.Fatal("Bound must return a non-nil transcript")
			}
			if !slices.Equal(contentsOf(got), tt.want) {
				t.Errorf("Bound(%q, %d) = %q, want %q", tt.contents, tt.maxTokens, contentsOf(got), tt.want)
			}
		})
	}
}

func TestBound_PreservesRolesAndTimestamps(t *testing.T) {
	t.Parallel()

	in := message.Transcript{
		message.New(message.RoleSystem, "be concise"),
		message.New(message.RoleUser, "hello there"),
		message.New(message.RoleAssistant, "hi"),
	}
	got := history.Bound(in, 3)

	want := in[1:]
	if !slices.Equal(got, want) {
		t.Errorf("Bound = %+v, want %+v", got, want)
	}
}

// ---------------------------------------------------------------------------
// Input is never mutated or aliased
// ---------------------------------------------------------------------------

func TestBound_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := transcriptOf("a", "b b", "c c c", "d")
	snapshot := in.Clone()

	out := history.Bound(in, 4)
	if !slices.Equal(in, snapshot) {
		t.Fatalf("input mutated: %q", contentsOf(in))
	}

	if len(out) > 0 {
		out[0].Content = "changed"
		if !slices.Equal(in, snapshot) {
			t.Error("output aliases the input backing array")
		}
	}
}

func TestBound_FullFitReturnsCopy(t *testing.T) {
	t.Parallel()

	in := transcriptOf("a", "b")
	out := history.Bound(in, 100)
	out[0].Content = "changed"
	if in[0].Content != "a" {
		t.Error("output aliases the input when nothing is truncated")
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestBound_Properties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 42))
	for range 500 {
		tr := randomTranscript(r, r.IntN(20), 12)
		budget := r.IntN(60)
		total := history.CountTranscript(nil, tr)

		got := history.Bound(tr, budget)

		if n := history.CountTranscript(nil, got); budget > 0 && n > budget {
			t.Fatalf("bounded transcript has %d tokens, budget %d", n, budget)
		}
		if !isSubsequence(got, tr) {
			t.Fatalf("result %q is not an ordered subsequence of %q", contentsOf(got), contentsOf(tr))
		}
		if again := history.Bound(got, budget); !slices.Equal(again, got) {
			t.Fatalf("not idempotent: %q then %q", contentsOf(got), contentsOf(again))
		}
		if budget > 0 && budget >= total && !slices.Equal(got, tr) {
			t.Fatalf("budget %d >= total %d but transcript was truncated", budget, total)
		}
		if budget == 0 && len(got) != 0 {
			t.Fatalf("zero budget kept %d messages", len(got))
		}
	}
}

func TestBound_ConcurrentUse(t *testing.T) {
	t.Parallel()

	tr := transcriptOf("a", "b b", "c c c")
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := history.Bound(tr, 5)
			if !slices.Equal(contentsOf(got), []string{"b b", "c c c"}) {
				t.Errorf("concurrent Bound = %q", contentsOf(got))
			}
		}()
	}
	wg.Wait()
}

// ---------------------------------------------------------------------------
// Bounder
// ---------------------------------------------------------------------------

func TestNewBounder_Defaults(t *testing.T) {
	t.Parallel()

	if b := history.NewBounder(0); b.MaxTokens != history.DefaultMaxTokens {
		t.Errorf("NewBounder(0).MaxTokens = %d, want %d", b.MaxTokens, history.DefaultMaxTokens)
	}
	if b := history.NewBounder(100); b.MaxTokens != 100 {
		t.Errorf("NewBounder(100).MaxTokens = %d, want 100", b.MaxTokens)
	}
	if b := history.NewBounder(100).WithBudget(5); b.MaxTokens != 5 {
		t.Errorf("WithBudget(5).MaxTokens = %d, want 5", b.MaxTokens)
	}
}

// charCounter counts bytes, to check that a custom Counter is honoured.
type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

func TestBounder_CustomCounter(t *testing.T) {
	t.Parallel()

	b := history.Bounder{Counter: charCounter{}, MaxTokens: 4}
	got := b.Bound(transcriptOf("abc", "de", "fg"))
	if !slices.Equal(contentsOf(got), []string{"de", "fg"}) {
		t.Errorf("Bound = %q, want [de fg]", contentsOf(got))
	}
}

func TestBounder_BoundWithStats(t *testing.T) {
	t.Parallel()

	res := history.NewBounder(5).BoundWithStats(transcriptOf("a", "b b", "c c c"))
	if res.Tokens != 5 {
		t.Errorf("Tokens = %d, want 5", res.Tokens)
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if len(res.Transcript) != 2 {
		t.Errorf("len(Transcript) = %d, want 2", len(res.Transcript))
	}
}
