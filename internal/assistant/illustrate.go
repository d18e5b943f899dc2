package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/provider"
	"golang.org/x/sync/errgroup"
)

// Illustration limits.
const (
	DefaultIllustrations = 3
	MaxIllustrations     = 4
	defaultStyle         = "editorial flat illustration, muted palette"
	maxContentChars      = 12000
)

// IllustrateRequest asks for illustration concepts for a post.
type IllustrateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Count   int    `json:"count,omitempty"`
	Style   string `json:"style,omitempty"`
}

// Illustration is one concept: an image-generation prompt and its caption.
type Illustration struct {
	Prompt  string `json:"prompt"`
	Caption string `json:"caption"`
}

func (r *IllustrateRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" && r.Title == "" {
		return fmt.Errorf("%w: title or content is required", ErrInvalidRequest)
	}
	if r.Count == 0 {
		r.Count = DefaultIllustrations
	}
	if r.Count < 1 || r.Count > MaxIllustrations {
		return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, MaxIllustrations)
	}
	if strings.TrimSpace(r.Style) == "" {
		r.Style = defaultStyle
	}
	r.Content = truncate(r.Content, maxContentChars)
	return nil
}

// Illustrate generates req.Count illustration concepts concurrently. The
// batch costs one illustration charge; any failed concept fails the batch
// and refunds it.
func (s *Service) Illustrate(ctx context.Context, userID string, req IllustrateRequest) ([]Illustration, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	refund, err := s.charge(ctx, userID, credit.ActionIllustration)
	if err != nil {
		return nil, err
	}

	out := make([]Illustration, req.Count)
	g, gctx := errgroup.WithContext(ctx)
	for i := range req.Count {
		g.Go(func() error {
			ill, err := s.illustrateOne(gctx, req, i+1)
			if err != nil {
				return fmt.Errorf("illustration %d: %w", i+1, err)
			}
			out[i] = ill
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		refund()
		return nil, err
	}
	return out, nil
}

func (s *Service) illustrateOne(ctx context.Context, req IllustrateRequest, index int) (Illustration, error) {
	user, err := render(s.prompts.illustrationUser, struct {
		Title, Content, Style string
		Index, Count          int
	}{req.Title, req.Content, req.Style, index, req.Count})
	if err != nil {
		return Illustration{}, err
	}

	resp, err := s.provider.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: strings.TrimSpace(s.prompts.Illustration.System)},
			{Role: provider.MessageRoleUser, Content: user},
		},
		ResponseFormat: provider.ResponseFormatJSON,
		Temperature:    provider.Float64(0.9),
	})
	s.observer.ObserveCompletion("illustration", resp.Usage, err)
	if err != nil {
		return Illustration{}, err
	}

	var ill Illustration
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &ill); err != nil {
		return Illustration{}, fmt.Errorf("decode model output: %w", err)
	}
	ill.Prompt = strings.TrimSpace(ill.Prompt)
	ill.Caption = strings.TrimSpace(ill.Caption)
	if ill.Prompt == "" {
		return Illustration{}, fmt.Errorf("model returned an empty prompt")
	}
	return ill, nil
}

// extractJSON strips Markdown code fences some models wrap JSON in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	return s
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
