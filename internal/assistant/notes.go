package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/invopop/jsonschema"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Notes limits.
const (
	DefaultNotes = 5
	MaxNotes     = 10
	defaultTone  = "conversational"
)

// NotesRequest asks for Substack Notes promoting a post.
type NotesRequest struct {
	Content string `json:"content"`
	Count   int    `json:"count,omitempty"`
	Tone    string `json:"tone,omitempty"`
}

// Note is one generated note, as Markdown and as sanitized HTML.
type Note struct {
	Text string `json:"text"`
	HTML string `json:"html"`
	Hook string `json:"hook,omitempty"`
}

// notesOutput is the shape the model is asked to produce.
type notesOutput struct {
	Notes []noteDraft `json:"notes" jsonschema:"required,description=The generated notes"`
}

type noteDraft struct {
	Text string `json:"text" jsonschema:"required,description=The note body in Markdown; under 280 words"`
	Hook string `json:"hook,omitempty" jsonschema:"description=The opening line that makes readers stop scrolling"`
}

var (
	schemaOnce sync.Once
	schemaJSON string

	markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
	policy   = bluemonday.UGCPolicy()
)

// NotesSchema returns the JSON schema of the model output.
func NotesSchema() string {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
		b, err := json.Marshal(r.Reflect(&notesOutput{}))
		if err != nil {
			panic(fmt.Sprintf("assistant: notes schema: %v", err))
		}
		schemaJSON = string(b)
	})
	return schemaJSON
}

// RenderMarkdown converts note Markdown to sanitized HTML.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimSpace(string(policy.SanitizeBytes(buf.Bytes()))), nil
}

func (r *NotesRequest) normalize() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if r.Count == 0 {
		r.Count = DefaultNotes
	}
	if r.Count < 1 || r.Count > MaxNotes {
		return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, MaxNotes)
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = defaultTone
	}
	r.Content = truncate(r.Content, maxContentChars)
	return nil
}

// GenerateNotes writes req.Count notes for a post.
func (s *Service) GenerateNotes(ctx context.Context, userID string, req NotesRequest) ([]Note, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	system, err := render(s.prompts.notesSystem, struct{ Schema string }{NotesSchema()})
	if err != nil {
		return nil, err
	}
	user, err := render(s.prompts.notesUser, req)
	if err != nil {
		return nil, err
	}

	refund, err := s.charge(ctx, userID, credit.ActionNotes)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: system},
			{Role: provider.MessageRoleUser, Content: user},
		},
		ResponseFormat: provider.ResponseFormatJSON,
		Temperature:    provider.Float64(0.8),
	})
	s.observer.ObserveCompletion("notes", resp.Usage, err)
	if err != nil {
		refund()
		return nil, fmt.Errorf("notes completion: %w", err)
	}

	notes, err := parseNotes(resp.Content, req.Count)
	if err != nil {
		refund()
		return nil, err
	}
	return notes, nil
}

// parseNotes decodes the model output, drops empty drafts and renders the
// rest. Extra notes beyond limit are discarded.
func parseNotes(raw string, limit int) ([]Note, error) {
	var out notesOutput
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	notes := make([]Note, 0, len(out.Notes))
	for _, d := range out.Notes {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		html, err := RenderMarkdown(text)
		if err != nil {
			return nil, err
		}
		notes = append(notes, Note{Text: text, HTML: html, Hook: strings.TrimSpace(d.Hook)})
		if len(notes) == limit {
			break
		}
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("model returned no notes")
	}
	return notes, nil
}
