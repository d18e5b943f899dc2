package assistant

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
)

//go:embed prompts.toml
var defaultPrompts string

// Prompts holds the prompt library.
type Prompts struct {
	Chat struct {
		System string `toml:"system"`
	} `toml:"chat"`
	Illustration struct {
		System string `toml:"system"`
		User   string `toml:"user"`
	} `toml:"illustration"`
	Notes struct {
		System string `toml:"system"`
		User   string `toml:"user"`
	} `toml:"notes"`

	illustrationUser *template.Template
	notesSystem      *template.Template
	notesUser        *template.Template
}

// DefaultPrompts returns the embedded prompt library.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPrompts)
	if err != nil {
		panic(fmt.Sprintf("assistant: embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts reads a prompt library from a TOML file. Sections missing from
// the file keep their embedded defaults.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	p := DefaultPrompts()
	if _, err := toml.Decode(string(data), p); err != nil {
		return nil, fmt.Errorf("decode prompts %s: %w", path, err)
	}
	if err := p.compile(); err != nil {
		return nil, fmt.Errorf("prompts %s: %w", path, err)
	}
	return p, nil
}

// ParsePrompts decodes a TOML prompt library.
func ParsePrompts(src string) (*Prompts, error) {
	var p Prompts
	if _, err := toml.Decode(src, &p); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prompts) compile() error {
	var errs []error
	parse := func(name, src string) *template.Template {
		if strings.TrimSpace(src) == "" {
			errs = append(errs, fmt.Errorf("prompt %s is empty", name))
			return nil
		}
		t, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("prompt %s: %w", name, err))
		}
		return t
	}
	if strings.TrimSpace(p.Chat.System) == "" {
		errs = append(errs, errors.New("prompt chat.system is empty"))
	}
	if strings.TrimSpace(p.Illustration.System) == "" {
		errs = append(errs, errors.New("prompt illustration.system is empty"))
	}
	p.illustrationUser = parse("illustration.user", p.Illustration.User)
	p.notesSystem = parse("notes.system", p.Notes.System)
	p.notesUser = parse("notes.user", p.Notes.User)
	return errors.Join(errs...)
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
