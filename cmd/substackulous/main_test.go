package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/substackulous/internal/config"
	"github.com/flemzord/substackulous/pkg/app"
	"github.com/flemzord/substackulous/pkg/message"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const transcriptJSON = `[
  {"role": "user", "content": "one two three", "timestamp": "2026-01-01T10:00:00Z"},
  {"role": "assistant", "content": "four five", "timestamp": "2026-01-01T10:01:00Z"},
  {"role": "user", "content": "six", "timestamp": "2026-01-01T10:02:00Z"}
]`

func TestBoundCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		wantText []string
	}{
		{name: "default budget keeps everything", args: nil, wantText: []string{"one two three", "four five", "six"}},
		{name: "budget keeps newest", args: []string{"--max-tokens", "3"}, wantText: []string{"four five", "six"}},
		{name: "zero budget", args: []string{"-n", "0"}, wantText: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, _, err := execute(t, transcriptJSON, append([]string{"bound"}, tt.args...)...)
			if err != nil {
				t.Fatalf("bound: %v", err)
			}
			var got message.Transcript
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("decode output %q: %v", out, err)
			}
			if len(got) != len(tt.wantText) {
				t.Fatalf("kept %d messages, want %d: %+v", len(got), len(tt.wantText), got)
			}
			for i, want := range tt.wantText {
				if got[i].Content != want {
					t.Errorf("message %d = %q, want %q", i, got[i].Content, want)
				}
			}
		})
	}
}

func TestBoundCmd_Stats(t *testing.T) {
	t.Parallel()

	_, errOut, err := execute(t, transcriptJSON, "bound", "--max-tokens", "3", "--stats")
	if err != nil {
		t.Fatalf("bound: %v", err)
	}
	if !strings.Contains(errOut, "kept 2 of 3 messages, 3 tokens") {
		t.Errorf("stats = %q", errOut)
	}
}

func TestBoundCmd_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "hello"},
		{name: "bad role", input: `[{"role": "robot", "content": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := execute(t, tt.input, "bound"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"substackulous dev", "gateway.http", "provider.groq", "scheduler.cron"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestServiceCmd_UnknownAction(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "", "service", "explode")
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Fatalf("expected unknown action error, got %v", err)
	}
}

func setCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "gsk_cli_test")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_cli")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_cli")
}

func TestRenderConfig(t *testing.T) {
	setCredentialEnv(t)

	tests := []struct {
		name        string
		answers     initAnswers
		wantModules []string
	}{
		{
			name: "minimal",
			answers: initAnswers{
				Bind:        "127.0.0.1:8080",
				SupabaseURL: "https://xyz.supabase.co/",
				Model:       "llama-3.3-70b-versatile",
				Storage:     "memory",
			},
			wantModules: []string{"auth.supabase", "gateway.http", "provider.groq"},
		},
		{
			name: "full",
			answers: initAnswers{
				Bind:        "0.0.0.0:8080",
				SupabaseURL: "https://xyz.supabase.co",
				Model:       "llama-3.1-8b-instant",
				Storage:     "sqlite",
				Billing:     true,
				AppURL:      "https://app.example.com",
				ProPriceID:  "price_pro",
				PackPriceID: "price_pack",
				Scheduler:   true,
				AdminToken:  "admin-secret",
			},
			wantModules: []string{
				"auth.supabase", "billing.stripe", "credits.sqlite",
				"gateway.http", "provider.groq", "scheduler.cron",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := renderConfig(tt.answers)
			if err != nil {
				t.Fatalf("renderConfig: %v", err)
			}
			cfg, err := config.Parse(raw)
			if err != nil {
				t.Fatalf("Parse:\n%s\n%v", raw, err)
			}
			if err := config.Validate(cfg); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got := strings.Join(config.Resolve(cfg), ","); got != strings.Join(tt.wantModules, ",") {
				t.Errorf("modules = %s, want %v", got, tt.wantModules)
			}

			ids, err := app.Check(cfg, t.TempDir())
			if err != nil {
				t.Fatalf("Check:\n%s\n%v", raw, err)
			}
			if len(ids) != len(tt.wantModules) {
				t.Errorf("Check loaded %v", ids)
			}
		})
	}
}

func TestConfigCheckCmd(t *testing.T) {
	setCredentialEnv(t)

	raw, err := renderConfig(defaultAnswersWith(func(a *initAnswers) {
		a.SupabaseURL = "https://xyz.supabase.co"
	}))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "substackulous.yaml")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "", "config", "check", path, "--data-dir", dir)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK") || !strings.Contains(out, "credits.sqlite") {
		t.Errorf("output = %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: \"1\"\nmodules:\n  gateway.http: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := execute(t, "", "config", "check", bad); err == nil {
		t.Error("expected error for config without provider and auth")
	}
}

func TestInitCmd_RefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "existing.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err := execute(t, "", "init", "--output", path)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
}

func defaultAnswersWith(mod func(*initAnswers)) initAnswers {
	a := defaultAnswers()
	mod(&a)
	return a
}

func TestValidateHTTPURL(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"https://xyz.supabase.co", "http://localhost:54321"} {
		if err := validateHTTPURL(ok); err != nil {
			t.Errorf("validateHTTPURL(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "xyz.supabase.co", "ftp://host", "https://"} {
		if err := validateHTTPURL(bad); err == nil {
			t.Errorf("validateHTTPURL(%q) expected error", bad)
		}
	}
	if err := required("price ID")("  "); err == nil {
		t.Error("required should reject blank input")
	}
}
