package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/substackulous/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initAnswers are the wizard's choices. Credentials are not asked for: the
// modules read them from GROQ_API_KEY, SUPABASE_ANON_KEY, STRIPE_SECRET_KEY
// and STRIPE_WEBHOOK_SECRET.
type initAnswers struct {
	Bind        string
	SupabaseURL string
	Model       string
	Storage     string // "sqlite" or "memory"
	Billing     bool
	AppURL      string
	ProPriceID  string
	PackPriceID string
	Scheduler   bool
	AdminToken  string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Bind:    "127.0.0.1:8080",
		Model:   "llama-3.3-70b-versatile",
		Storage: "sqlite",
	}
}

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = app.DefaultConfigPath()
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := defaultAnswers()
			if err := askInit(&answers); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
				return err
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(output, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nRun `substackulous config check %s` once the API keys are exported.\n", output, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the configuration")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP listen address").
				Value(&a.Bind).
				Validate(func(s string) error {
					_, err := net.ResolveTCPAddr("tcp", s)
					return err
				}),
			huh.NewInput().
				Title("Supabase project URL").
				Placeholder("https://xyz.supabase.co").
				Value(&a.SupabaseURL).
				Validate(validateHTTPURL),
			huh.NewInput().
				Title("Groq model").
				Value(&a.Model),
			huh.NewSelect[string]().
				Title("Storage").
				Options(
					huh.NewOption("SQLite (persistent)", "sqlite"),
					huh.NewOption("In memory (development)", "memory"),
				).
				Value(&a.Storage),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable Stripe billing?").
				Value(&a.Billing),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Public app URL (checkout redirects)").
				Placeholder("https://app.example.com").
				Value(&a.AppURL).
				Validate(validateHTTPURL),
			huh.NewInput().
				Title("Stripe price ID of the monthly plan").
				Value(&a.ProPriceID).
				Validate(required("price ID")),
			huh.NewInput().
				Title("Stripe price ID of the one-off credit pack (optional)").
				Value(&a.PackPriceID),
			huh.NewConfirm().
				Title("Refill subscriber credits monthly?").
				Value(&a.Scheduler),
		).WithHideFunc(func() bool { return !a.Billing }),
		huh.NewGroup(
			huh.NewInput().
				Title("Admin bearer token for /status and /mcp (empty disables them)").
				EchoMode(huh.EchoModePassword).
				Value(&a.AdminToken),
		),
	)
	return form.Run()
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http(s) URL")
	}
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

type (
	initFile struct {
		Version string         `yaml:"version"`
		Logging initLogging    `yaml:"logging"`
		Modules map[string]any `yaml:"modules"`
	}
	initLogging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	initGateway struct {
		Bind  string         `yaml:"bind"`
		Auth  *initAdminAuth `yaml:"auth,omitempty"`
		MCP   bool           `yaml:"mcp,omitempty"`
		Chat  initChat       `yaml:"chat"`
		Costs map[string]int `yaml:"costs"`
	}
	initAdminAuth struct {
		BearerToken string `yaml:"bearer_token"`
	}
	initChat struct {
		Conversations bool `yaml:"conversations"`
	}
	initPlan struct {
		ID      string `yaml:"id"`
		PriceID string `yaml:"price_id"`
		Credits int    `yaml:"credits"`
		Mode    string `yaml:"mode"`
	}
)

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) ([]byte, error) {
	gw := initGateway{
		Bind:  a.Bind,
		Chat:  initChat{Conversations: a.Storage == "sqlite"},
		Costs: map[string]int{"chat": 1, "illustration": 3, "notes": 2},
	}
	if a.AdminToken != "" {
		gw.Auth = &initAdminAuth{BearerToken: a.AdminToken}
		gw.MCP = true
	}

	modules := map[string]any{
		"gateway.http":  gw,
		"provider.groq": map[string]string{"model": a.Model},
		"auth.supabase": map[string]string{"url": strings.TrimRight(a.SupabaseURL, "/")},
	}
	if a.Storage == "sqlite" {
		modules["credits.sqlite"] = map[string]int{"signup_credits": 10}
	}
	if a.Billing {
		plans := []initPlan{{ID: "pro", PriceID: a.ProPriceID, Credits: 500, Mode: "subscription"}}
		if a.PackPriceID != "" {
			plans = append(plans, initPlan{ID: "pack", PriceID: a.PackPriceID, Credits: 100, Mode: "payment"})
		}
		base := strings.TrimRight(a.AppURL, "/")
		modules["billing.stripe"] = map[string]any{
			"success_url": base + "/billing/success",
			"cancel_url":  base + "/billing/cancel",
			"plans":       plans,
		}
		if a.Scheduler {
			modules["scheduler.cron"] = map[string]string{"timezone": "UTC"}
		}
	}

	return yaml.Marshal(initFile{
		Version: "1",
		Logging: initLogging{Level: "info", Format: "text"},
		Modules: modules,
	})
}
