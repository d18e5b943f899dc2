package cron_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/cron"
	"github.com/flemzord/substackulous/internal/cron/crontest"
	"github.com/flemzord/substackulous/internal/provider/providertest"
	"gopkg.in/yaml.v3"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreditRefillJob(t *testing.T) {
	t.Parallel()

	r := &crontest.Refiller{Count: 3}
	j := &cron.CreditRefillJob{Refiller: r, Logger: discardLogger()}

	if j.Name() != "credit_refill" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "0 0 1 * *" {
		t.Errorf("schedule = %q, want monthly", j.Schedule())
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Calls() != 1 {
		t.Errorf("refill calls = %d", r.Calls())
	}
}

func TestCreditRefillJob_Errors(t *testing.T) {
	t.Parallel()

	want := errors.New("store down")
	j := &cron.CreditRefillJob{Refiller: &crontest.Refiller{Err: want}, Logger: discardLogger(), ScheduleExpr: "0 6 1 * *"}
	if j.Schedule() != "0 6 1 * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
	if err := j.Run(context.Background()); !errors.Is(err, want) {
		t.Errorf("Run = %v, want %v", err, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &crontest.Refiller{}
	j = &cron.CreditRefillJob{Refiller: r, Logger: discardLogger()}
	if err := j.Run(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
	if r.Calls() != 0 {
		t.Error("cancelled run should not refill")
	}
}

func TestProviderProbeJob(t *testing.T) {
	t.Parallel()

	llm := providertest.NewReplying("ok")
	j := &cron.ProviderProbeJob{Checker: llm, Logger: discardLogger()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if llm.HealthCalls != 1 {
		t.Errorf("health calls = %d", llm.HealthCalls)
	}

	llm.HealthCheckFunc = func(context.Context) error { return errors.New("unreachable") }
	if err := j.Run(context.Background()); err == nil {
		t.Error("probe failure should be reported")
	}
}

func TestModule_WiresJobs(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	refiller := &crontest.Refiller{Count: 1}
	appCtx.RegisterService("billing.processor", refiller)
	appCtx.RegisterService("provider.llm", providertest.NewReplying("ok"))

	m := &cron.Module{}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("timezone: UTC\nprobe:\n  schedule: \"*/5 * * * *\"\n"), &node); err != nil {
		t.Fatal(err)
	}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	for _, name := range []string{"credit_refill", "provider_probe"} {
		if _, ok := m.Scheduler().Next(name); !ok {
			t.Errorf("job %s not scheduled", name)
		}
	}
	if err := m.Scheduler().RunNow(context.Background(), "credit_refill"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if refiller.Calls() != 1 {
		t.Errorf("refill calls = %d", refiller.Calls())
	}
}

func TestModule_SkipsMissingServices(t *testing.T) {
	t.Parallel()

	m := &cron.Module{}
	if err := m.Provision(core.NewAppContext(discardLogger(), t.TempDir())); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = m.Stop(context.Background()) }()

	if _, ok := m.Scheduler().Next("credit_refill"); ok {
		t.Error("refill should not be scheduled without billing")
	}
}

func TestModule_RejectsBadTimezone(t *testing.T) {
	t.Parallel()

	m := &cron.Module{}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("timezone: Mars/Olympus"), &node); err != nil {
		t.Fatal(err)
	}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err == nil {
		t.Error("Validate should reject an unknown timezone")
	}
}

func TestModule_RejectsBadSchedule(t *testing.T) {
	t.Parallel()

	m := &cron.Module{}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("refill:\n  schedule: \"every month\"\n"), &node); err != nil {
		t.Fatal(err)
	}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err == nil {
		t.Error("Validate should reject an invalid schedule")
	}
}
