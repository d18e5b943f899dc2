package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// Refiller grants the periodic credits of active subscriptions.
// *billing.Processor implements it.
type Refiller interface {
	Refill(ctx context.Context) (int, error)
}

// CreditRefillJob tops up every active subscription with its plan's credits.
type CreditRefillJob struct {
	Refiller     Refiller
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 0 1 * *"
}

// Compile-time interface check.
var _ Job = (*CreditRefillJob)(nil)

// Name implements Job.
func (j *CreditRefillJob) Name() string { return "credit_refill" }

// Schedule implements Job.
func (j *CreditRefillJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 0 1 * *"
}

// Run refills all active subscriptions. Partial failures are reported after
// the remaining subscriptions were processed.
func (j *CreditRefillJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: credit refill cancelled: %w", ctx.Err())
	}
	n, err := j.Refiller.Refill(ctx)
	j.Logger.Info("cron: credits refilled", "subscriptions", n)
	if err != nil {
		return fmt.Errorf("cron: credit refill: %w", err)
	}
	return nil
}

// HealthChecker is the subset of provider.HealthChecker the probe needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderProbeJob periodically probes the model provider. A successful
// probe closes an open circuit, so traffic resumes without waiting for a
// user request to find out.
type ProviderProbeJob struct {
	Checker      HealthChecker
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "* * * * *"
}

// Compile-time interface check.
var _ Job = (*ProviderProbeJob)(nil)

// Name implements Job.
func (j *ProviderProbeJob) Name() string { return "provider_probe" }

// Schedule implements Job.
func (j *ProviderProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run probes the provider once.
func (j *ProviderProbeJob) Run(ctx context.Context) error {
	if err := j.Checker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("cron: provider probe: %w", err)
	}
	return nil
}
