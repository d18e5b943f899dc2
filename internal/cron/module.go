package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/substackulous/internal/core"
	"gopkg.in/yaml.v3"
)

// ModuleID is the identifier of the scheduler module.
const ModuleID core.ModuleID = "scheduler.cron"

// Services resolved at Start.
const (
	refillService = "billing.processor"
	probeService  = "provider.llm"
)

func init() {
	core.RegisterModule(&Module{})
}

// JobConfig toggles one built-in job.
type JobConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

func (c JobConfig) enabled() bool { return c.Enabled == nil || *c.Enabled }

// Config configures the scheduler module.
type Config struct {
	// Timezone is an IANA name; schedules are evaluated in it. Default: UTC.
	Timezone string    `yaml:"timezone"`
	Refill   JobConfig `yaml:"refill"`
	Probe    JobConfig `yaml:"probe"`
}

// Module wires the built-in jobs to the services they act on.
type Module struct {
	config    Config
	location  *time.Location
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	loc, err := time.LoadLocation(m.config.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler: timezone: %w", err)
	}
	m.location = loc

	var errs []error
	for name, job := range map[string]JobConfig{"refill": m.config.Refill, "probe": m.config.Probe} {
		if job.Schedule == "" {
			continue
		}
		if err := ValidateSchedule(job.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %s.schedule: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Start implements core.Starter. Jobs whose service is missing are skipped
// with a log line: a deployment without billing has nothing to refill.
func (m *Module) Start() error {
	m.scheduler = NewScheduler(m.logger, m.location)

	if m.config.Refill.enabled() {
		if r, ok := core.ServiceAs[Refiller](m.appCtx, refillService); ok {
			if err := m.scheduler.RegisterJob(&CreditRefillJob{
				Refiller:     r,
				Logger:       m.logger,
				ScheduleExpr: m.config.Refill.Schedule,
			}); err != nil {
				return err
			}
		} else {
			m.logger.Info("scheduler: billing not configured, credit refill disabled")
		}
	}

	if m.config.Probe.enabled() {
		if hc, ok := core.ServiceAs[HealthChecker](m.appCtx, probeService); ok {
			if err := m.scheduler.RegisterJob(&ProviderProbeJob{
				Checker:      hc,
				Logger:       m.logger,
				ScheduleExpr: m.config.Probe.Schedule,
			}); err != nil {
				return err
			}
		}
	}

	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Scheduler returns the running scheduler, for tests and the CLI.
func (m *Module) Scheduler() *Scheduler { return m.scheduler }
