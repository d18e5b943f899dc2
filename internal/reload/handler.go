package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/substackulous/internal/config"
	"github.com/flemzord/substackulous/internal/core"
)

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app      *core.App
	logger   *slog.Logger
	required []string

	// OnConfig runs after modules reloaded, e.g. to refresh the log
	// redactor with the new secrets.
	OnConfig func(*config.Config)
}

// NewHandler creates a reload handler. Reloaded configs must keep a module
// in every required namespace.
func NewHandler(app *core.App, logger *slog.Logger, required ...string) *Handler {
	return &Handler{
		app:      app,
		logger:   logger,
		required: required,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := config.RequireNamespaces(cfg, h.required...); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg)
}

// HandleReloadFromConfig reloads modules from a pre-loaded config. The
// caller must have validated it.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg)
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	// Derived from the root context so reloaded modules still see the
	// services registered at startup.
	appCtx := h.app.Context().WithModuleConfigs(cfg.Modules)

	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}
	if h.OnConfig != nil {
		h.OnConfig(cfg)
	}

	h.logger.Info("configuration reloaded")
	return nil
}
