// Package app provides the entry point shared by the substackulous CLI and
// its system service wrapper.
package app

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/substackulous/internal/config"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/reload"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/flemzord/substackulous/internal/telemetry"
)

// RequiredNamespaces must each have a configured module.
var RequiredNamespaces = []string{"gateway", "provider", "auth"}

const telemetryFlushTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// Ready is closed once every module has started.
	Ready chan<- struct{}
}

// LoadConfig resolves, loads and validates the configuration.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	if err := config.RequireNamespaces(cfg, RequiredNamespaces...); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Run loads configuration, starts all modules, and blocks until ctx is done
// or a shutdown signal is received. SIGHUP and file-change events trigger a
// live configuration reload for modules that implement core.Reloader.
func Run(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	redactor := security.NewRedactor()
	redactor.SetLiterals(Secrets(cfg)...)

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(out, cfg.Logging, redactor)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	dataDir := cmp.Or(params.DataDir, cfg.DataDir, DefaultDataDir())
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	auditLogger, closeAudit, err := newAuditLogger(cfg.Security, dataDir, redactor, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	registerDefaults(appCtx)
	registerSecurity(appCtx, auditLogger, redactor)
	appCtx.RegisterService(serviceVersion, cmp.Or(params.Version, "dev"))

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	// Billing is assembled from several modules' services, so it is wired
	// between LoadModules and Start, before the gateway resolves it.
	wireBilling(appCtx, logger)

	handler := reload.NewHandler(application, logger, RequiredNamespaces...)
	handler.OnConfig = func(c *config.Config) {
		redactor.SetLiterals(Secrets(c)...)
	}

	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("substackulous started", "version", params.Version, "config", cfgPath, "data_dir", dataDir)
	if params.Ready != nil {
		close(params.Ready)
	}

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- file watcher ---
	watcher := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath: cfgPath,
		Logger:     logger,
	})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// newAuditLogger writes audit events to the configured file, or to the
// application log when none is set.
func newAuditLogger(sec config.SecurityConfig, dataDir string, redactor *security.Redactor, logger *slog.Logger) (*security.AuditLogger, func(), error) {
	if sec.AuditLog == "" {
		auditLog := logger.With("component", "audit")
		return security.NewAuditLogger(security.AuditLoggerConfig{
			Redactor: redactor,
			OnEvent: func(e security.AuditEvent) {
				auditLog.Info(string(e.Type), "user", e.UserID, "remote", e.Remote, "detail", e.Detail)
			},
		}), func() {}, nil
	}

	f, err := openAuditLog(sec.AuditLog, dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	return security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   f,
		Redactor: redactor,
	}), func() { _ = f.Close() }, nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/substackulous/substackulous.yaml →
// ~/.config/substackulous/substackulous.yaml → ./substackulous.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "substackulous", "substackulous.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "substackulous", "substackulous.yaml"))
	}

	candidates = append(candidates, "substackulous.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `init` writes a new configuration.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "substackulous", "substackulous.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "substackulous.yaml"
	}
	return filepath.Join(home, ".config", "substackulous", "substackulous.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/substackulous if set, otherwise
// ~/.local/share/substackulous.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "substackulous")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "substackulous")
}
