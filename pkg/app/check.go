package app

import (
	"io"

	"github.com/flemzord/substackulous/internal/config"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/security"
)

// Check provisions and validates every configured module without starting
// any of them. It returns the module IDs in load order.
func Check(cfg *config.Config, dataDir string) ([]string, error) {
	redactor := security.NewRedactor()
	redactor.SetLiterals(Secrets(cfg)...)
	logger, err := NewLogger(io.Discard, cfg.Logging, redactor)
	if err != nil {
		return nil, err
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	registerDefaults(appCtx)
	registerSecurity(appCtx, security.NewAuditLogger(security.AuditLoggerConfig{}), redactor)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}
	defer application.Close()

	wireBilling(appCtx, logger)
	return ids, nil
}
