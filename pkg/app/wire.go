package app

import (
	"log/slog"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/internal/security"
)

// Service names shared between the application and its modules.
const (
	serviceCredits       = "credits.store"
	serviceSubscriptions = "billing.subscriptions"
	serviceEvents        = "billing.events"
	serviceHistory       = "history.store"
	serviceProvider      = "billing.provider"
	serviceCatalog       = "billing.catalog"
	serviceBilling       = "billing.service"
	serviceProcessor     = "billing.processor"
	serviceAudit         = "security.audit"
	serviceRedactor      = "security.redactor"
	serviceVersion       = "app.version"
)

// registerDefaults publishes in-memory stores. A storage module loaded
// afterwards (credits.sqlite) replaces them with durable ones.
func registerDefaults(appCtx *core.AppContext) {
	billingStore := billing.NewMemoryStore()
	appCtx.RegisterService(serviceCredits, credit.Store(credit.NewMemoryStore()))
	appCtx.RegisterService(serviceSubscriptions, billing.SubscriptionStore(billingStore))
	appCtx.RegisterService(serviceEvents, billing.EventLog(billingStore))
	appCtx.RegisterService(serviceHistory, history.Store(history.NewMemoryStore()))
}

// registerSecurity publishes the process-wide security services. The rate
// limiter is left to the gateway, which sizes it from its own section.
func registerSecurity(appCtx *core.AppContext, audit *security.AuditLogger, redactor *security.Redactor) {
	appCtx.RegisterService(serviceAudit, audit)
	appCtx.RegisterService(serviceRedactor, redactor)
}

// wireBilling builds the billing processor and service from the services
// published by the loaded modules. Must be called after LoadModules and
// before Start. Without a billing provider module it does nothing and the
// gateway serves billing endpoints as unavailable.
func wireBilling(appCtx *core.AppContext, logger *slog.Logger) bool {
	provider, ok := core.ServiceAs[billing.Provider](appCtx, serviceProvider)
	if !ok {
		logger.Info("billing: no provider module, billing disabled")
		return false
	}
	catalog, _ := core.ServiceAs[billing.Catalog](appCtx, serviceCatalog)
	credits, _ := core.ServiceAs[credit.Store](appCtx, serviceCredits)
	subs, _ := core.ServiceAs[billing.SubscriptionStore](appCtx, serviceSubscriptions)
	events, _ := core.ServiceAs[billing.EventLog](appCtx, serviceEvents)

	appCtx.RegisterService(serviceProcessor, &billing.Processor{
		Catalog:       catalog,
		Credits:       credits,
		Subscriptions: subs,
		Events:        events,
		Logger:        logger.With("component", "billing"),
	})
	appCtx.RegisterService(serviceBilling, &billing.Service{
		Provider:      provider,
		Catalog:       catalog,
		Subscriptions: subs,
	})
	logger.Info("billing: wired", "plans", len(catalog))
	return true
}
