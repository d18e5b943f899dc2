// Package stripe provides the Stripe billing module: hosted checkout,
// subscription cancellation and signed webhook parsing.
package stripe

import (
	"log/slog"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/core"
	stripeapi "github.com/stripe/stripe-go/v83"
	"gopkg.in/yaml.v3"
)

// ModuleID is the identifier of the Stripe module.
const ModuleID core.ModuleID = "billing.stripe"

// Services registered by the module.
const (
	ProviderService = "billing.provider"
	CatalogService  = "billing.catalog"
	WebhookService  = "billing.webhook.stripe"
)

func init() {
	core.RegisterModule(&Module{})
}

// Module is the Stripe billing provider.
type Module struct {
	config  Config
	catalog billing.Catalog
	client  *stripeapi.Client
	logger  *slog.Logger
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
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.client = newClient(m.config, m.logger)

	catalog, err := billing.NewCatalog(m.config.Plans)
	if err != nil {
		return err
	}
	m.catalog = catalog

	ctx.RegisterService(ProviderService, billing.Provider(m))
	ctx.RegisterService(CatalogService, catalog)
	ctx.RegisterService(WebhookService, billing.WebhookParser(m))
	m.logger.Info("stripe billing provisioned", "plans", len(catalog))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Compile-time interface assertions.
var (
	_ core.Module           = (*Module)(nil)
	_ core.Configurable     = (*Module)(nil)
	_ core.Provisioner      = (*Module)(nil)
	_ core.Validator        = (*Module)(nil)
	_ billing.Provider      = (*Module)(nil)
	_ billing.WebhookParser = (*Module)(nil)
)
