package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flemzord/substackulous/internal/assistant"
	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/flemzord/substackulous/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// ModuleID is the identifier of the gateway module.
const ModuleID core.ModuleID = "gateway.http"

// Services resolved from the registry at Start.
const (
	serviceProvider      = "provider.llm"
	serviceAuth          = "auth.provider"
	serviceCredits       = "credits.store"
	serviceHistory       = "history.store"
	serviceBilling       = "billing.service"
	serviceProcessor     = "billing.processor"
	serviceStripeWebhook = "billing.webhook.stripe"
	serviceAudit         = "security.audit"
	serviceLimiter       = "security.ratelimiter"
	serviceVersion       = "app.version"
)

// Services registered by the gateway.
const (
	MetricsService  = "gateway.metrics"
	WebhookService  = "gateway.webhooks"
	ObserverService = "assistant.observer"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	metrics    *Metrics
	dispatcher *WebhookDispatcher
	tracer     trace.Tracer
	startedAt  time.Time
	version    string

	// Resolved at Start from the service registry.
	provider  provider.Provider
	auth      auth.Provider
	credits   credit.Store
	billing   *billing.Service
	audit     *security.AuditLogger
	limiter   *security.RateLimiter
	assistant atomic.Pointer[assistant.Service]
	redirects atomic.Pointer[security.RedirectFilter]
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.dispatcher = NewWebhookDispatcher(g.logger, g.metrics)
	g.dispatcher.maxBody = g.config.MaxBodyBytes
	g.tracer = otel.Tracer("github.com/flemzord/substackulous/internal/gateway")
	g.redirects.Store(security.NewRedirectFilter(g.config.Redirects))

	ctx.RegisterService(MetricsService, g.metrics)
	ctx.RegisterService(WebhookService, g.dispatcher)
	ctx.RegisterService(ObserverService, assistant.Observer(g.metrics))
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves its collaborators from the
// service registry and starts listening. The model provider, the auth
// provider and a credit store are required; billing is optional.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}
	svc, err := g.newAssistant(g.config)
	if err != nil {
		return err
	}
	g.assistant.Store(svc)
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

func (g *Gateway) resolve() error {
	var missing []error
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, fmt.Errorf("gateway: service %q is not registered", name))
		}
	}

	var ok bool
	g.provider, ok = core.ServiceAs[provider.Provider](g.appCtx, serviceProvider)
	need(serviceProvider, ok)
	g.auth, ok = core.ServiceAs[auth.Provider](g.appCtx, serviceAuth)
	need(serviceAuth, ok)
	g.credits, ok = core.ServiceAs[credit.Store](g.appCtx, serviceCredits)
	need(serviceCredits, ok)
	if err := errors.Join(missing...); err != nil {
		return err
	}

	g.billing, _ = core.ServiceAs[*billing.Service](g.appCtx, serviceBilling)
	g.audit, _ = core.ServiceAs[*security.AuditLogger](g.appCtx, serviceAudit)
	g.version, _ = core.ServiceAs[string](g.appCtx, serviceVersion)
	if g.version == "" {
		g.version = "dev"
	}
	if g.limiter, ok = core.ServiceAs[*security.RateLimiter](g.appCtx, serviceLimiter); !ok {
		g.limiter = security.NewRateLimiter(g.config.RateLimit)
	}

	parser, hasParser := core.ServiceAs[billing.WebhookParser](g.appCtx, serviceStripeWebhook)
	processor, hasProcessor := core.ServiceAs[*billing.Processor](g.appCtx, serviceProcessor)
	if hasParser && hasProcessor {
		g.dispatcher.Register("stripe", &BillingWebhook{Parser: parser, Processor: processor, Audit: g.audit}, g.config.Webhooks["stripe"].Secret)
	}
	if g.billing == nil {
		g.logger.Info("billing not configured, checkout endpoints disabled")
	}
	return nil
}

func (g *Gateway) newAssistant(cfg Config) (*assistant.Service, error) {
	opts := []assistant.Option{
		assistant.WithLogger(g.logger),
		assistant.WithCosts(cfg.Costs),
		assistant.WithObserver(g.metrics),
	}
	if cfg.Chat.MaxHistoryTokens > 0 {
		opts = append(opts, assistant.WithMaxHistoryTokens(cfg.Chat.MaxHistoryTokens))
	}
	if cfg.Chat.PromptsPath != "" {
		prompts, err := assistant.LoadPrompts(cfg.Chat.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
		opts = append(opts, assistant.WithPrompts(prompts))
	}
	if cfg.Chat.Conversations {
		store, ok := core.ServiceAs[history.Store](g.appCtx, serviceHistory)
		if !ok {
			return nil, fmt.Errorf("gateway: chat.conversations requires service %q", serviceHistory)
		}
		opts = append(opts, assistant.WithConversations(store))
	}
	return assistant.New(g.provider, g.credits, opts...)
}

// Reload implements core.Reloader. Chat settings, prices, prompts and
// redirect domains apply to the next request; listener settings need a
// restart.
func (g *Gateway) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(ModuleID)
	if !ok {
		return nil
	}
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.Bind != g.config.Bind {
		g.logger.Warn("gateway bind change requires a restart", "current", g.config.Bind, "configured", cfg.Bind)
	}

	svc, err := g.newAssistant(cfg)
	if err != nil {
		return err
	}
	g.assistant.Store(svc)
	g.redirects.Store(security.NewRedirectFilter(cfg.Redirects))
	g.logger.Info("gateway reloaded", "history_budget", svc.Budget())
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) svc() *assistant.Service { return g.assistant.Load() }

func (g *Gateway) redirectFilter() *security.RedirectFilter { return g.redirects.Load() }
