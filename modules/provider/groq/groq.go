// Package groq provides the Groq LLM provider module. Groq serves an
// OpenAI-compatible chat completions API; the module registers itself,
// wrapped in a circuit breaker, as the "provider.llm" service.
package groq

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/provider"
	"gopkg.in/yaml.v3"
)

// ModuleID is the identifier of the Groq module.
const ModuleID core.ModuleID = "provider.groq"

// ServiceName is the service under which the guarded provider is registered.
const ServiceName = "provider.llm"

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is the Groq LLM provider.
type Provider struct {
	mu     sync.RWMutex
	config Config

	client *http.Client
	guard  *provider.Guard
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	cfg.defaults()
	p.config = cfg
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	if p.config.BaseURL == "" {
		p.config.defaults()
	}
	// A global client timeout would kill long SSE streams; per-request
	// contexts handle cancellation.
	p.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: p.config.Timeout,
		},
	}

	p.guard = provider.NewGuard("groq", p, p.config.Breaker)
	ctx.RegisterService(ServiceName, p.guard)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	cfg := p.currentConfig()
	return cfg.validate()
}

// Reload implements core.Reloader. Model, key and limits are swapped in
// place; in-flight requests finish with the previous configuration.
func (p *Provider) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(ModuleID)
	if !ok {
		return nil
	}
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()

	p.logger.Info("provider reloaded", "model", cfg.Model)
	return nil
}

func (p *Provider) currentConfig() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := p.doRequest(ctx, buildRequest(p.currentConfig(), req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(body), nil
}

// Stream implements provider.Provider.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	resp, err := p.doRequest(ctx, buildRequest(p.currentConfig(), req, true))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, handleErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ch := parseSSEStream(ctx, scanner)

	// Close the body when the stream ends, and stop forwarding if the
	// consumer goes away.
	out := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		for chunk := range ch {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// ContextWindowSize implements provider.Provider.
func (p *Provider) ContextWindowSize() int {
	return p.currentConfig().ContextWindow
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.currentConfig().Model
}

// HealthCheck implements provider.HealthChecker by probing /models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := p.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}
	return nil
}

// Guard returns the circuit-breaker wrapper registered as a service.
func (p *Provider) Guard() *provider.Guard {
	return p.guard
}

// Compile-time interface assertions.
var (
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ core.Reloader          = (*Provider)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)
