// Package supabase provides the Supabase authentication module. It resolves
// access tokens with the GoTrue user endpoint and registers itself as the
// "auth.provider" service.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/provider"
	"gopkg.in/yaml.v3"
)

// ModuleID is the identifier of the Supabase module.
const ModuleID core.ModuleID = "auth.supabase"

// ServiceName is the service the module registers.
const ServiceName = "auth.provider"

func init() {
	core.RegisterModule(&Module{})
}

// Module is the Supabase auth provider.
type Module struct {
	config Config
	client *http.Client
	cache  *tokenCache
	logger *slog.Logger
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
	m.client = &http.Client{Timeout: m.config.Timeout}
	m.cache = newTokenCache(m.config.CacheTTL, m.config.CacheSize)
	ctx.RegisterService(ServiceName, auth.Provider(m))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CurrentUser implements auth.Provider.
func (m *Module) CurrentUser(ctx context.Context, accessToken string) (auth.User, error) {
	if accessToken == "" {
		return auth.User{}, auth.ErrUnauthenticated
	}
	if u, ok := m.cache.get(accessToken); ok {
		return u, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.URL+"/auth/v1/user", nil)
	if err != nil {
		return auth.User{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", m.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return auth.User{}, ctx.Err()
		}
		return auth.User{}, fmt.Errorf("%w: supabase: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return auth.User{}, auth.ErrUnauthenticated
	case resp.StatusCode >= 500:
		return auth.User{}, fmt.Errorf("%w: supabase returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return auth.User{}, fmt.Errorf("supabase: unexpected status %d: %s", resp.StatusCode, body)
	}

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return auth.User{}, fmt.Errorf("decode user: %w", err)
	}
	if ur.ID == "" {
		return auth.User{}, auth.ErrUnauthenticated
	}

	u := auth.User{ID: ur.ID, Email: ur.Email, Role: ur.Role}
	m.cache.put(accessToken, u)
	return u, nil
}

// Compile-time interface assertions.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ auth.Provider     = (*Module)(nil)
)
