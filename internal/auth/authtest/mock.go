// Package authtest provides test helpers for the auth package.
package authtest

import (
	"context"

	"github.com/flemzord/substackulous/internal/auth"
)

// StaticProvider resolves tokens from a fixed map.
type StaticProvider struct {
	Users map[string]auth.User
	Err   error
}

// NewStaticProvider returns a provider knowing a single token.
func NewStaticProvider(token string, u auth.User) *StaticProvider {
	return &StaticProvider{Users: map[string]auth.User{token: u}}
}

// CurrentUser implements auth.Provider.
func (p *StaticProvider) CurrentUser(_ context.Context, token string) (auth.User, error) {
	if p.Err != nil {
		return auth.User{}, p.Err
	}
	u, ok := p.Users[token]
	if !ok {
		return auth.User{}, auth.ErrUnauthenticated
	}
	return u, nil
}

var _ auth.Provider = (*StaticProvider)(nil)
