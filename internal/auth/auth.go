// Package auth resolves the caller of a user-facing request. The identity
// provider itself is opaque; this package only defines the lookup contract
// and the HTTP middleware that enforces it.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a token is missing, expired or rejected.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Provider resolves an access token to the user it was issued to.
type Provider interface {
	CurrentUser(ctx context.Context, accessToken string) (User, error)
}

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok && u.ID != ""
}
