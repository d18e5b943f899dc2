package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// CookieName is the cookie the web client stores its access token in.
const CookieName = "sb-access-token"

// TokenFromRequest extracts the access token from the Authorization header,
// falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Middleware rejects requests without a valid access token and stores the
// resolved user in the request context. Provider outages answer 503 so
// clients do not discard their session.
func Middleware(p Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := TokenFromRequest(r)
			if tok == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := p.CurrentUser(r.Context(), tok)
			switch {
			case errors.Is(err, ErrUnauthenticated):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				logger.Error("auth provider lookup failed", "error", err, "path", r.URL.Path)
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
