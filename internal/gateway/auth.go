package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/substackulous/internal/security"
)

// adminAuth guards admin endpoints with a bearer token or basic auth,
// compared in constant time. Failed attempts count against the remote
// address; once blocked, even valid credentials are refused until the
// window passes.
func adminAuth(cfg AuthConfig, audit *security.AuditLogger, rl *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remote := remoteHost(r)
			if rl != nil && rl.Blocked(security.KindAuthFailure, remote) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			if method, ok := checkAdmin(cfg, r); ok {
				audit.Log(security.AuditEvent{
					Type:      security.EventAuthSuccess,
					RequestID: RequestIDFrom(r.Context()),
					Remote:    remote,
					Detail:    method,
					Metadata:  map[string]string{"path": r.URL.Path},
				})
				next.ServeHTTP(w, r)
				return
			}

			if rl != nil {
				_ = rl.Allow(security.KindAuthFailure, remote)
			}
			audit.Log(security.AuditEvent{
				Type:      security.EventAuthFailure,
				RequestID: RequestIDFrom(r.Context()),
				Remote:    remote,
				Metadata:  map[string]string{"path": r.URL.Path},
			})
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func checkAdmin(cfg AuthConfig, r *http.Request) (string, bool) {
	if cfg.BearerToken != "" {
		if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && constantTimeEqual(tok, cfg.BearerToken) {
			return "bearer", true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		// Evaluate both comparisons to keep timing independent of which failed.
		userOK := constantTimeEqual(user, cfg.BasicUser)
		passOK := constantTimeEqual(pass, cfg.BasicPass)
		if ok && userOK && passOK {
			return "basic", true
		}
	}
	return "", false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
