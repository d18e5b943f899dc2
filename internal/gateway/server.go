package gateway

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(instrument(g.logger, g.metrics, g.tracer))
	r.Use(middleware.Recoverer)

	if len(g.config.AllowedOrigins) > 0 {
		r.Use(cors(g.config.AllowedOrigins))
	}

	// Public.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	// Webhooks verify their own signatures.
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// User endpoints, authenticated by the auth provider.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(g.auth, g.logger))
		r.Use(rateLimit(g.limiter, g.audit, security.KindRequest))

		r.Get("/ws/chat", g.handleChatSocket())
		r.Route("/api", func(r chi.Router) {
			r.Post("/chat", g.handleChat())
			r.Get("/conversations/{id}", g.handleGetConversation())
			r.Delete("/conversations/{id}", g.handleDeleteConversation())
			r.Get("/credits", g.handleCredits())
			r.Get("/plans", g.handlePlans())
			r.Post("/checkout", g.handleCheckout())
			r.Post("/subscription/cancel", g.handleCancelSubscription())

			r.Group(func(r chi.Router) {
				r.Use(rateLimit(g.limiter, g.audit, security.KindGeneration))
				r.Post("/illustrations", g.handleIllustrations())
				r.Post("/notes", g.handleNotes())
			})
		})
	})

	// Admin endpoints. Not mounted if no admin auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(adminAuth(g.config.Auth, g.audit, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Get("/admin/modules", g.handleModules())
			r.Post("/admin/users/{id}/credits", g.handleGrantCredits())
			if g.config.MCP {
				r.Handle("/mcp", g.newMCPHandler())
			}
		})
	}

	return r
}

// cors answers preflight requests and sets the allow-origin header when
// the Origin host matches one of patterns (path.Match syntax, the same
// rule the websocket upgrade applies).
func cors(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !originAllowed(origin, patterns) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key, "+RequestIDHeader)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, patterns []string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), host); ok {
			return true
		}
	}
	return false
}
