package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/flemzord/substackulous/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string           `json:"status"` // "ok" or "degraded"
	Provider *provider.Status `json:"provider,omitempty"`
}

// statusReporter is implemented by provider.Guard.
type statusReporter interface {
	Status() provider.Status
}

// handleHealth answers 200 while the model provider is usable and 503
// while its circuit is open or a probe fails.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.provider == nil {
			resp.Status = "degraded"
		} else {
			if hc, ok := g.provider.(provider.HealthChecker); ok && r.URL.Query().Has("probe") {
				ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
				err := hc.HealthCheck(ctx)
				cancel()
				if err != nil {
					resp.Status = "degraded"
				}
			}
			if sr, ok := g.provider.(statusReporter); ok {
				st := sr.Status()
				resp.Provider = &st
				if !st.Available {
					resp.Status = "degraded"
				}
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
