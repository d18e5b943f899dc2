// Package gateway is the HTTP surface of the service: the authenticated
// product API, its websocket stream, payment webhooks, health and metrics,
// and a small admin area.
package gateway

import (
	"net/http"
	"strconv"

	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/go-chi/chi/v5"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleModules lists the compiled-in modules.
func (g *Gateway) handleModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// grantRequest is the body of POST /admin/users/{id}/credits.
type grantRequest struct {
	Credits int    `json:"credits"`
	Reason  string `json:"reason,omitempty"`
}

// handleGrantCredits lets an operator credit a user, for support cases.
func (g *Gateway) handleGrantCredits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		var req grantRequest
		if err := g.decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Credits <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "credits must be positive"})
			return
		}

		balance, err := g.credits.Grant(r.Context(), userID, req.Credits)
		if err != nil {
			writeError(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:      security.EventCreditGrant,
			UserID:    userID,
			RequestID: RequestIDFrom(r.Context()),
			Remote:    remoteHost(r),
			Detail:    req.Reason,
			Metadata:  map[string]string{"credits": strconv.Itoa(req.Credits)},
		})
		writeJSON(w, http.StatusOK, map[string]int{"balance": balance})
	}
}
