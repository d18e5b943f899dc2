package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Model         string           `json:"model"`
	HistoryBudget int              `json:"history_budget"`
	Costs         credit.Costs     `json:"costs"`
	Billing       bool             `json:"billing"`
	Conversations bool             `json:"conversations"`
	Provider      *provider.Status `json:"provider,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
			Model:         g.svc().Model(),
			HistoryBudget: g.svc().Budget(),
			Costs:         g.svc().Costs(),
			Billing:       g.billing != nil,
			Conversations: g.config.Chat.Conversations,
		}
		if sr, ok := g.provider.(statusReporter); ok {
			st := sr.Status()
			resp.Provider = &st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
