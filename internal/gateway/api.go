package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/flemzord/substackulous/internal/assistant"
	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/flemzord/substackulous/pkg/message"
	"github.com/go-chi/chi/v5"
)

// ChatRequest is the body of POST /api/chat. Either Messages (a client-held
// transcript) or ConversationID plus Message (server-held) is required.
type ChatRequest struct {
	Messages       message.Transcript `json:"messages,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Message        string             `json:"message,omitempty"`
}

// ChatResponse is the answer of POST /api/chat.
type ChatResponse struct {
	Message message.Message `json:"message"`
	Balance *int            `json:"balance,omitempty"`
}

// CheckoutRequest is the body of POST /api/checkout.
type CheckoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// CreditsResponse is the answer of GET /api/credits.
type CreditsResponse struct {
	Balance      int                   `json:"balance"`
	Costs        credit.Costs          `json:"costs"`
	Subscription *billing.Subscription `json:"subscription,omitempty"`
}

func (g *Gateway) decode(r *http.Request, v any) error {
	return security.DecodeJSON(r.Body, g.config.MaxBodyBytes, v)
}

// balance is best-effort; a failure only drops the field.
func (g *Gateway) balance(ctx context.Context, userID string) *int {
	n, err := g.credits.Balance(ctx, userID)
	if err != nil {
		g.logger.Warn("balance lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return &n
}

func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())

		var req ChatRequest
		if err := g.decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		var (
			reply message.Message
			err   error
		)
		if req.ConversationID != "" {
			reply, err = g.svc().ChatConversation(r.Context(), user.ID, req.ConversationID, req.Message)
		} else {
			reply, err = g.svc().Chat(r.Context(), user.ID, req.Messages)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ChatResponse{Message: reply, Balance: g.balance(r.Context(), user.ID)})
	}
}

func (g *Gateway) handleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())
		t, err := g.svc().Conversation(r.Context(), user.ID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if t == nil {
			t = message.Transcript{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": t})
	}
}

func (g *Gateway) handleDeleteConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())
		if err := g.svc().DeleteConversation(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleIllustrations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())

		var req assistant.IllustrateRequest
		if err := g.decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		out, err := g.svc().Illustrate(r.Context(), user.ID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"illustrations": out,
			"balance":       g.balance(r.Context(), user.ID),
		})
	}
}

func (g *Gateway) handleNotes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())

		var req assistant.NotesRequest
		if err := g.decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		out, err := g.svc().GenerateNotes(r.Context(), user.ID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"notes":   out,
			"balance": g.balance(r.Context(), user.ID),
		})
	}
}

func (g *Gateway) handleCredits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())

		n, err := g.credits.Balance(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := CreditsResponse{Balance: n, Costs: g.svc().Costs()}
		if g.billing != nil && g.billing.Subscriptions != nil {
			if sub, err := g.billing.Subscriptions.SubscriptionByUser(r.Context(), user.ID); err == nil {
				resp.Subscription = &sub
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) handlePlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.billing == nil {
			writeJSON(w, http.StatusOK, []billing.Plan{})
			return
		}
		writeJSON(w, http.StatusOK, g.billing.Plans())
	}
}

func (g *Gateway) handleCheckout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.billing == nil {
			writeError(w, r, errBillingDisabled)
			return
		}
		user, _ := auth.UserFromContext(r.Context())

		var req CheckoutRequest
		if err := g.decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		for _, u := range []string{req.SuccessURL, req.CancelURL} {
			if u == "" {
				continue
			}
			if err := g.redirectFilter().Check(u); err != nil {
				writeError(w, r, err)
				return
			}
		}

		// Retries of the same client request must not open a second session.
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			key = RequestIDFrom(r.Context())
		}
		ctx := billing.WithIdempotencyKey(r.Context(), user.ID+":"+key)

		sess, err := g.billing.Checkout(ctx, billing.CheckoutParams{
			UserID:     user.ID,
			Email:      user.Email,
			PlanID:     req.Plan,
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:      security.EventCheckout,
			UserID:    user.ID,
			RequestID: RequestIDFrom(r.Context()),
			Detail:    req.Plan,
			Metadata:  map[string]string{"session_id": sess.ID},
		})
		writeJSON(w, http.StatusOK, sess)
	}
}

func (g *Gateway) handleCancelSubscription() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.billing == nil {
			writeError(w, r, errBillingDisabled)
			return
		}
		user, _ := auth.UserFromContext(r.Context())

		if err := g.billing.Cancel(r.Context(), user.ID); err != nil {
			writeError(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:      security.EventSubscriptionCancel,
			UserID:    user.ID,
			RequestID: RequestIDFrom(r.Context()),
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
	}
}
