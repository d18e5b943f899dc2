package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flemzord/substackulous/internal/assistant"
	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/flemzord/substackulous/internal/security"
)

// errorResponse is the JSON body of every error answer.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps an error to a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, credit.ErrInsufficient):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, assistant.ErrInvalidRequest),
		errors.Is(err, security.ErrInvalidJSON),
		errors.Is(err, security.ErrJSONTooDeep),
		errors.Is(err, security.ErrURLBlocked):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, billing.ErrUnknownPlan):
		return http.StatusBadRequest, "unknown_plan"
	case errors.Is(err, billing.ErrNoSubscription):
		return http.StatusNotFound, "no_subscription"
	case errors.Is(err, errBillingDisabled):
		return http.StatusServiceUnavailable, "billing_disabled"
	case errors.Is(err, provider.ErrContextLength):
		return http.StatusBadRequest, "context_length_exceeded"
	case errors.Is(err, provider.ErrRateLimit),
		errors.Is(err, provider.ErrProviderDown),
		errors.Is(err, provider.ErrCircuitOpen),
		errors.Is(err, provider.ErrAuthentication),
		errors.Is(err, provider.ErrNoProvider):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBillingDisabled = errors.New("billing is not configured")

// writeError answers with the classified status. Client errors carry the
// error text; server errors do not.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: code, RequestID: RequestIDFrom(r.Context())}
	if status < http.StatusInternalServerError {
		resp.Message = err.Error()
	} else {
		slog.Default().LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", resp.RequestID),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, resp)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
