package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/go-chi/chi/v5"
)

// WebhookHandler processes a webhook payload. Returning an error wrapping
// billing.ErrInvalidSignature answers 400 so the sender does not retry;
// any other error answers 500 and the sender retries.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes incoming webhooks to registered handlers.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	logger   *slog.Logger
	metrics  *Metrics
	maxBody  int
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger, metrics *Metrics) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register adds a handler for source. A non-empty secret enables the
// generic X-Signature-256 HMAC check before the handler runs.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// ServeHTTP implements http.Handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		http.Error(w, "unknown webhook source", http.StatusNotFound)
		return
	}

	body, err := security.ReadBody(r.Body, d.maxBody)
	if err != nil {
		d.observe(source, "rejected")
		writeError(w, r, err)
		return
	}

	if entry.secret != "" && !validateHMAC(body, r.Header.Get("X-Signature-256"), entry.secret) {
		d.observe(source, "bad_signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	err = entry.handler.HandleWebhook(r.Context(), source, body, r.Header)
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		d.observe(source, "bad_signature")
		d.logger.Warn("webhook signature rejected", "source", source, "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		d.observe(source, "failed")
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	d.observe(source, "ok")
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (d *WebhookDispatcher) observe(source, outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveWebhook(source, outcome)
	}
}

// validateHMAC checks an HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// BillingWebhook feeds verified provider events into a billing.Processor.
type BillingWebhook struct {
	Parser    billing.WebhookParser
	Processor *billing.Processor
	Audit     *security.AuditLogger
}

// HandleWebhook implements WebhookHandler.
func (b *BillingWebhook) HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error {
	ev, err := b.Parser.ParseWebhook(headers, body)
	if err != nil {
		return err
	}
	if err := b.Processor.Apply(ctx, ev); err != nil {
		return fmt.Errorf("apply %s event %s: %w", source, ev.ID, err)
	}
	b.Audit.Log(security.AuditEvent{
		Type:   security.EventWebhook,
		UserID: ev.UserID,
		Detail: string(ev.Type),
		Metadata: map[string]string{
			"source":   source,
			"event_id": ev.ID,
		},
	})
	return nil
}
