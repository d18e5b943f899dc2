package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/provider/providertest"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/go-chi/chi/v5"
)

type recordingHandler struct {
	err  error
	body []byte
}

func (h *recordingHandler) HandleWebhook(_ context.Context, _ string, body []byte, _ http.Header) error {
	h.body = body
	return h.err
}

func newDispatcherServer(t *testing.T, d *WebhookDispatcher) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/webhooks/{source}", d.ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body []byte, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookDispatcher(t *testing.T) {
	t.Parallel()

	body := []byte(`{"hello":"world"}`)
	tests := []struct {
		name       string
		source     string
		handlerErr error
		signature  string
		wantCode   int
		wantCalled bool
		outcome    string
	}{
		{"unknown source", "nope", nil, "", http.StatusNotFound, false, ""},
		{"valid signature", "signed", nil, sign(body, "s3cret"), http.StatusOK, true, "ok"},
		{"bad signature", "signed", nil, "sha256=deadbeef", http.StatusUnauthorized, false, "bad_signature"},
		{"unsigned source", "open", nil, "", http.StatusOK, true, "ok"},
		{"provider signature rejected", "open", billing.ErrInvalidSignature, "", http.StatusBadRequest, true, "bad_signature"},
		{"handler failure", "open", errors.New("db down"), "", http.StatusInternalServerError, true, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := NewMetrics()
			d := NewWebhookDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
			d.maxBody = 1024
			h := &recordingHandler{err: tt.handlerErr}
			d.Register("signed", h, "s3cret")
			d.Register("open", h, "")
			srv := newDispatcherServer(t, d)

			header := http.Header{}
			if tt.signature != "" {
				header.Set("X-Signature-256", tt.signature)
			}
			resp := post(t, srv.URL+"/webhooks/"+tt.source, body, header)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if called := h.body != nil; called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.outcome != "" {
				if got := counterValue(t, metrics.webhooks.WithLabelValues(tt.source, tt.outcome)); got != 1 {
					t.Errorf("webhook metric %s/%s = %v", tt.source, tt.outcome, got)
				}
			}
		})
	}
}

func TestWebhookDispatcher_BodyLimit(t *testing.T) {
	t.Parallel()

	d := NewWebhookDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	d.maxBody = 8
	h := &recordingHandler{}
	d.Register("open", h, "")
	srv := newDispatcherServer(t, d)

	resp := post(t, srv.URL+"/webhooks/open", bytes.Repeat([]byte("x"), 64), nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
	if h.body != nil {
		t.Error("handler should not run")
	}
}

func TestBillingWebhook_GrantsCredits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, providertest.NewReplying("ok"))
	event := []byte(`{"ID":"evt_1","Type":"checkout.session.completed","UserID":"u1","SubscriptionID":"sub_1","PlanID":"pro"}`)

	for range 2 {
		resp := f.do(t, http.MethodPost, "/webhooks/stripe", "", string(event))
		expectStatus(t, resp, http.StatusOK)
	}

	if got := f.balance(t); got != 100 {
		t.Errorf("balance = %d, want 100 after a duplicate delivery", got)
	}
	sub, err := f.subs.SubscriptionByUser(context.Background(), testUser)
	if err != nil {
		t.Fatalf("SubscriptionByUser: %v", err)
	}
	if sub.ID != "sub_1" || sub.Status != billing.StatusActive {
		t.Errorf("subscription = %+v", sub)
	}
	if !slices.Contains(f.auditTypes(), security.EventWebhook) {
		t.Errorf("audit = %v", f.auditTypes())
	}
}

func TestBillingWebhook_InvalidSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, providertest.NewReplying("ok"))
	resp := f.do(t, http.MethodPost, "/webhooks/stripe", "", "bad")
	expectStatus(t, resp, http.StatusBadRequest)
	if got := f.balance(t); got != 0 {
		t.Errorf("balance = %d", got)
	}
}
