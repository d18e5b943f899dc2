package stripe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
	"gopkg.in/yaml.v3"
)

const testSecret = "whsec_test"

// sign returns a Stripe-Signature header value for payload stamped at ts.
func sign(payload []byte, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

func newTestModule(t *testing.T, baseURL string) *Module {
	t.Helper()
	m := &Module{
		config: Config{
			BaseURL:          baseURL,
			SecretKey:        "sk_test",
			WebhookSecret:    testSecret,
			WebhookTolerance: 5 * time.Minute,
			SuccessURL:       "https://app.test/billing/success",
			CancelURL:        "https://app.test/billing",
			Timeout:          5 * time.Second,
			Plans: []billing.Plan{
				{ID: "pro", PriceID: "price_pro", Credits: 500},
				{ID: "pack", PriceID: "price_pack", Credits: 50, Mode: billing.ModePayment},
			},
		},
	}
	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	require.NoError(t, m.Provision(appCtx))
	return m
}

func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()

	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "req-42", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = fmt.Fprint(w, `{"id":"cs_123","url":"https://checkout.stripe.com/c/cs_123"}`)
	}))
	defer srv.Close()

	m := newTestModule(t, srv.URL)
	plan, err := m.catalog.Lookup("pro")
	require.NoError(t, err)

	ctx := billing.WithIdempotencyKey(context.Background(), "req-42")
	sess, err := m.CreateCheckoutSession(ctx, billing.CheckoutRequest{UserID: "u1", Email: "w@example.com", Plan: plan})
	require.NoError(t, err)

	assert.Equal(t, billing.CheckoutSession{ID: "cs_123", URL: "https://checkout.stripe.com/c/cs_123"}, sess)
	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "price_pro", form.Get("line_items[0][price]"))
	assert.Equal(t, "u1", form.Get("client_reference_id"))
	assert.Equal(t, "pro", form.Get("metadata[plan_id]"))
	assert.Equal(t, "u1", form.Get("subscription_data[metadata][user_id]"))
	assert.Equal(t, "w@example.com", form.Get("customer_email"))
	assert.Equal(t, "https://app.test/billing/success", form.Get("success_url"))
}

func TestCheckoutParams_PaymentModeHasNoSubscriptionData(t *testing.T) {
	t.Parallel()

	plan := billing.Plan{ID: "pack", PriceID: "price_pack", Credits: 50, Mode: billing.ModePayment}
	params := checkoutParams(billing.CheckoutRequest{UserID: "u1", Plan: plan, SuccessURL: "https://x/ok"}, Config{CancelURL: "https://x/no"})

	assert.Equal(t, "payment", *params.Mode)
	assert.Nil(t, params.SubscriptionData)
	assert.Nil(t, params.CustomerEmail)
	assert.Equal(t, "https://x/ok", *params.SuccessURL)
	assert.Equal(t, "https://x/no", *params.CancelURL)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, "price_pack", *params.LineItems[0].Price)
}

func TestCancelSubscription(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_9", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"id":"sub_9","status":"canceled"}`)
	}))
	defer srv.Close()

	require.NoError(t, newTestModule(t, srv.URL).CancelSubscription(context.Background(), "sub_9"))
}

func TestAPIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not_found", http.StatusNotFound, billing.ErrNotFound},
		{"rate_limited", http.StatusTooManyRequests, provider.ErrRateLimit},
		{"down", http.StatusServiceUnavailable, provider.ErrProviderDown},
		{"bad_key", http.StatusUnauthorized, provider.ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`)
			}))
			defer srv.Close()

			err := newTestModule(t, srv.URL).CancelSubscription(context.Background(), "sub_x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *stripeapi.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "No such subscription", apiErr.Msg)
			assert.Equal(t, tt.status, apiErr.HTTPStatusCode)
		})
	}
}

func TestParseWebhook_Signature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1","type":"invoice.paid","created":1}`)
	now := time.Now()

	tests := []struct {
		name    string
		header  string
		payload []byte
		wantErr bool
	}{
		{"valid", sign(payload, testSecret, now), payload, false},
		{"tampered_payload", sign(payload, testSecret, now), []byte(`{"id":"evt_2"}`), true},
		{"wrong_secret", sign(payload, "other", now), payload, true},
		{"too_old", sign(payload, testSecret, now.Add(-6*time.Minute)), payload, true},
		{"missing_v1", fmt.Sprintf("t=%d", now.Unix()), payload, true},
		{"empty", "", payload, true},
	}
	m := newTestModule(t, "http://unused")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			header := http.Header{}
			header.Set(SignatureHeader, tt.header)
			ev, err := m.ParseWebhook(header, tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, billing.ErrInvalidSignature)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
		})
	}
}

func TestParseWebhook_NoSecret(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1"}`)
	m := newTestModule(t, "http://unused")
	m.config.WebhookSecret = ""

	header := http.Header{}
	header.Set(SignatureHeader, sign(payload, "", time.Now()))
	_, err := m.ParseWebhook(header, payload)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
  "id": "evt_checkout",
  "type": "checkout.session.completed",
  "created": 1777888800,
  "data": {"object": {
    "id": "cs_1",
    "client_reference_id": "u1",
    "customer": "cus_1",
    "subscription": "sub_1",
    "metadata": {"user_id": "u1", "plan_id": "pro"}
  }}
}`)
	header := http.Header{}
	header.Set(SignatureHeader, sign(payload, testSecret, time.Now()))

	ev, err := newTestModule(t, "http://unused").ParseWebhook(header, payload)
	require.NoError(t, err)
	assert.Equal(t, billing.Event{
		ID:             "evt_checkout",
		Type:           billing.EventCheckoutCompleted,
		Created:        time.Unix(1777888800, 0).UTC(),
		UserID:         "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PlanID:         "pro",
	}, ev)
}

func TestParseWebhook_SubscriptionDeleted(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_del","type":"customer.subscription.deleted","created":1,
"data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled",
"metadata":{"user_id":"u1"},"items":{"data":[{"price":{"id":"price_pro"}}]}}}}`)
	header := http.Header{}
	header.Set(SignatureHeader, sign(payload, testSecret, time.Now()))

	ev, err := newTestModule(t, "http://unused").ParseWebhook(header, payload)
	require.NoError(t, err)
	assert.Equal(t, billing.EventSubscriptionDeleted, ev.Type)
	assert.Equal(t, "sub_1", ev.SubscriptionID)
	assert.Equal(t, billing.StatusCanceled, ev.Status)
	assert.Equal(t, "price_pro", ev.PriceID)
	assert.Equal(t, "u1", ev.UserID)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set(SignatureHeader, "t=1,v1=00")
	_, err := newTestModule(t, "http://unused").ParseWebhook(header, []byte(`{}`))
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestProvision_RegistersServices(t *testing.T) {
	t.Parallel()

	m := newTestModule(t, "http://unused")
	appCtx := core.NewAppContext(nil, t.TempDir())
	require.NoError(t, m.Provision(appCtx))

	_, ok := core.ServiceAs[billing.Provider](appCtx, ProviderService)
	assert.True(t, ok)
	cat, ok := core.ServiceAs[billing.Catalog](appCtx, CatalogService)
	require.True(t, ok)
	assert.Len(t, cat, 2)
	_, ok = core.ServiceAs[billing.WebhookParser](appCtx, WebhookService)
	assert.True(t, ok)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("plans: []\n"), &node))
	m := &Module{}
	require.NoError(t, m.Configure(node.Content[0]))

	err := m.Validate()
	require.Error(t, err)
	for _, want := range []string{"secret_key", "webhook_secret", "success_url", "plan"} {
		assert.ErrorContains(t, err, want)
	}
}
