package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/auth/authtest"
	"github.com/flemzord/substackulous/internal/billing"
	"github.com/flemzord/substackulous/internal/billing/billingtest"
	"github.com/flemzord/substackulous/internal/core"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/internal/provider/providertest"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/flemzord/substackulous/internal/security/securitytest"
	"gopkg.in/yaml.v3"
)

const (
	testToken = "tok-u1"
	testUser  = "u1"
	adminKey  = "admin-secret"
)

// fixture is a gateway wired to in-memory collaborators and served by an
// httptest server.
type fixture struct {
	gw       *Gateway
	srv      *httptest.Server
	llm      *providertest.MockProvider
	credits  *credit.MemoryStore
	subs     *billing.MemoryStore
	payments *billingtest.MockProvider

	mu     sync.Mutex
	audits []security.AuditEvent
}

func newFixture(t *testing.T, llm *providertest.MockProvider, opts ...func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		llm:      llm,
		credits:  credit.NewMemoryStore(),
		subs:     billing.NewMemoryStore(),
		payments: &billingtest.MockProvider{},
	}

	cfg := Config{
		Auth:      AuthConfig{BearerToken: adminKey},
		Redirects: security.RedirectConfig{AllowDomains: []string{"app.test"}},
		Chat:      ChatConfig{Conversations: true},
	}
	for _, o := range opts {
		o(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())

	catalog, err := billing.NewCatalog([]billing.Plan{
		{ID: "pro", Name: "Pro", PriceID: "price_pro", Credits: 100},
		{ID: "pack", Name: "Pack", PriceID: "price_pack", Credits: 20, Mode: billing.ModePayment},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	appCtx.RegisterService(serviceProvider, llm)
	appCtx.RegisterService(serviceAuth, auth.Provider(authtest.NewStaticProvider(testToken, auth.User{ID: testUser, Email: "u1@example.com"})))
	appCtx.RegisterService(serviceCredits, credit.Store(f.credits))
	appCtx.RegisterService(serviceHistory, history.Store(history.NewMemoryStore()))
	appCtx.RegisterService(serviceBilling, &billing.Service{
		Provider:      f.payments,
		Catalog:       catalog,
		Subscriptions: f.subs,
		SuccessURL:    "https://app.test/ok",
		CancelURL:     "https://app.test/cancel",
	})
	appCtx.RegisterService(serviceProcessor, &billing.Processor{
		Catalog:       catalog,
		Credits:       f.credits,
		Subscriptions: f.subs,
		Events:        f.subs,
		Logger:        logger,
	})
	appCtx.RegisterService(serviceStripeWebhook, billing.WebhookParser(jsonParser{}))
	appCtx.RegisterService(serviceAudit, securitytest.NewTestAuditLogger(func(ev security.AuditEvent) {
		f.mu.Lock()
		f.audits = append(f.audits, ev)
		f.mu.Unlock()
	}))

	g := &Gateway{config: cfg}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := g.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	svc, err := g.newAssistant(g.config)
	if err != nil {
		t.Fatalf("newAssistant: %v", err)
	}
	g.assistant.Store(svc)

	f.gw = g
	f.srv = httptest.NewServer(g.buildRouter())
	t.Cleanup(f.srv.Close)
	return f
}

// restart serves the gateway from a fresh server, after a test swapped
// one of its collaborators.
func (f *fixture) restart(t *testing.T) {
	t.Helper()
	f.srv.Close()
	f.srv = httptest.NewServer(f.gw.buildRouter())
	t.Cleanup(f.srv.Close)
}

func (f *fixture) fund(t *testing.T, n int) {
	t.Helper()
	if _, err := f.credits.Grant(context.Background(), testUser, n); err != nil {
		t.Fatalf("Grant: %v", err)
	}
}

func (f *fixture) balance(t *testing.T) int {
	t.Helper()
	n, err := f.credits.Balance(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return n
}

func (f *fixture) auditTypes() []security.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]security.EventType, 0, len(f.audits))
	for _, ev := range f.audits {
		out = append(out, ev.Type)
	}
	return out
}

// do sends a request with an optional JSON body and bearer token.
func (f *fixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			rd = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}

// jsonParser decodes billing events from plain JSON, without signatures.
// A payload of "bad" fails verification.
type jsonParser struct{}

func (jsonParser) ParseWebhook(_ http.Header, payload []byte) (billing.Event, error) {
	if string(payload) == "bad" {
		return billing.Event{}, billing.ErrInvalidSignature
	}
	var ev billing.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return billing.Event{}, err
	}
	return ev, nil
}

func mustYAMLNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Content) == 0 {
		t.Fatal("empty YAML document")
	}
	return doc.Content[0]
}
