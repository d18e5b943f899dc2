package security

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixed },
	})

	logger.Log(AuditEvent{Type: EventCheckout, UserID: "user-1", Detail: "plan pro"})
	logger.Log(AuditEvent{Type: EventSubscriptionCancel, UserID: "user-1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	var got AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventCheckout || got.UserID != "user-1" || !got.Timestamp.Equal(fixed) {
		t.Errorf("event = %+v", got)
	}
}

func TestAuditLogger_RedactsWithoutMutatingCaller(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor()
	r.AddLiteral("cus-secret-id")
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: r})

	meta := map[string]string{"customer": "cus-secret-id"}
	logger.Log(AuditEvent{Type: EventWebhook, Detail: "from cus-secret-id", Metadata: meta})

	if strings.Contains(buf.String(), "cus-secret-id") {
		t.Errorf("secret found in audit output: %s", buf.String())
	}
	if meta["customer"] != "cus-secret-id" {
		t.Error("caller metadata was modified")
	}
}

func TestAuditLogger_OnEventAndNil(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []AuditEvent
	)
	logger := NewAuditLogger(AuditLoggerConfig{OnEvent: func(e AuditEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventAuthFailure})
		}()
	}
	wg.Wait()
	if len(events) != 10 {
		t.Errorf("got %d events, want 10", len(events))
	}

	var nilLogger *AuditLogger
	nilLogger.Log(AuditEvent{Type: EventRateLimit})
}
