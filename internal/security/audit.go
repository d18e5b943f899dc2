package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types. Money and access changes are audited; chat content
// never is.
const (
	EventAuthSuccess        EventType = "auth_success"
	EventAuthFailure        EventType = "auth_failure"
	EventCheckout           EventType = "checkout"
	EventSubscriptionCancel EventType = "subscription_cancel"
	EventWebhook            EventType = "webhook"
	EventCreditRefill       EventType = "credit_refill"
	EventCreditGrant        EventType = "credit_grant"
	EventConfigReload       EventType = "config_reload"
	EventRateLimit          EventType = "rate_limit"
)

// AuditEvent is one audit log line.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Remote    string            `json:"remote,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives JSON lines. Nil disables writing.
	Writer io.Writer
	// Redactor scrubs Detail and Metadata values.
	Redactor *Redactor
	// OnEvent observes every event, for tests.
	OnEvent func(AuditEvent)
	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger writes audit events as JSON lines. A nil *AuditLogger
// discards events.
type AuditLogger struct {
	mu       sync.Mutex
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
}

// NewAuditLogger returns an AuditLogger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      cfg.Now,
	}
}

// Log stamps and writes event. The caller's Metadata map is not modified.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now().UTC()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}
