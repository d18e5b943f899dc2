// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"github.com/flemzord/substackulous/internal/security"
)

// NewTestRedactor returns a Redactor with no patterns, so fixtures that
// look like real keys survive in test output. Literals can still be added.
func NewTestRedactor(literals ...string) *security.Redactor {
	r := &security.Redactor{}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// NewTestAuditLogger returns an AuditLogger that sends every event to
// record instead of a writer.
func NewTestAuditLogger(record func(security.AuditEvent)) *security.AuditLogger {
	return security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: record})
}
