// Package message defines the conversation data contract shared by the chat
// endpoints, the history bounder and the inference providers.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

// Supported roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects unknown roles.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role := Role(s)
	if !role.Valid() {
		return fmt.Errorf("message: unknown role %q", s)
	}
	*r = role
	return nil
}

// Message is one turn of a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// New returns a message stamped with the current time.
func New(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Transcript is an ordered sequence of messages, oldest first.
type Transcript []Message

// Last returns the most recent message, or false for an empty transcript.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// Chronological reports whether timestamps never decrease. Zero timestamps
// are ignored so that clients may omit them.
func (t Transcript) Chronological() bool {
	var prev time.Time
	for _, m := range t {
		if m.Timestamp.IsZero() {
			continue
		}
		if m.Timestamp.Before(prev) {
			return false
		}
		prev = m.Timestamp
	}
	return true
}

// Clone returns a copy of the transcript backed by a new array.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}
