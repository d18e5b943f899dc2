package message

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Role
		wantErr bool
	}{
		{name: "user", input: `"user"`, want: RoleUser},
		{name: "assistant", input: `"assistant"`, want: RoleAssistant},
		{name: "system", input: `"system"`, want: RoleSystem},
		{name: "tool_rejected", input: `"tool"`, wantErr: true},
		{name: "not_a_string", input: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var r Role
			err := json.Unmarshal([]byte(tt.input), &r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && r != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, r, tt.want)
			}
		})
	}
}

func TestTranscript_Chronological(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ordered := Transcript{
		{Role: RoleUser, Content: "a", Timestamp: base},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c", Timestamp: base.Add(time.Second)},
	}
	if !ordered.Chronological() {
		t.Error("expected ordered transcript to be chronological")
	}

	reversed := Transcript{
		{Role: RoleUser, Content: "a", Timestamp: base.Add(time.Minute)},
		{Role: RoleUser, Content: "b", Timestamp: base},
	}
	if reversed.Chronological() {
		t.Error("expected reversed transcript not to be chronological")
	}
}

func TestTranscript_LastAndClone(t *testing.T) {
	t.Parallel()

	var empty Transcript
	if _, ok := empty.Last(); ok {
		t.Error("Last() on empty transcript should report false")
	}
	if empty.Clone() != nil {
		t.Error("Clone() of nil transcript should be nil")
	}

	tr := Transcript{New(RoleUser, "hello"), New(RoleAssistant, "hi")}
	last, ok := tr.Last()
	if !ok || last.Content != "hi" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}

	cp := tr.Clone()
	cp[0].Content = "changed"
	if tr[0].Content != "hello" {
		t.Error("Clone() must not share the backing array")
	}
}
