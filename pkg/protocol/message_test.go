package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"initialize","sessionId":"abc","sessionIdUuid":"u1","width":1024}`))
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if msg.Type != TypeInitialize {
		t.Errorf("Type = %q, want %q", msg.Type, TypeInitialize)
	}
	if msg.Key() != "abc_u1" {
		t.Errorf("Key() = %q, want %q", msg.Key(), "abc_u1")
	}
	if !msg.Has("width") {
		t.Error("Has(width) = false, want true")
	}

	var width int
	if err := msg.Bind("width", &width); err != nil {
		t.Fatalf("Bind(width) error = %v", err)
	}
	if width != 1024 {
		t.Errorf("width = %d, want 1024", width)
	}

	payload := msg.Payload()
	if len(payload) != 1 {
		t.Errorf("len(Payload()) = %d, want 1", len(payload))
	}
	if _, ok := payload[FieldType]; ok {
		t.Error("Payload() should not include routing fields")
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
		field string
	}{
		{name: "empty", input: "  ", want: ErrEmptyMessage},
		{name: "missing type", input: `{"sessionId":"a","sessionIdUuid":"b"}`, want: ErrMissingType, field: FieldType},
		{name: "empty type", input: `{"type":"","sessionId":"a","sessionIdUuid":"b"}`, want: ErrMissingType, field: FieldType},
		{name: "missing session", input: `{"type":"ping","sessionIdUuid":"b"}`, want: ErrMissingSession, field: FieldSessionID},
		{name: "missing uuid", input: `{"type":"ping","sessionId":"a"}`, want: ErrMissingSession, field: FieldSessionIDUUID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.input))
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodeMessage() error = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if tt.field != "" && (!errors.As(err, &de) || de.Field != tt.field) {
				t.Errorf("DecodeError.Field = %v, want %q", de, tt.field)
			}
		})
	}
}

func TestDecodeMessageSyntaxError(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":`))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("DecodeMessage() error = %v, want *DecodeError", err)
	}
	if de.Field != "" {
		t.Errorf("Field = %q, want empty for syntax errors", de.Field)
	}
}

func TestDecodeMessageNonStringSession(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"ping","sessionId":42,"sessionIdUuid":"u"}`))
	var de *DecodeError
	if !errors.As(err, &de) || de.Field != FieldSessionID {
		t.Fatalf("DecodeMessage() error = %v, want field error on sessionId", err)
	}
}

func TestDecodeMessageTooLarge(t *testing.T) {
	big := `{"type":"ping","sessionId":"a","sessionIdUuid":"b","pad":"` + strings.Repeat("x", MaxMessageSize) + `"}`
	if _, err := DecodeMessage([]byte(big)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("DecodeMessage() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage("ping", "abc", "u1", map[string]any{"n": 3, "type": "ignored"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.Type != "ping" {
		t.Errorf("Type = %q, want ping", msg.Type)
	}
	if msg.Key() != "abc_u1" {
		t.Errorf("Key() = %q, want abc_u1", msg.Key())
	}

	var body struct {
		N int `json:"n"`
	}
	if err := msg.Decode(&body); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if body.N != 3 {
		t.Errorf("n = %d, want 3", body.N)
	}
}

func TestMessageFieldAccessors(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"say","sessionId":"s","sessionIdUuid":"u","text":"hi","count":2}`))
	if err != nil {
		t.Fatal(err)
	}

	if s, ok := msg.String("text"); !ok || s != "hi" {
		t.Errorf("String(text) = %q, %v; want hi, true", s, ok)
	}
	if _, ok := msg.String("count"); ok {
		t.Error("String(count) ok = true for a number")
	}
	if _, ok := msg.String("missing"); ok {
		t.Error("String(missing) ok = true")
	}
	if msg.Field("missing") != nil {
		t.Error("Field(missing) should be nil")
	}

	var v string
	if err := msg.Bind("missing", &v); !errors.Is(err, ErrFieldAbsent) {
		t.Errorf("Bind(missing) error = %v, want ErrFieldAbsent", err)
	}

	raw := msg.Raw()
	raw[0] = 'X'
	if msg.Raw()[0] != '{' {
		t.Error("Raw() should return a copy")
	}
}

func TestSessionKey(t *testing.T) {
	if got := SessionKey("abc", "u1"); got != "abc_u1" {
		t.Errorf("SessionKey() = %q, want abc_u1", got)
	}
	if SessionKey("a_b", "c") != SessionKey("a_b", "c") {
		t.Error("SessionKey should be deterministic")
	}
}
