package protocol

import (
	"bytes"
	"encoding/json"
)

// Reserved message type tags.
const (
	TypeInitialize = "initialize"
	TypeActivate   = "activate"
	TypeClose      = "close"
)

// Routing field names.
const (
	FieldType          = "type"
	FieldSessionID     = "sessionId"
	FieldSessionIDUUID = "sessionIdUuid"
)

// Message is a decoded inbound frame.
// The routing fields are extracted; the remaining fields stay raw until the
// receiving component asks for them.
type Message struct {
	Type          string
	SessionID     string
	SessionIDUUID string

	fields map[string]json.RawMessage
	raw    []byte
}

// SessionKey derives the logical session key from the client-supplied pair.
func SessionKey(sessionID, sessionIDUUID string) string {
	return sessionID + SessionKeySeparator + sessionIDUUID
}

// DecodeMessage parses a text frame into a Message.
// It validates only the routing fields; payload fields are opaque.
func DecodeMessage(data []byte) (*Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Err: err}
	}

	m := &Message{
		fields: fields,
		raw:    append([]byte(nil), data...),
	}

	var err error
	if m.Type, err = requiredString(fields, FieldType, ErrMissingType); err != nil {
		return nil, err
	}
	if m.SessionID, err = requiredString(fields, FieldSessionID, ErrMissingSession); err != nil {
		return nil, err
	}
	if m.SessionIDUUID, err = requiredString(fields, FieldSessionIDUUID, ErrMissingSession); err != nil {
		return nil, err
	}

	return m, nil
}

func requiredString(fields map[string]json.RawMessage, name string, missing error) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", &DecodeError{Field: name, Err: missing}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &DecodeError{Field: name, Err: err}
	}
	if s == "" {
		return "", &DecodeError{Field: name, Err: missing}
	}
	return s, nil
}

// NewMessage builds a Message from its routing fields and a payload.
// Payload keys that collide with routing fields are overwritten.
func NewMessage(typ, sessionID, sessionIDUUID string, payload map[string]any) (*Message, error) {
	body := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		body[k] = v
	}
	body[FieldType] = typ
	body[FieldSessionID] = sessionID
	body[FieldSessionIDUUID] = sessionIDUUID

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(data)
}

// Key returns the SessionKey for this message.
func (m *Message) Key() string {
	return SessionKey(m.SessionID, m.SessionIDUUID)
}

// Has reports whether the frame carried the named field.
func (m *Message) Has(name string) bool {
	_, ok := m.fields[name]
	return ok
}

// Field returns the raw JSON of a field, or nil if absent.
func (m *Message) Field(name string) json.RawMessage {
	return m.fields[name]
}

// String returns a string field. ok is false if the field is absent or not a string.
func (m *Message) String(name string) (string, bool) {
	raw, present := m.fields[name]
	if !present {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Bind unmarshals a single field into v.
func (m *Message) Bind(name string, v any) error {
	raw, ok := m.fields[name]
	if !ok {
		return &DecodeError{Field: name, Err: ErrFieldAbsent}
	}
	return json.Unmarshal(raw, v)
}

// Decode unmarshals the whole frame into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.raw, v)
}

// Raw returns a copy of the original frame bytes.
func (m *Message) Raw() []byte {
	return append([]byte(nil), m.raw...)
}

// Payload returns the non-routing fields.
func (m *Message) Payload() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m.fields))
	for k, v := range m.fields {
		switch k {
		case FieldType, FieldSessionID, FieldSessionIDUUID:
			continue
		}
		out[k] = v
	}
	return out
}
