package protocol

import (
	"encoding/json"
)

// Outbound event names.
const (
	// EventReload asks the client to reload its page.
	EventReload = "ui-reload"

	// EventInitialize acknowledges a session bootstrap.
	EventInitialize = "initialize"
)

// Event is an outbound named notification.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// emptyData is sent when an event carries no payload.
var emptyData = json.RawMessage(`{}`)

// EncodeEvent encodes a named event frame. A nil payload is sent as {}.
func EncodeEvent(name string, data any) ([]byte, error) {
	payload := emptyData
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = raw
	}
	return json.Marshal(&Event{Name: name, Data: payload})
}

// DecodeEvent parses an outbound frame. Used by clients and tests.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if ev.Name == "" {
		return nil, &DecodeError{Field: "event", Err: ErrMissingType}
	}
	return &ev, nil
}

// InitializeAck is the payload echoed back on a successful initialize.
type InitializeAck struct {
	SessionKey string `json:"sessionKey"`
	Component  string `json:"component"`
}
