// Package protocol implements the JSON wire format spoken between the engine
// client and the UI socket endpoint.
//
// Inbound frames are tagged messages. Every message carries three routing
// fields; everything else is payload owned by the component that receives it:
//
//	{"type": "initialize", "sessionId": "abc", "sessionIdUuid": "u1", ...}
//
// The pair (sessionId, sessionIdUuid) identifies a logical session that may
// span several physical connections. SessionKey joins them with "_".
//
// # Message Types
//
//   - initialize: bootstrap the session socket on a fresh connection
//   - activate: mark the component as the active view, no bootstrap
//   - close: explicit teardown of the session
//   - anything else: delivered to the component's message handler
//
// Outbound frames are named events:
//
//	{"event": "ui-reload", "data": {}}
package protocol
