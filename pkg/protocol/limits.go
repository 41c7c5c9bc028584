package protocol

const (
	// MaxMessageSize is the largest inbound frame DecodeMessage accepts.
	// Endpoints should also apply it as the connection read limit.
	MaxMessageSize = 64 * 1024

	// SessionKeySeparator joins sessionId and sessionIdUuid.
	SessionKeySeparator = "_"
)
