package server

import (
	"net/http"
	"net/url"
	"time"
)

// SessionConfig holds configuration for sessions and their sockets.
type SessionConfig struct {
	// Timeouts

	// WriteTimeout bounds each write to a physical connection.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ResumeWindow is how long a session whose socket has no attached
	// connection stays resumable. Zero retains sessions until shutdown.
	// Default: 5 minutes.
	ResumeWindow time.Duration

	// ReapInterval is how often detached sessions are checked against
	// ResumeWindow.
	// Default: 30 seconds.
	ReapInterval time.Duration

	// Limits

	// MaxMessageSize is the read limit applied to each connection.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxPendingFrames bounds frames buffered while a session has no
	// attached connection. The oldest frame is dropped on overflow.
	// Default: 64.
	MaxPendingFrames int

	// Shards is the number of session table shards, rounded up to a power of two.
	// Default: 32.
	Shards int

	// WebSocket

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin validates the upgrade request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		WriteTimeout:     10 * time.Second,
		ResumeWindow:     5 * time.Minute,
		ReapInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		MaxPendingFrames: 64,
		Shards:           32,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		CheckOrigin:      SameOriginCheck,
	}
}

// SameOriginCheck accepts upgrade requests without an Origin header or whose
// Origin host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return originURL.Host == r.Host
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults fills unset fields from DefaultSessionConfig.
// ResumeWindow is left as-is: zero is a meaningful setting.
func (c *SessionConfig) withDefaults() *SessionConfig {
	defaults := DefaultSessionConfig()
	if c == nil {
		return defaults
	}
	out := c.Clone()
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.ReapInterval == 0 {
		out.ReapInterval = defaults.ReapInterval
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = defaults.MaxMessageSize
	}
	if out.MaxPendingFrames == 0 {
		out.MaxPendingFrames = defaults.MaxPendingFrames
	}
	if out.Shards <= 0 {
		out.Shards = defaults.Shards
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = defaults.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = defaults.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = defaults.CheckOrigin
	}
	return out
}
