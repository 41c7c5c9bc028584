package webui

import (
	"log/slog"
	"time"

	"github.com/jphp-group-community/wizard-framework/pkg/middleware"
	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

// =============================================================================
// App Configuration
// =============================================================================

// Config configures an App.
type Config struct {
	// Stamp identifies this deployment in asset URLs.
	// Default: a random UUID, so every process start gets fresh URLs.
	Stamp string

	// Logger is the structured logger for the application.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Tracing wraps every HTTP request in an OpenTelemetry span.
	Tracing bool

	// ShutdownTimeout bounds graceful HTTP shutdown in Shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout for the HTTP server.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// =============================================================================
// Module Options
// =============================================================================

// Option configures a UI Module.
type Option func(*UIModule)

// WithLogger sets the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *UIModule) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionConfig sets session store and socket settings.
func WithSessionConfig(cfg *server.SessionConfig) Option {
	return func(m *UIModule) {
		if cfg != nil {
			m.session = cfg.Clone()
		}
	}
}

// WithMetrics records dispatch, store and broadcast metrics.
func WithMetrics(metrics *middleware.Metrics) Option {
	return func(m *UIModule) {
		m.metrics = metrics
	}
}

// WithTracing starts a span for every dispatched message.
func WithTracing(opts ...middleware.OTelOption) Option {
	return func(m *UIModule) {
		m.tracing = true
		m.otel = opts
	}
}

// WithMiddleware appends message dispatch middleware. They run inside the
// metrics and tracing middleware.
func WithMiddleware(mw ...server.Middleware) Option {
	return func(m *UIModule) {
		m.middleware = append(m.middleware, mw...)
	}
}

// WithAssetPrefix sets the URL prefix of the engine assets.
func WithAssetPrefix(prefix string) Option {
	return func(m *UIModule) {
		m.assets.Prefix = prefix
	}
}

// WithScript overrides the packaged engine script.
func WithScript(path string) Option {
	return func(m *UIModule) {
		m.assets.ScriptFile = path
	}
}

// WithStyle overrides the packaged engine stylesheet.
func WithStyle(path string) Option {
	return func(m *UIModule) {
		m.assets.StyleFile = path
	}
}

// WithTempDir sets the directory receiving extracted engine assets.
func WithTempDir(dir string) Option {
	return func(m *UIModule) {
		m.assets.TempDir = dir
	}
}

// WithAssetNoCache serves engine assets with revalidation. Use it when
// override files are edited while the process runs.
func WithAssetNoCache() Option {
	return func(m *UIModule) {
		m.assets.NoCache = true
	}
}

// WithAssetMirror uploads the published assets before routes are mounted.
func WithAssetMirror(mirror AssetMirror) Option {
	return func(m *UIModule) {
		m.mirror = mirror
	}
}
