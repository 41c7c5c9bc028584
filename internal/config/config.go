package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jphp-group-community/wizard-framework/internal/errors"
	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "webui.toml"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// DefaultMetricsPath is the default Prometheus scrape path.
	DefaultMetricsPath = "/metrics"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the complete webui.toml configuration.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Assets  AssetsConfig
	Mirror  MirrorConfig
	Log     LogConfig

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration

	// Metrics enables the Prometheus endpoint and dispatch metrics.
	Metrics bool

	// MetricsPath is where metrics are served.
	MetricsPath string

	// Tracing enables OpenTelemetry spans for messages and views.
	Tracing bool
}

// SessionConfig mirrors server.SessionConfig with file-friendly types.
type SessionConfig struct {
	ResumeWindow     time.Duration
	ReapInterval     time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	MaxPendingFrames int
	Shards           int
}

// AssetsConfig configures engine asset publication.
type AssetsConfig struct {
	// Stamp overrides the generated deployment stamp.
	Stamp string

	// Prefix is prepended to every asset URL.
	Prefix string

	// Script and Style override the packaged engine files.
	Script string
	Style  string

	// TempDir receives the extracted packaged assets.
	TempDir string

	// Watch redeploys connected sessions when an override file changes.
	Watch bool
}

// MirrorConfig configures the optional S3 asset mirror.
type MirrorConfig struct {
	Bucket    string
	Region    string
	KeyPrefix string
}

// Enabled reports whether a bucket is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is text or json.
	Format string
}

// fileConfig is the on-disk shape; durations are strings like "30s".
type fileConfig struct {
	Server struct {
		Addr            string `toml:"addr"`
		ShutdownTimeout string `toml:"shutdown_timeout"`
		Metrics         bool   `toml:"metrics"`
		MetricsPath     string `toml:"metrics_path"`
		Tracing         bool   `toml:"tracing"`
	} `toml:"server"`

	Session struct {
		ResumeWindow     string `toml:"resume_window"`
		ReapInterval     string `toml:"reap_interval"`
		WriteTimeout     string `toml:"write_timeout"`
		MaxMessageSize   int64  `toml:"max_message_size"`
		MaxPendingFrames int    `toml:"max_pending_frames"`
		Shards           int    `toml:"shards"`
	} `toml:"session"`

	Assets struct {
		Stamp   string `toml:"stamp"`
		Prefix  string `toml:"prefix"`
		Script  string `toml:"script"`
		Style   string `toml:"style"`
		TempDir string `toml:"temp_dir"`
		Watch   bool   `toml:"watch"`
	} `toml:"assets"`

	Mirror struct {
		Bucket    string `toml:"bucket"`
		Region    string `toml:"region"`
		KeyPrefix string `toml:"key_prefix"`
	} `toml:"mirror"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// New creates a new Config with default values.
func New() *Config {
	defaults := server.DefaultSessionConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
			MetricsPath:     DefaultMetricsPath,
		},
		Session: SessionConfig{
			ResumeWindow:     defaults.ResumeWindow,
			ReapInterval:     defaults.ReapInterval,
			WriteTimeout:     defaults.WriteTimeout,
			MaxMessageSize:   defaults.MaxMessageSize,
			MaxPendingFrames: defaults.MaxPendingFrames,
			Shards:           defaults.Shards,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for webui.toml in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from path. Keys absent from the file keep
// their defaults. The result is validated.
func LoadFile(path string) (*Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.New(errors.CodeConfigParse).
				WithDetail("No " + ConfigFileName + " found at " + path).
				WithSuggestion("Create the file or run without --config to use defaults")
		}
		e := errors.New(errors.CodeConfigParse).Wrap(err)
		var perr toml.ParseError
		if stderrors.As(err, &perr) {
			e.WithLocation(path, perr.Position.Line, 0)
		}
		return nil, e
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.CodeConfigValue).
			WithDetail("Unknown keys in " + path + ": " + strings.Join(keys, ", "))
	}

	cfg := New()
	cfg.configPath = path

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"server", "shutdown_timeout"}, raw.Server.ShutdownTimeout, &cfg.Server.ShutdownTimeout},
		{[]string{"session", "resume_window"}, raw.Session.ResumeWindow, &cfg.Session.ResumeWindow},
		{[]string{"session", "reap_interval"}, raw.Session.ReapInterval, &cfg.Session.ReapInterval},
		{[]string{"session", "write_timeout"}, raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return nil, errors.New(errors.CodeConfigValue).
				WithDetailf("%s: %v", strings.Join(d.key, "."), err).
				WithSuggestion(`Durations use Go syntax, e.g. "30s" or "5m"`)
		}
		*d.dst = v
	}

	if meta.IsDefined("server", "addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "metrics") {
		cfg.Server.Metrics = raw.Server.Metrics
	}
	if meta.IsDefined("server", "metrics_path") {
		cfg.Server.MetricsPath = strings.TrimSpace(raw.Server.MetricsPath)
	}
	if meta.IsDefined("server", "tracing") {
		cfg.Server.Tracing = raw.Server.Tracing
	}

	if meta.IsDefined("session", "max_message_size") {
		cfg.Session.MaxMessageSize = raw.Session.MaxMessageSize
	}
	if meta.IsDefined("session", "max_pending_frames") {
		cfg.Session.MaxPendingFrames = raw.Session.MaxPendingFrames
	}
	if meta.IsDefined("session", "shards") {
		cfg.Session.Shards = raw.Session.Shards
	}

	cfg.Assets = AssetsConfig{
		Stamp:   strings.TrimSpace(raw.Assets.Stamp),
		Prefix:  strings.TrimSpace(raw.Assets.Prefix),
		Script:  cfg.resolve(raw.Assets.Script),
		Style:   cfg.resolve(raw.Assets.Style),
		TempDir: cfg.resolve(raw.Assets.TempDir),
		Watch:   raw.Assets.Watch,
	}
	cfg.Mirror = MirrorConfig{
		Bucket:    strings.TrimSpace(raw.Mirror.Bucket),
		Region:    strings.TrimSpace(raw.Mirror.Region),
		KeyPrefix: raw.Mirror.KeyPrefix,
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(raw.Log.Level))
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve makes a relative file path relative to the config file directory.
func (c *Config) resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || c.configPath == "" {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.CodeConfigValue).WithDetailf(format, args...)
	}

	if c.Server.Addr == "" {
		return invalid("server.addr must not be empty")
	}
	if c.Server.ShutdownTimeout < 0 {
		return invalid("server.shutdown_timeout must not be negative")
	}
	if c.Server.Metrics && !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return invalid("server.metrics_path must start with /, got %q", c.Server.MetricsPath)
	}
	if c.Session.ResumeWindow < 0 {
		return invalid("session.resume_window must not be negative")
	}
	if c.Session.ReapInterval < 0 || c.Session.WriteTimeout < 0 {
		return invalid("session durations must not be negative")
	}
	if c.Session.MaxMessageSize < 0 {
		return invalid("session.max_message_size must not be negative")
	}
	if c.Session.MaxPendingFrames < 0 {
		return invalid("session.max_pending_frames must not be negative")
	}
	if c.Session.Shards < 0 {
		return invalid("session.shards must not be negative, got %d", c.Session.Shards)
	}
	if c.Assets.Watch && c.Assets.Script == "" && c.Assets.Style == "" {
		return invalid("assets.watch needs assets.script or assets.style")
	}
	if c.Mirror.Enabled() && c.Mirror.Region == "" {
		return invalid("mirror.region is required when mirror.bucket is set")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SessionConfig converts the session section for the session store.
func (c *Config) SessionConfig() *server.SessionConfig {
	sc := server.DefaultSessionConfig()
	sc.ResumeWindow = c.Session.ResumeWindow
	sc.ReapInterval = c.Session.ReapInterval
	sc.WriteTimeout = c.Session.WriteTimeout
	sc.MaxMessageSize = c.Session.MaxMessageSize
	sc.MaxPendingFrames = c.Session.MaxPendingFrames
	sc.Shards = c.Session.Shards
	return sc
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
