package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "webui").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for message duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "webui",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics collects Prometheus metrics for message dispatch and session
// lifecycle. It implements server.Middleware.
//
// Metrics collected:
//   - webui_messages_total: messages by component, message type and status
//   - webui_message_duration_seconds: dispatch duration by component
//   - webui_handler_errors_total: recovered failures by component and kind
//   - webui_notifications_total: broadcast notifications by event
//   - webui_socket_shutdowns_total: sockets closed by shutdown
//   - webui_sessions / webui_attached_sessions: store gauges (RegisterStore)
//   - webui_sessions_created_total / _removed_total / _reaped_total
type Metrics struct {
	config MetricsConfig

	messagesTotal   *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	handlerErrors   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	socketShutdowns prometheus.Counter
}

// Prometheus creates the metrics middleware.
//
// Example:
//
//	metrics := middleware.Prometheus(middleware.WithNamespace("myapp"))
//	router := server.NewRouter(store,
//	    server.WithMiddleware(metrics),
//	    server.WithErrorHook(metrics.RecordHandlerError),
//	)
//	metrics.RegisterStore(store)
//
//	// Expose metrics endpoint
//	mux.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		config: config,

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_total",
			Help:        "Total number of socket messages dispatched",
			ConstLabels: config.ConstLabels,
		}, []string{"component", "type", "status"}),

		messageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "message_duration_seconds",
			Help:        "Message dispatch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"component"}),

		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_errors_total",
			Help:        "Total number of recovered message handler failures",
			ConstLabels: config.ConstLabels,
		}, []string{"component", "kind"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of lifecycle notifications pushed to components",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),

		socketShutdowns: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "socket_shutdowns_total",
			Help:        "Total number of session sockets closed by shutdown",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Handle times the dispatch and counts it by status.
func (m *Metrics) Handle(ctx context.Context, d *server.Dispatch, next server.HandlerFunc) error {
	start := time.Now()
	err := next(ctx, d)

	m.messageDuration.WithLabelValues(d.TypeID).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	m.messagesTotal.WithLabelValues(d.TypeID, messageTypeLabel(d.Message), status).Inc()
	return err
}

// RecordHandlerError counts a recovered failure. Pass it to server.WithErrorHook.
func (m *Metrics) RecordHandlerError(herr *server.HandlerError) {
	if m == nil || herr == nil {
		return
	}
	m.handlerErrors.WithLabelValues(herr.Component, categorizeError(herr)).Inc()
}

// RecordNotifications counts n notifications of event.
func (m *Metrics) RecordNotifications(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(event).Add(float64(n))
}

// RecordShutdowns counts n sockets closed by shutdown.
func (m *Metrics) RecordShutdowns(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.socketShutdowns.Add(float64(n))
}

// RegisterStore exports the store's session gauges and counters.
func (m *Metrics) RegisterStore(store *server.Store) error {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: m.config.ConstLabels,
		}
	}

	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("sessions", "Number of live sessions")),
			func() float64 { return float64(store.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("attached_sessions", "Number of sessions with a bound connection")),
			func() float64 { return float64(store.Attached()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("sessions_created_total", "Total number of sessions created")),
			func() float64 { return float64(store.Stats().Created) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("sessions_removed_total", "Total number of sessions removed")),
			func() float64 { return float64(store.Stats().Removed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("sessions_reaped_total", "Total number of idle sessions reaped")),
			func() float64 { return float64(store.Stats().Reaped) }),
	}
	for _, c := range collectors {
		if err := m.config.Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// messageTypeLabel bounds label cardinality to the reserved message types.
func messageTypeLabel(msg *protocol.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch msg.Type {
	case protocol.TypeInitialize, protocol.TypeActivate, protocol.TypeClose:
		return msg.Type
	default:
		return "message"
	}
}

// categorizeError returns a low-cardinality category for a handler failure.
func categorizeError(herr *server.HandlerError) string {
	switch {
	case herr.IsPanic():
		return "panic"
	case errors.Is(herr, server.ErrUnknownComponent), errors.Is(herr, server.ErrNilComponent):
		return "component"
	case errors.Is(herr, server.ErrSocketClosed), errors.Is(herr, server.ErrNoConnection):
		return "socket"
	case errors.Is(herr, context.DeadlineExceeded):
		return "timeout"
	case strings.Contains(herr.Error(), "websocket"):
		return "websocket"
	default:
		return "internal"
	}
}
