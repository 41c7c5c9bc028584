package middleware

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

// Default tracer name.
const defaultTracerName = "webui"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "webui").
	TracerName string

	// IncludeSessionKey adds the session key to spans.
	// Session keys identify clients - disabled by default.
	IncludeSessionKey bool

	// Filter determines which messages to trace.
	// If nil, all messages are traced.
	Filter func(d *server.Dispatch) bool

	// AttributeExtractor adds custom attributes for each traced message.
	AttributeExtractor func(d *server.Dispatch) []attribute.KeyValue

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeSessionKey enables including the session key in spans.
func WithIncludeSessionKey(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSessionKey = include
	}
}

// WithMessageFilter sets a filter function for messages.
func WithMessageFilter(filter func(d *server.Dispatch) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(d *server.Dispatch) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

func newOTelConfig(opts []OTelOption) *OTelConfig {
	config := &OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(config)
	}
	if config.TracerProvider != nil {
		config.tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		config.tracer = otel.Tracer(config.TracerName)
	}
	return config
}

// OpenTelemetry creates middleware that traces every dispatched message.
// The span context is passed down to the component, so handlers that make
// outbound calls with ctx continue the trace.
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := newOTelConfig(opts)

	return server.MiddlewareFunc(func(ctx context.Context, d *server.Dispatch, next server.HandlerFunc) error {
		if config.Filter != nil && !config.Filter(d) {
			return next(ctx, d)
		}

		attrs := []attribute.KeyValue{
			attribute.String("webui.component", d.TypeID),
			attribute.String("webui.message_type", messageTypeLabel(d.Message)),
		}
		if config.IncludeSessionKey {
			attrs = append(attrs, attribute.String("webui.session_key", d.SessionKey))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(d)...)
		}

		spanCtx, span := config.tracer.Start(ctx,
			fmt.Sprintf("webui.%s", messageTypeLabel(d.Message)),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(spanCtx, d)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	})
}

// TraceHTTP wraps view and asset handlers with a server span per request.
// It has the chi middleware signature.
func TraceHTTP(opts ...OTelOption) func(http.Handler) http.Handler {
	config := newOTelConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := config.tracer.Start(r.Context(),
				fmt.Sprintf("webui %s", r.Method),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SpanFromContext returns the span of the message being handled.
// Outside a traced dispatch it returns a no-op span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
