package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

// recordingSpan wraps a no-op span and records status and errors.
type recordingSpan struct {
	trace.Span
	name   string
	status codes.Code
	errs   []error
	attrs  []attribute.KeyValue
}

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	s.status = code
}

type recordingTracer struct {
	trace.Tracer
	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	_, inner := t.Tracer.Start(ctx, name, opts...)
	span := &recordingSpan{Span: inner, name: name, attrs: cfg.Attributes()}

	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

type recordingProvider struct {
	trace.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func newRecordingProvider() *recordingProvider {
	np := noop.NewTracerProvider()
	return &recordingProvider{
		TracerProvider: np,
		tracer:         &recordingTracer{Tracer: np.Tracer("test")},
	}
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key && kv.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestOpenTelemetryMiddleware_SpanReachesHandler(t *testing.T) {
	tp := newRecordingProvider()
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithIncludeSessionKey(true),
		WithAttributeExtractor(func(*server.Dispatch) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)
	d := newDispatch(t, "ping")

	var seen trace.Span
	err := mw.Handle(context.Background(), d, func(ctx context.Context, _ *server.Dispatch) error {
		seen = SpanFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tp.tracer.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(tp.tracer.spans))
	}
	span := tp.tracer.spans[0]
	if seen != trace.Span(span) {
		t.Error("handler did not receive the dispatch span")
	}
	if span.name != "webui.message" {
		t.Errorf("span name = %q, want %q", span.name, "webui.message")
	}
	if span.status != codes.Ok {
		t.Errorf("status = %v, want Ok", span.status)
	}
	for key, value := range map[string]string{
		"webui.component":    "app.Dashboard",
		"webui.message_type": "message",
		"webui.session_key":  "abc_u1",
		"test.attr":          "ok",
	} {
		if !hasAttr(span.attrs, key, value) {
			t.Errorf("missing attribute %s=%s", key, value)
		}
	}
}

func TestOpenTelemetryMiddleware_RecordsError(t *testing.T) {
	tp := newRecordingProvider()
	mw := OpenTelemetry(WithTracerProvider(tp))
	boom := errors.New("boom")

	err := mw.Handle(context.Background(), newDispatch(t, "ping"), func(context.Context, *server.Dispatch) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Handle() error = %v, want %v", err, boom)
	}

	span := tp.tracer.spans[0]
	if span.status != codes.Error {
		t.Errorf("status = %v, want Error", span.status)
	}
	if len(span.errs) != 1 || !errors.Is(span.errs[0], boom) {
		t.Errorf("recorded errors = %v, want [boom]", span.errs)
	}
}

func TestOpenTelemetryMiddleware_Filter(t *testing.T) {
	tp := newRecordingProvider()
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithMessageFilter(func(d *server.Dispatch) bool { return d.Message.Type != "ping" }),
	)

	called := false
	_ = mw.Handle(context.Background(), newDispatch(t, "ping"), func(context.Context, *server.Dispatch) error {
		called = true
		return nil
	})
	if !called {
		t.Fatal("filtered message should still reach the handler")
	}
	if len(tp.tracer.spans) != 0 {
		t.Errorf("spans = %d, want 0 for filtered message", len(tp.tracer.spans))
	}
}

func TestTraceHTTP(t *testing.T) {
	tp := newRecordingProvider()
	handler := TraceHTTP(WithTracerProvider(tp))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SpanFromContext(r.Context()) == nil {
			t.Error("expected span on request context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dash/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(tp.tracer.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(tp.tracer.spans))
	}
	if !hasAttr(tp.tracer.spans[0].attrs, "http.target", "/dash/") {
		t.Error("missing http.target attribute")
	}
}
