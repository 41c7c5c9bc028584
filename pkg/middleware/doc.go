// Package middleware provides observability middleware for the dispatch router.
//
// This package includes:
//   - OpenTelemetry tracing of socket messages and HTTP requests
//   - Prometheus metrics for dispatch, handler failures and sessions
//
// # OpenTelemetry Middleware
//
// OpenTelemetry starts a span per dispatched message with the component type
// and message type as attributes. The span context is handed to the component:
//
//	router := server.NewRouter(store,
//	    server.WithMiddleware(middleware.OpenTelemetry(
//	        middleware.WithTracerName("my-app"),
//	    )),
//	)
//
// Inside a handler:
//
//	func (d *Dashboard) HandleMessage(ctx context.Context, msg *protocol.Message) error {
//	    middleware.SpanFromContext(ctx).SetAttributes(attribute.Int("rows", 42))
//	    req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
//	    ...
//	}
//
// # Prometheus Metrics
//
//	metrics := middleware.Prometheus(middleware.WithRegistry(reg))
//	router := server.NewRouter(store,
//	    server.WithMiddleware(metrics),
//	    server.WithErrorHook(metrics.RecordHandlerError),
//	)
//	_ = metrics.RegisterStore(store)
//
// Then expose the registry with promhttp.
package middleware
