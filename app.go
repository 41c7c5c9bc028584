package webui

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jphp-group-community/wizard-framework/pkg/middleware"
)

// =============================================================================
// App Type
// =============================================================================

// App is the web context modules are injected into. It owns the chi router,
// the deployment stamp and the HTTP server.
//
//	app := webui.New(webui.Config{})
//	app.Use(ui)
//	app.ListenAndServe(":8080")
type App struct {
	config Config
	router *chi.Mux
	stamp  string
	logger *slog.Logger

	mu      sync.Mutex
	modules []Module
	server  *http.Server
}

// New creates an App. Unset fields of cfg take their defaults.
func New(cfg Config) *App {
	defaults := DefaultConfig()
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if cfg.Stamp == "" {
		cfg.Stamp = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Tracing {
		r.Use(middleware.TraceHTTP())
	}

	return &App{
		config: cfg,
		router: r,
		stamp:  cfg.Stamp,
		logger: logger,
	}
}

// =============================================================================
// WebContext Implementation
// =============================================================================

// Router returns the router modules mount their routes on.
func (a *App) Router() chi.Router {
	return a.router
}

// Stamp returns the deployment stamp.
func (a *App) Stamp() string {
	return a.stamp
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Handler returns the App as an http.Handler.
func (a *App) Handler() http.Handler {
	return a
}

// =============================================================================
// Modules
// =============================================================================

// Use injects m into the App. A failed injection leaves the App unchanged.
func (a *App) Use(m Module) error {
	if err := m.Inject(a); err != nil {
		return err
	}
	a.mu.Lock()
	a.modules = append(a.modules, m)
	a.mu.Unlock()
	return nil
}

func (a *App) snapshot() []Module {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Module(nil), a.modules...)
}

// Redeploy asks every module to reload its clients and returns the total
// number of notifications sent.
func (a *App) Redeploy() int {
	n := 0
	for _, m := range a.snapshot() {
		if r, ok := m.(Redeployer); ok {
			n += r.Redeploy()
		}
	}
	return n
}

// Shutdown closes every module's connections, then stops the HTTP server.
// It returns the number of sockets closed.
func (a *App) Shutdown(ctx context.Context) (int, error) {
	n := 0
	for _, m := range a.snapshot() {
		if s, ok := m.(Shutdowner); ok {
			n += s.Shutdown(ctx)
		}
	}

	a.mu.Lock()
	srv := a.server
	a.mu.Unlock()
	if srv == nil {
		return n, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.ShutdownTimeout)
	defer cancel()
	return n, srv.Shutdown(ctx)
}

// =============================================================================
// Serving
// =============================================================================

// ListenAndServe serves the App on addr until Shutdown is called.
// It returns nil after a graceful shutdown.
func (a *App) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.Serve(ln)
}

// Serve serves the App on ln until Shutdown is called.
func (a *App) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           a,
		ReadHeaderTimeout: a.config.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	a.logger.Info("listening", "addr", ln.Addr().String(), "stamp", a.stamp)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
