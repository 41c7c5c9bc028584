package webui

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jphp-group-community/wizard-framework/internal/errors"
	"github.com/jphp-group-community/wizard-framework/pkg/assets"
	"github.com/jphp-group-community/wizard-framework/pkg/middleware"
	"github.com/jphp-group-community/wizard-framework/pkg/protocol"
	"github.com/jphp-group-community/wizard-framework/pkg/server"
)

// AssetMirror copies published assets to external storage.
type AssetMirror interface {
	Mirror(ctx context.Context, m *assets.Manifest) error
}

// shutdownParallelism bounds concurrent socket teardown in Shutdown.
const shutdownParallelism = 32

// UIModule serves registered UI components. Components are added with AddUI
// before injection; Inject freezes the registry, publishes the engine
// assets and mounts every component's routes.
type UIModule struct {
	registry   *server.Registry
	session    *server.SessionConfig
	logger     *slog.Logger
	metrics    *middleware.Metrics
	tracing    bool
	otel       []middleware.OTelOption
	middleware []server.Middleware
	assets     assets.Config
	mirror     AssetMirror

	mu       sync.Mutex
	injected bool
	store    *server.Store
	router   *server.Router
	manifest *assets.Manifest
	stopReap context.CancelFunc
	reapDone chan struct{}

	shutdown atomic.Bool
}

// NewModule creates a UI module.
func NewModule(opts ...Option) *UIModule {
	m := &UIModule{
		registry: server.NewRegistry(),
		session:  server.DefaultSessionConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "webui")
	return m
}

// AddUI registers a component type under a mount path.
func (m *UIModule) AddUI(typeID, path string, factory server.Factory) error {
	err := m.registry.Add(typeID, path, factory)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, server.ErrRegistryFrozen):
		return errors.New(errors.CodeRegistryFrozen).WithDetailf("cannot add %q", typeID).Wrap(err)
	default:
		return errors.New(errors.CodeInvalidComponent).Wrap(err)
	}
}

// Registry returns the component registry.
func (m *UIModule) Registry() *server.Registry {
	return m.registry
}

// Store returns the session store, or nil before injection.
func (m *UIModule) Store() *server.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Manifest returns the published assets, or nil before injection.
func (m *UIModule) Manifest() *assets.Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifest
}

// Inject wires the module into ctx, which must be a WebContext. Nothing is
// registered if any step fails.
func (m *UIModule) Inject(ctx Context) error {
	wc, ok := ctx.(WebContext)
	if !ok {
		return errors.New(errors.CodeUnsupportedContext).WithDetailf("got %T", ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injected {
		return errors.New(errors.CodeAlreadyInjected)
	}

	manifest, err := m.publish(wc)
	if err != nil {
		return err
	}

	store := server.NewStore(m.registry, m.session, m.logger)
	if m.metrics != nil {
		if err := m.metrics.RegisterStore(store); err != nil {
			return errors.Newf(errors.CategoryConfig, "register session metrics").Wrap(err)
		}
	}

	m.registry.Freeze()
	router := server.NewRouter(store, m.routerOptions()...)

	manifest.Mount(wc.Router())
	router.MountAll(wc.Router(), server.PageAssets{
		Stamp:   manifest.Stamp(),
		Scripts: manifest.URLs(assets.KindScript),
		Styles:  manifest.URLs(assets.KindStyle),
	})

	reapCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Run(reapCtx)
	}()

	m.store = store
	m.router = router
	m.manifest = manifest
	m.stopReap = cancel
	m.reapDone = done
	m.injected = true

	m.logger.Info("ui module injected",
		"components", m.registry.Types(),
		"stamp", manifest.Stamp(),
	)
	return nil
}

func (m *UIModule) publish(wc WebContext) (*assets.Manifest, error) {
	cfg := m.assets
	cfg.Stamp = wc.Stamp()
	cfg.Logger = m.logger

	manifest, err := assets.Publish(cfg)
	if err != nil {
		code := errors.CodeAssetPublish
		if stderrors.Is(err, assets.ErrMissingAsset) && (cfg.ScriptFile != "" || cfg.StyleFile != "") {
			code = errors.CodeAssetOverride
		}
		return nil, errors.New(code).Wrap(err)
	}

	if m.mirror != nil {
		if err := m.mirror.Mirror(context.Background(), manifest); err != nil {
			return nil, errors.New(errors.CodeAssetMirror).Wrap(err)
		}
	}
	return manifest, nil
}

func (m *UIModule) routerOptions() []server.RouterOption {
	var chain []server.Middleware
	if m.metrics != nil {
		chain = append(chain, m.metrics)
	}
	if m.tracing {
		chain = append(chain, middleware.OpenTelemetry(m.otel...))
	}
	chain = append(chain, m.middleware...)

	opts := []server.RouterOption{
		server.WithRouterLogger(m.logger),
		server.WithMiddleware(chain...),
	}
	if m.metrics != nil {
		opts = append(opts, server.WithErrorHook(m.metrics.RecordHandlerError))
	}
	return opts
}

// Redeploy sends ui-reload to every live component of every session, in
// registration order within a session. It returns the number of
// notifications sent.
func (m *UIModule) Redeploy() int {
	store := m.Store()
	if store == nil {
		return 0
	}

	types := m.registry.Types()
	n := 0
	store.ForEach(func(e *server.Entry) bool {
		if e.Socket().IsClosed() {
			return true
		}
		for _, typeID := range types {
			c, ok := e.Component(typeID)
			if !ok || c.State() == server.StateClosed {
				continue
			}
			if err := c.SendMessage(protocol.EventReload, struct{}{}); err != nil {
				m.logger.Warn("reload notification failed",
					"session", e.Key(),
					"component", typeID,
					"error", err,
				)
				continue
			}
			n++
		}
		return true
	})

	m.metrics.RecordNotifications(protocol.EventReload, n)
	m.logger.Info("redeploy", "notified", n)
	return n
}

// Shutdown closes every live socket exactly once and stops idle reaping.
// Later calls return 0.
func (m *UIModule) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	store, stop, done := m.store, m.stopReap, m.reapDone
	m.mu.Unlock()
	if store == nil || !m.shutdown.CompareAndSwap(false, true) {
		return 0
	}

	stop()
	<-done

	var keys []string
	store.ForEach(func(e *server.Entry) bool {
		keys = append(keys, e.Key())
		return true
	})

	var closed atomic.Int64
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(shutdownParallelism)
	for _, key := range keys {
		g.Go(func() error {
			if store.Close(key) {
				closed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(closed.Load())
	m.metrics.RecordShutdowns(n)
	m.logger.Info("ui module shut down", "sockets", n)
	return n
}

// CloseSession tears down one session immediately.
func (m *UIModule) CloseSession(key string) bool {
	store := m.Store()
	if store == nil {
		return false
	}
	return store.Close(key)
}
