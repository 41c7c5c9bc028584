package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	webui "github.com/jphp-group-community/wizard-framework"
	"github.com/jphp-group-community/wizard-framework/internal/config"
	"github.com/jphp-group-community/wizard-framework/internal/demo"
	"github.com/jphp-group-community/wizard-framework/internal/dev"
	"github.com/jphp-group-community/wizard-framework/internal/errors"
	"github.com/jphp-group-community/wizard-framework/pkg/assets"
	"github.com/jphp-group-community/wizard-framework/pkg/middleware"
)

type serveOptions struct {
	configPath string
	addr       string
	logLevel   string
	watch      bool
}

func serveCmd(rep *reporter) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the UI server",
		Long: `Start the UI server with the demo components.

Configuration is read from --config, or from webui.toml in the working
directory when present. Flags override the file.

Examples:
  webui serve
  webui serve --addr=:9000
  webui serve --config=deploy/webui.toml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rep.configure(cfg)
			return runServe(cmd.Context(), cfg, os.Stderr)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to webui.toml")
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload pages when asset overrides change")

	return cmd
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts serveOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case config.Exists("."):
		cfg, err = config.Load(".")
	default:
		cfg = config.New()
	}
	if err != nil {
		return nil, err
	}

	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.watch {
		cfg.Assets.Watch = true
	}
	return cfg, cfg.Validate()
}

// server bundles what runServe drives.
type server struct {
	app      *webui.App
	ui       *webui.UIModule
	registry *prometheus.Registry
	logger   *slog.Logger
}

// buildServer assembles the App and the UI module described by cfg.
// Failures carry an error code; unstructured ones get CodeServe.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	app := webui.New(webui.Config{
		Stamp:           cfg.Assets.Stamp,
		Logger:          logger,
		Tracing:         cfg.Server.Tracing,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	opts := []webui.Option{
		webui.WithLogger(logger),
		webui.WithSessionConfig(cfg.SessionConfig()),
		webui.WithAssetPrefix(cfg.Assets.Prefix),
		webui.WithScript(cfg.Assets.Script),
		webui.WithStyle(cfg.Assets.Style),
		webui.WithTempDir(cfg.Assets.TempDir),
	}
	if cfg.Assets.Watch {
		opts = append(opts, webui.WithAssetNoCache())
	}
	if cfg.Server.Tracing {
		opts = append(opts, webui.WithTracing())
	}

	var registry *prometheus.Registry
	if cfg.Server.Metrics {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, webui.WithMetrics(middleware.Prometheus(middleware.WithRegistry(registry))))
		app.Router().Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if cfg.Mirror.Enabled() {
		client, err := assets.NewS3Client(ctx, cfg.Mirror.Region)
		if err != nil {
			return nil, errors.New(errors.CodeAssetMirror).Wrap(err)
		}
		mirror := assets.NewS3Mirror(client, cfg.Mirror.Bucket, cfg.Mirror.KeyPrefix).WithLogger(logger)
		opts = append(opts, webui.WithAssetMirror(mirror))
	}

	ui := webui.NewModule(opts...)
	if err := demo.Register(ui); err != nil {
		return nil, errors.FromError(err, errors.CodeServe)
	}
	if err := app.Use(ui); err != nil {
		return nil, errors.FromError(err, errors.CodeServe)
	}

	return &server{app: app, ui: ui, registry: registry, logger: logger}, nil
}

// watchFiles returns the asset overrides worth watching.
func watchFiles(cfg *config.Config) []string {
	var files []string
	for _, f := range []string{cfg.Assets.Script, cfg.Assets.Style} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.NewLogger(logOut)

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "code", errors.Code(err), "error", errors.FromError(err, errors.CodeServe).FormatCompact())
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.app.ListenAndServe(cfg.Server.Addr); err != nil {
			return errors.New(errors.CodeServe).WithDetailf("listen on %s", cfg.Server.Addr).Wrap(err)
		}
		return nil
	})

	if files := watchFiles(cfg); cfg.Assets.Watch && len(files) > 0 {
		reloader := dev.NewReloader(files, srv.app, logger)
		g.Go(func() error {
			if err := reloader.Run(ctx); err != nil {
				return errors.New(errors.CodeWatcher).Wrap(err)
			}
			return nil
		})
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	g.Go(func() error {
		return srv.handleSignals(ctx, sigs, stop)
	})

	return g.Wait()
}

// handleSignals redeploys on SIGHUP and shuts down on any other signal or
// when ctx ends. stop is called after shutdown so the other run group
// members return.
func (s *server) handleSignals(ctx context.Context, sigs <-chan os.Signal, stop context.CancelFunc) error {
	for {
		select {
		case <-ctx.Done():
			_, err := s.app.Shutdown(context.Background())
			return err
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				n := s.app.Redeploy()
				s.logger.Info("redeployed", "notified", n)
				continue
			}
			s.logger.Info("shutting down", "signal", sig.String())
			n, err := s.app.Shutdown(context.Background())
			s.logger.Info("sessions closed", "sockets", n)
			stop()
			return err
		}
	}
}
