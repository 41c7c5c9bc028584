// Package webui exposes stateful UI components to browser clients over
// WebSocket.
//
// An App is the web context: a chi router, a deployment stamp and the HTTP
// server. A Module holds the component registry and, once injected into an
// App, the session store, message router and published engine assets:
//
//	app := webui.New(webui.Config{Logger: logger})
//
//	ui := webui.NewModule(webui.WithLogger(logger))
//	ui.AddUI("app.Dashboard", "/dash", func(*server.Socket) server.Component {
//	    return &Dashboard{}
//	})
//	if err := app.Use(ui); err != nil {
//	    errors.Fprint(os.Stderr, err)
//	    os.Exit(1)
//	}
//
//	go app.ListenAndServe(":8080")
//
//	// later
//	ui.Redeploy()        // every live component reloads its page
//	app.Shutdown(ctx)    // every socket is closed exactly once
//
// Each component type is mounted at its path:
//
//	GET /dash          redirects to /dash/
//	GET /dash/*        renders the component page
//	    /dash/@ws/     WebSocket endpoint for the component's messages
package webui

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
)

// Context is anything a Module can be injected into.
type Context interface {
	Logger() *slog.Logger
}

// WebContext is a Context that serves HTTP routes under one deployment stamp.
type WebContext interface {
	Context
	Router() chi.Router
	Stamp() string
}

// Module is a unit of functionality injected into a Context at startup.
type Module interface {
	Inject(ctx Context) error
}

// Redeployer is implemented by modules that can tell clients to reload.
type Redeployer interface {
	Redeploy() int
}

// Shutdowner is implemented by modules holding live connections.
type Shutdowner interface {
	Shutdown(ctx context.Context) int
}
