package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mount registers the routes of one component on mux:
//
//	GET {path}        redirect to {path}/
//	GET {path}/*      view request lifecycle
//	    {path}/@ws/   WebSocket endpoint
//
// The redirect is skipped for a component mounted at the root.
func (r *Router) Mount(mux chi.Router, reg Registration, assets PageAssets) {
	if reg.Path != "" {
		target := reg.Path + "/"
		mux.Get(reg.Path, func(w http.ResponseWriter, req *http.Request) {
			dest := target
			if req.URL.RawQuery != "" {
				dest += "?" + req.URL.RawQuery
			}
			http.Redirect(w, req, dest, http.StatusMovedPermanently)
		})
	}

	mux.Handle(reg.SocketPath(), NewEndpoint(r, reg.TypeID))
	mux.Get(reg.Path+"/*", NewViewHandler(reg, assets, r.logger).ServeHTTP)
}

// MountAll mounts every registration of the store's registry.
func (r *Router) MountAll(mux chi.Router, assets PageAssets) {
	for _, reg := range r.store.Registry().All() {
		r.Mount(mux, reg, assets)
	}
}
