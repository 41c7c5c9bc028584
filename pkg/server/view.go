package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PageAssets are the stamped client resources linked from every page.
type PageAssets struct {
	Stamp   string
	Scripts []string
	Styles  []string
}

// Page is the data available to a component's Show.
type Page struct {
	Title     string
	TypeID    string
	Path      string // request path below the mount path, "/" at the root
	SocketURL string // path of the component's WebSocket endpoint
	Stamp     string
	Scripts   []string
	Styles    []string
}

type pageKey struct{}

// WithPage returns a context carrying page.
func WithPage(ctx context.Context, page *Page) context.Context {
	return context.WithValue(ctx, pageKey{}, page)
}

// PageFromContext returns the page of the current view request, or an empty page.
func PageFromContext(ctx context.Context) *Page {
	if p, ok := ctx.Value(pageKey{}).(*Page); ok && p != nil {
		return p
	}
	return &Page{}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{range .Styles}}<link rel="stylesheet" href="{{.}}">
{{end}}</head>
<body data-component="{{.TypeID}}" data-socket="{{.SocketURL}}" data-stamp="{{.Stamp}}">
<div id="app"></div>
{{range .Scripts}}<script src="{{.}}"></script>
{{end}}</body>
</html>
`))

// RenderPage writes the bootstrap HTML document for page.
func RenderPage(w http.ResponseWriter, page *Page) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return pageTemplate.Execute(w, page)
}

// statusWriter records whether a response has started.
type statusWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// ViewHandler serves GET requests under a component's mount path. Each
// request gets its own component instance, which never enters the session
// store. The instance sees beforeRequest, Show and afterRequest in order and
// is the active component for the duration of the request.
type ViewHandler struct {
	reg    Registration
	assets PageAssets
	logger *slog.Logger
}

// NewViewHandler creates the view handler for reg.
func NewViewHandler(reg Registration, assets PageAssets, logger *slog.Logger) *ViewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewHandler{
		reg:    reg,
		assets: assets,
		logger: logger.With("component", "view", "type", reg.TypeID),
	}
}

func (h *ViewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w}
	if err := h.serve(sw, r); err != nil {
		errorID := uuid.NewString()
		h.logger.Error("view request failed",
			"error_id", errorID,
			"path", r.URL.Path,
			"error", err)
		if !sw.wrote {
			http.Error(sw, "internal server error ("+errorID+")", http.StatusInternalServerError)
		}
	}
}

func (h *ViewHandler) serve(w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()

	comp := h.reg.Factory(nil)
	if comp == nil {
		return fmt.Errorf("%w: %q", ErrNilComponent, h.reg.TypeID)
	}
	base := comp.base()
	base.bind(h.reg.TypeID, comp)
	defer comp.Close()

	path := "/" + chi.URLParam(r, "*")
	page := &Page{
		Title:     h.reg.TypeID,
		TypeID:    h.reg.TypeID,
		Path:      path,
		SocketURL: h.reg.SocketPath(),
		Stamp:     h.assets.Stamp,
		Scripts:   h.assets.Scripts,
		Styles:    h.assets.Styles,
	}

	ctx, release := withActiveComponent(WithPage(r.Context(), page), comp)
	defer release()

	if err := base.Trigger(ctx, &ComponentEvent{Name: EventBeforeRequest, Request: r}); err != nil {
		_ = base.Trigger(ctx, &ComponentEvent{Name: EventAfterRequest, Request: r, Err: err})
		return err
	}

	showErr := comp.Show(ctx, w, r.WithContext(ctx), path)
	afterErr := base.Trigger(ctx, &ComponentEvent{Name: EventAfterRequest, Request: r, Err: showErr})
	if showErr != nil {
		return showErr
	}
	return afterErr
}
