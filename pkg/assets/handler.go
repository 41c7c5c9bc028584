package assets

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// Mount registers a GET and HEAD route for every binding.
func (m *Manifest) Mount(r chi.Router) {
	for _, b := range m.Bindings() {
		h := m.fileHandler(b)
		r.Get(b.URL, h)
		r.Head(b.URL, h)
	}
}

// Handler serves every binding by URL and answers 404 for anything else.
// It is an alternative to Mount for plain http.ServeMux setups.
func (m *Manifest) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		b, ok := m.Lookup(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		m.fileHandler(b)(w, r)
	})
}

// fileHandler serves one binding. Stamped URLs never change content, so
// responses are cacheable forever unless the manifest was published with
// NoCache, in which case clients revalidate by modification time.
func (m *Manifest) fileHandler(b Binding) http.HandlerFunc {
	etag := `"` + b.Stamp + "-" + string(b.Kind) + `"`
	var sourceMap string
	if b.Kind == KindScript {
		if mb, ok := m.Get(SourceMapName); ok {
			sourceMap = mb.URL
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(b.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("Content-Type", b.ContentType)
		if m.noCache {
			h.Set("Cache-Control", "no-cache")
		} else {
			h.Set("Cache-Control", "public, max-age=31536000, immutable")
			h.Set("ETag", etag)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		if sourceMap != "" {
			h.Set("SourceMap", sourceMap)
		}
		http.ServeContent(w, r, b.Name, info.ModTime(), f)
	}
}
