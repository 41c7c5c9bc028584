// Package assets publishes the client engine under stamped URLs.
//
// At startup the engine script, stylesheet and source map are resolved,
// either from the copies packaged with this module or from override files,
// and each one is bound to a URL embedding the process's deployment stamp:
//
//	/engine-{stamp}.js
//	/engine-{stamp}.min.css
//	/engine-{stamp}.js.map
//
// A page rendered by one deployment keeps loading exactly the assets it was
// built with, because two deployments never share a URL:
//
//	manifest, err := assets.Publish(assets.Config{Stamp: stamp})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manifest.Mount(router)
//	manifest.Resolve("engine.js") // "/engine-<stamp>.js"
package assets

import (
	"sync"
)

// Kind identifies a published engine asset.
type Kind string

const (
	KindScript    Kind = "script"
	KindStyle     Kind = "style"
	KindSourceMap Kind = "sourcemap"
)

// Source names of the engine assets.
const (
	ScriptName    = "engine.js"
	StyleName     = "engine.min.css"
	SourceMapName = "engine.js.map"
)

// Binding ties a stamped URL to the file served for it.
type Binding struct {
	Kind        Kind
	Name        string // source name, e.g. "engine.js"
	URL         string
	Path        string // file on disk
	Stamp       string
	ContentType string
}

// Manifest holds the bindings of one deployment.
// It is filled by Publish and read-only afterwards; it is safe for concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	stamp   string
	entries map[string]Binding
	order   []string
	byURL   map[string]Binding
	noCache bool
}

// NewManifest creates an empty manifest for stamp.
func NewManifest(stamp string) *Manifest {
	return &Manifest{
		stamp:   stamp,
		entries: make(map[string]Binding),
		byURL:   make(map[string]Binding),
	}
}

func (m *Manifest) add(b Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[b.Name]; !exists {
		m.order = append(m.order, b.Name)
	}
	m.entries[b.Name] = b
	m.byURL[b.URL] = b
}

// Stamp returns the deployment stamp.
func (m *Manifest) Stamp() string {
	return m.stamp
}

// Resolve returns the stamped URL for a source name.
// If not found, returns the original name unchanged.
func (m *Manifest) Resolve(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.entries[name]; ok {
		return b.URL
	}
	return name
}

// Has returns true if the manifest contains the given source name.
func (m *Manifest) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[name]
	return ok
}

// Get returns the binding for a source name.
func (m *Manifest) Get(name string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.entries[name]
	return b, ok
}

// Lookup returns the binding served at url.
func (m *Manifest) Lookup(url string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.byURL[url]
	return b, ok
}

// Bindings returns all bindings in publication order.
func (m *Manifest) Bindings() []Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Binding, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.entries[name])
	}
	return out
}

// URLs returns the stamped URLs of the given kind.
func (m *Manifest) URLs(kind Kind) []string {
	var out []string
	for _, b := range m.Bindings() {
		if b.Kind == kind {
			out = append(out, b.URL)
		}
	}
	return out
}

// Len returns the number of bindings.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
