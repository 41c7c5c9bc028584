package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

//go:embed dist/engine.js dist/engine.min.css dist/engine.js.map
var packaged embed.FS

// TempDirName is the directory under the system temp dir that receives the
// extracted packaged assets, one subdirectory per stamp.
const TempDirName = "dnext-engine"

// Sentinel errors for asset publication.
var (
	// ErrNoStamp is returned when publishing without a deployment stamp.
	ErrNoStamp = errors.New("assets: deployment stamp is required")

	// ErrMissingAsset is returned when a packaged or override asset does not exist.
	ErrMissingAsset = errors.New("assets: asset not found")

	// ErrTempDir is returned when the extraction directory cannot be written.
	ErrTempDir = errors.New("assets: temp directory not writable")
)

// PublishError describes a failed binding.
type PublishError struct {
	Name string // source name of the asset
	Path string
	Err  error
}

// Error returns the error message.
func (e *PublishError) Error() string {
	return fmt.Sprintf("assets: publish %s (%s): %v", e.Name, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// Config configures Publish.
type Config struct {
	// Stamp is the deployment stamp embedded in every URL. Required.
	Stamp string

	// Prefix is prepended to every URL, e.g. "/dnext". Default: "".
	Prefix string

	// ScriptFile overrides the packaged engine script. A source map is
	// published only if ScriptFile+".map" exists.
	ScriptFile string

	// StyleFile overrides the packaged stylesheet.
	StyleFile string

	// TempDir receives the extracted packaged assets.
	// Default: $TMPDIR/dnext-engine/<stamp>.
	TempDir string

	// NoCache serves assets with revalidation instead of immutable caching.
	// Set it when override files are edited while the process runs.
	NoCache bool

	// Logger for publication messages. Default: slog.Default().
	Logger *slog.Logger

	// source of the packaged assets; tests swap it.
	source fs.FS
}

// URL returns the stamped URL for an asset extension such as ".js".
func (c Config) URL(ext string) string {
	return normalizePrefix(c.Prefix) + "/engine-" + c.Stamp + ext
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

// Publish resolves the engine assets and binds them to stamped URLs.
// Any failure is fatal for startup; no partial manifest is returned.
func Publish(cfg Config) (*Manifest, error) {
	if strings.TrimSpace(cfg.Stamp) == "" {
		return nil, ErrNoStamp
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.source == nil {
		cfg.source = packaged
	}
	logger := cfg.Logger.With("component", "assets", "stamp", cfg.Stamp)

	dir := cfg.TempDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), TempDirName, cfg.Stamp)
	}
	needExtract := cfg.ScriptFile == "" || cfg.StyleFile == ""
	if needExtract {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PublishError{Name: "temp dir", Path: dir, Err: errors.Join(ErrTempDir, err)}
		}
	}

	m := NewManifest(cfg.Stamp)
	m.noCache = cfg.NoCache

	// Script and its source map.
	if cfg.ScriptFile != "" {
		path, err := existing(ScriptName, cfg.ScriptFile)
		if err != nil {
			return nil, err
		}
		m.add(binding(cfg, KindScript, ScriptName, ".js", path))

		if mapPath := path + ".map"; fileExists(mapPath) {
			m.add(binding(cfg, KindSourceMap, SourceMapName, ".js.map", mapPath))
		}
	} else {
		path, err := extract(cfg.source, ScriptName, dir)
		if err != nil {
			return nil, err
		}
		m.add(binding(cfg, KindScript, ScriptName, ".js", path))

		mapPath, err := extract(cfg.source, SourceMapName, dir)
		if err != nil {
			return nil, err
		}
		m.add(binding(cfg, KindSourceMap, SourceMapName, ".js.map", mapPath))
	}

	// Stylesheet.
	var stylePath string
	var err error
	if cfg.StyleFile != "" {
		stylePath, err = existing(StyleName, cfg.StyleFile)
	} else {
		stylePath, err = extract(cfg.source, StyleName, dir)
	}
	if err != nil {
		return nil, err
	}
	m.add(binding(cfg, KindStyle, StyleName, ".min.css", stylePath))

	for _, b := range m.Bindings() {
		logger.Debug("asset bound", "url", b.URL, "path", b.Path)
	}
	logger.Info("engine assets published", "count", m.Len())
	return m, nil
}

func binding(cfg Config, kind Kind, name, ext, path string) Binding {
	return Binding{
		Kind:        kind,
		Name:        name,
		URL:         cfg.URL(ext),
		Path:        path,
		Stamp:       cfg.Stamp,
		ContentType: contentType(kind),
	}
}

func contentType(kind Kind) string {
	switch kind {
	case KindScript:
		return "application/javascript; charset=utf-8"
	case KindStyle:
		return "text/css; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// existing validates an override file.
func existing(name, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PublishError{Name: name, Path: path, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", &PublishError{Name: name, Path: abs, Err: ErrMissingAsset}
	}
	return abs, nil
}

// extract copies a packaged asset into dir and returns the written path.
func extract(source fs.FS, name, dir string) (string, error) {
	data, err := fs.ReadFile(source, "dist/"+name)
	if err != nil {
		return "", &PublishError{Name: name, Path: "dist/" + name, Err: errors.Join(ErrMissingAsset, err)}
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &PublishError{Name: name, Path: path, Err: errors.Join(ErrTempDir, err)}
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
