package extensions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/krauthaufen/interactive/logging"
)

// Extension is a discovered, loadable extension.
type Extension struct {
	Name        string
	Version     string
	Description string
	// Directory is the extension's root directory.
	Directory string
	// ScriptPath is the absolute path of the entry script.
	ScriptPath string
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// AllowPatterns filters extensions by name. Empty means allow all.
	AllowPatterns []string
	// WatchDebounce is how long Watch waits after a filesystem event before
	// probing the affected directory, so half-written extensions settle.
	WatchDebounce time.Duration
	// Logger receives skip warnings during discovery.
	Logger logging.Logger
}

// Loader discovers extensions under well-known directories.
type Loader struct {
	allowed  []glob.Glob
	debounce time.Duration
	logger   logging.Logger
}

// NewLoader creates a Loader. Invalid allow-patterns fail construction.
func NewLoader(optFns ...func(*LoaderOptions)) (*Loader, error) {
	opts := LoaderOptions{
		WatchDebounce: 500 * time.Millisecond,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	allowed := make([]glob.Glob, 0, len(opts.AllowPatterns))
	for _, pattern := range opts.AllowPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern %q: %w", pattern, err)
		}
		allowed = append(allowed, g)
	}

	return &Loader{allowed: allowed, debounce: opts.WatchDebounce, logger: opts.Logger}, nil
}

// Discover scans dir for extension subdirectories and returns the loadable
// ones name-sorted. A missing dir yields no extensions and no error, so
// hosts can probe optional locations. Subdirectories without a manifest are
// not extensions and are passed over silently; broken ones are skipped with
// a warning.
func (l *Loader) Discover(dir string) ([]Extension, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read extensions directory: %w", err)
	}

	found := make([]Extension, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		extDir := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(extDir, ManifestFileName)); os.IsNotExist(err) {
			continue
		}

		ext, err := l.load(extDir)
		if err != nil {
			l.logger.Warn("skipping extension", "dir", extDir, "error", err)
			continue
		}
		if ext == nil {
			l.logger.Debug("extension filtered by allow patterns", "dir", extDir)
			continue
		}

		found = append(found, *ext)
	}

	sort.Slice(found, func(i, j int) bool {
		return strings.ToLower(found[i].Name) < strings.ToLower(found[j].Name)
	})
	return found, nil
}

// load reads one extension directory. It returns (nil, nil) when the
// extension is valid but filtered out by the allow-patterns.
func (l *Loader) load(extDir string) (*Extension, error) {
	manifest, err := LoadManifest(filepath.Join(extDir, ManifestFileName))
	if err != nil {
		return nil, err
	}

	if !l.allowsName(manifest.Name) {
		return nil, nil
	}

	scriptPath := filepath.Join(extDir, manifest.Script)
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("extension script %s: %w", manifest.Script, err)
	}

	return &Extension{
		Name:        manifest.Name,
		Version:     manifest.Version,
		Description: manifest.Description,
		Directory:   extDir,
		ScriptPath:  scriptPath,
	}, nil
}

func (l *Loader) allowsName(name string) bool {
	if len(l.allowed) == 0 {
		return true
	}
	for _, pattern := range l.allowed {
		if pattern.Match(name) {
			return true
		}
	}
	return false
}
