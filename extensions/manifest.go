package extensions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the manifest each extension directory must carry.
const ManifestFileName = "extension.yaml"

// Manifest describes one extension as declared by its extension.yaml.
type Manifest struct {
	Name        string `yaml:"name"`        // extension identifier
	Version     string `yaml:"version"`     // semantic version, e.g. "1.0.0"
	Script      string `yaml:"script"`      // entry script, relative to the extension directory
	Description string `yaml:"description"` // optional human-readable summary
}

// Validate checks that the manifest carries everything the loader needs.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("extension name cannot be empty")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("extension version cannot be empty")
	}
	if strings.TrimSpace(m.Script) == "" {
		return fmt.Errorf("extension script cannot be empty")
	}
	if filepath.IsAbs(m.Script) {
		return fmt.Errorf("extension script must be relative, got %q", m.Script)
	}
	if clean := filepath.Clean(m.Script); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("extension script must stay inside the extension directory, got %q", m.Script)
	}
	return nil
}

// LoadManifest reads and parses an extension.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &manifest, nil
}
