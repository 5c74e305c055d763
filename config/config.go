package config

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/krauthaufen/interactive/logging"
)

// Defaults applied when a field is absent from the config file.
const (
	DefaultKernelName        = "fsharp"
	DefaultValueDisplayLimit = 4096
	DefaultStartupTimeout    = 30 * time.Second
)

// Duration wraps time.Duration so config files can use "30s" style values.
type Duration time.Duration

// UnmarshalYAML parses a duration scalar in time.ParseDuration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration's string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the root kernel configuration, usually loaded from a YAML
// file. Absent keys keep their defaults.
type Config struct {
	Kernel     KernelConfig     `yaml:"kernel"`
	Engine     EngineConfig     `yaml:"engine"`
	Nuget      NugetConfig      `yaml:"nuget"`
	Extensions ExtensionsConfig `yaml:"extensions"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// KernelConfig names the kernel and bounds value rendering.
type KernelConfig struct {
	// Name identifies the kernel to hosts.
	Name string `yaml:"name"`
	// ValueDisplayLimit caps the rune length of rendered values in events.
	ValueDisplayLimit int `yaml:"valueDisplayLimit"`
}

// EngineConfig describes how to spawn the compiler service process.
type EngineConfig struct {
	// Command is the service binary. It may stay empty when the host
	// injects its own session factory.
	Command string `yaml:"command"`
	// Args are passed to the service binary.
	Args []string `yaml:"args"`
	// WorkingDir is the service process working directory. Supports a
	// leading ~/.
	WorkingDir string `yaml:"workingDir"`
	// StartupTimeout bounds the init handshake.
	StartupTimeout Duration `yaml:"startupTimeout"`
	// EvalTimeout bounds a single submission; zero means unlimited. A
	// timed-out submission surfaces as CommandCancelled.
	EvalTimeout Duration `yaml:"evalTimeout"`
}

// NugetConfig seeds the restore context.
type NugetConfig struct {
	// RestoreSources are package feeds registered before the first
	// restore.
	RestoreSources []string `yaml:"restoreSources"`
}

// ExtensionsConfig controls extension discovery.
type ExtensionsConfig struct {
	// Dirs are scanned for extensions at startup. Supports a leading ~/.
	Dirs []string `yaml:"dirs"`
	// AllowPatterns restrict which extension names load; empty allows all.
	AllowPatterns []string `yaml:"allowPatterns"`
	// Watch enables hot-loading of extensions dropped into Dirs at runtime.
	Watch bool `yaml:"watch"`
}

// LoggingConfig selects log verbosity and handler format. Leaving both
// fields empty keeps the kernel silent; setting either turns structured
// logging on.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Empty means info once logging
	// is enabled.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Enabled reports whether the host asked for log output at all.
func (l LoggingConfig) Enabled() bool {
	return l.Level != "" || l.Format != ""
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			Name:              DefaultKernelName,
			ValueDisplayLimit: DefaultValueDisplayLimit,
		},
		Engine: EngineConfig{
			StartupTimeout: Duration(DefaultStartupTimeout),
		},
	}
}

// Validate checks the configuration. Numeric zero values heal to their
// defaults; contradictory values are errors. Engine.Command may stay empty
// here: hosts injecting their own session factory never spawn a process,
// so that requirement is enforced where the factory is built.
func (c *Config) Validate() error {
	if c.Kernel.Name == "" {
		c.Kernel.Name = DefaultKernelName
	}
	if c.Kernel.ValueDisplayLimit <= 0 {
		c.Kernel.ValueDisplayLimit = DefaultValueDisplayLimit
	}

	if c.Engine.StartupTimeout < 0 {
		return fmt.Errorf("engine: startup timeout must not be negative")
	}
	if c.Engine.StartupTimeout == 0 {
		c.Engine.StartupTimeout = Duration(DefaultStartupTimeout)
	}
	if c.Engine.EvalTimeout < 0 {
		return fmt.Errorf("engine: eval timeout must not be negative")
	}

	for _, p := range c.Extensions.AllowPatterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("extensions: invalid allow pattern %q: %w", p, err)
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}

	return nil
}
