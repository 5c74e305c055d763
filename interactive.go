// Package interactive provides a high-level façade over the kernel, engine
// and package-management machinery, enabling a Go host to embed an F#
// notebook kernel with a few calls. Most applications interact with this
// package by:
//  1. Creating a Kernel via New() (optionally from a YAML config file)
//  2. Feeding it host commands (Handle for raw envelopes, or the typed
//     helpers like SubmitCode and Completions)
//  3. Receiving the event stream through the configured Publisher
//
// The façade delegates command processing to kernel.Kernel while keeping
// setup ergonomics concise. Defaults are safe for embedding: no log output,
// a lazily spawned compiler service, and package restore disabled until a
// resolver is supplied.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krauthaufen/interactive/config"
	"github.com/krauthaufen/interactive/engine"
	"github.com/krauthaufen/interactive/engine/fsiproc"
	"github.com/krauthaufen/interactive/extensions"
	"github.com/krauthaufen/interactive/kernel"
	"github.com/krauthaufen/interactive/logging"
	"github.com/krauthaufen/interactive/nuget"
	"github.com/krauthaufen/interactive/protocol"
)

// Options configures the Kernel façade.
type Options struct {
	// ConfigPath points at an optional YAML config file. An empty path or
	// a missing file means defaults.
	ConfigPath string

	// Config overrides file loading entirely when non-nil. It is validated
	// during New.
	Config *config.Config

	// Factory overrides the engine session factory built from the config's
	// engine section. Hosts embedding their own compiler service transport
	// set this; everyone else configures engine.command.
	Factory engine.Factory

	// Publisher receives every event envelope the kernel emits. Nil means
	// events are only observable through the typed helpers' return values.
	Publisher kernel.Publisher

	// Resolver performs package resolution for #r-style package references.
	// Nil leaves restore commands failing with nuget.ErrNoResolver.
	Resolver nuget.Resolver

	// Logger overrides the logger built from the config's logging section.
	Logger logging.Logger
}

// Kernel is the host-facing façade aggregating the command kernel, its
// configuration and the extension loader.
type Kernel struct {
	opts   Options
	cfg    *config.Config
	logger logging.Logger

	inner  *kernel.Kernel
	loader *extensions.Loader
	router *eventRouter

	evalTimeout time.Duration
}

// New creates a Kernel with optional overrides. Configuration is loaded
// from Options.ConfigPath unless Options.Config is set; unset services fall
// back to library-safe defaults.
func New(optFns ...func(o *Options)) (*Kernel, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := buildLogger(opts, cfg)
	if err != nil {
		return nil, err
	}

	factory := opts.Factory
	if factory == nil {
		if cfg.Engine.Command == "" {
			return nil, errors.New("no engine command configured: set engine.command or provide a session factory")
		}
		factory = serviceFactory(cfg, logger)
	}

	loader, err := extensions.NewLoader(func(o *extensions.LoaderOptions) {
		o.AllowPatterns = cfg.Extensions.AllowPatterns
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	router := &eventRouter{
		forward:   opts.Publisher,
		collected: make(map[string][]protocol.EventEnvelope),
	}

	inner, err := kernel.New(func(o *kernel.Options) {
		o.Name = cfg.Kernel.Name
		o.ValueDisplayLimit = cfg.Kernel.ValueDisplayLimit
		o.Factory = factory
		o.Publisher = router
		o.Resolver = opts.Resolver
		o.ExtensionLoader = loader
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	for _, src := range cfg.Nuget.RestoreSources {
		inner.AddRestoreSource(src)
	}

	return &Kernel{
		opts:        opts,
		cfg:         cfg,
		logger:      logger,
		inner:       inner,
		loader:      loader,
		router:      router,
		evalTimeout: time.Duration(cfg.Engine.EvalTimeout),
	}, nil
}

// buildLogger picks the host-supplied logger, or derives one from the
// logging config section when that is set. A Kernel built without either
// stays silent.
func buildLogger(opts Options, cfg *config.Config) (logging.Logger, error) {
	if opts.Logger != nil {
		return opts.Logger, nil
	}
	if !cfg.Logging.Enabled() {
		return logging.NoOpLogger{}, nil
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, cfg.Logging.Format, false), nil
}

// serviceFactory builds the lazy engine session factory from the engine
// config section.
func serviceFactory(cfg *config.Config, logger logging.Logger) engine.Factory {
	return func(ctx context.Context) (engine.Session, error) {
		return fsiproc.New(ctx, func(o *fsiproc.Options) {
			o.Command = cfg.Engine.Command
			o.Args = cfg.Engine.Args
			o.Dir = cfg.Engine.WorkingDir
			o.StartupTimeout = time.Duration(cfg.Engine.StartupTimeout)
			o.Logger = logger
		})
	}
}

// Name reports the kernel name ("fsharp" unless configured otherwise).
func (k *Kernel) Name() string { return k.inner.Name() }

// Handle routes a raw command envelope to the kernel. Its events flow to
// the configured Publisher. Submissions are bounded by the configured eval
// timeout; a timed-out submission terminates with CommandCancelled.
func (k *Kernel) Handle(ctx context.Context, env protocol.CommandEnvelope) error {
	switch env.Command.(type) {
	case protocol.SubmitCode, *protocol.SubmitCode:
		if k.evalTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, k.evalTimeout)
			defer cancel()
		}
	}
	return k.inner.Handle(ctx, env)
}

// Cancel interrupts a running submission by its command token.
func (k *Kernel) Cancel(token string) error { return k.inner.Cancel(token) }

// Close tears down the kernel and its compiler service session.
func (k *Kernel) Close() error { return k.inner.Close() }

// AddRestoreSource registers an additional package feed for later restores.
func (k *Kernel) AddRestoreSource(source string) { k.inner.AddRestoreSource(source) }

// AddPackage records a package reference for the next RestorePackages call.
func (k *Kernel) AddPackage(ctx context.Context, ref nuget.PackageReference) error {
	return k.inner.AddPackage(ctx, ref)
}

// RestorePackages resolves all pending package references, publishing
// PackageAdded for each and running package init scripts.
func (k *Kernel) RestorePackages(ctx context.Context) (*nuget.RestoreResult, error) {
	return k.inner.RestorePackages(ctx)
}

// ResolvedPackages lists every package resolved so far.
func (k *Kernel) ResolvedPackages() []nuget.ResolvedPackage {
	return k.inner.ResolvedPackages()
}

// LoadExtensions scans the configured extension directories and loads every
// allowed extension found. Failing extensions are reported together after
// the rest have loaded.
func (k *Kernel) LoadExtensions(ctx context.Context) error {
	var errs []error
	for _, dir := range k.cfg.Extensions.Dirs {
		if err := k.inner.LoadExtensionsFromDirectory(ctx, dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadExtensionsFromDirectory loads extensions from one directory,
// regardless of the configured extension directories.
func (k *Kernel) LoadExtensionsFromDirectory(ctx context.Context, dir string) error {
	return k.inner.LoadExtensionsFromDirectory(ctx, dir)
}

// WatchExtensions hot-loads extensions dropped into the configured
// extension directories until ctx is cancelled. It is a no-op unless
// extensions.watch is enabled. Watching starts before this returns; loading
// happens on background goroutines.
func (k *Kernel) WatchExtensions(ctx context.Context) error {
	if !k.cfg.Extensions.Watch {
		return nil
	}

	var errs []error
	for _, dir := range k.cfg.Extensions.Dirs {
		ch, err := k.loader.Watch(ctx, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", dir, err))
			continue
		}

		go func(dir string, ch <-chan extensions.Extension) {
			for ext := range ch {
				if err := k.inner.LoadExtension(ctx, ext); err != nil {
					k.logger.Warn("hot-loaded extension failed", "dir", dir, "error", err)
				}
			}
		}(dir, ch)
	}

	return errors.Join(errs...)
}
