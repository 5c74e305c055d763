package kernel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/krauthaufen/interactive/extensions"
	"github.com/krauthaufen/interactive/nuget"
	"github.com/krauthaufen/interactive/protocol"
)

// PackageManagement is the host-defined capability for package and
// restore-source management. The kernel satisfies it by delegating to its
// restore context and publishing PackageAdded for every newly resolved
// package.
type PackageManagement interface {
	AddRestoreSource(source string)
	AddPackage(ctx context.Context, ref nuget.PackageReference) error
	RestorePackages(ctx context.Context) (*nuget.RestoreResult, error)
	ResolvedPackages() []nuget.ResolvedPackage
}

// ExtensionLoading is the host-defined capability for directory-based
// extension loading.
type ExtensionLoading interface {
	LoadExtensionsFromDirectory(ctx context.Context, dir string) error
}

var (
	_ PackageManagement = (*Kernel)(nil)
	_ ExtensionLoading  = (*Kernel)(nil)
)

// AddRestoreSource registers an additional package feed for later restores.
func (k *Kernel) AddRestoreSource(source string) {
	k.restore.AddSource(source)
}

// AddPackage records a package reference for the next RestorePackages call.
func (k *Kernel) AddPackage(_ context.Context, ref nuget.PackageReference) error {
	return k.restore.AddPackage(ref)
}

// ResolvedPackages returns every package resolved so far, name-sorted.
func (k *Kernel) ResolvedPackages() []nuget.ResolvedPackage {
	return k.restore.ResolvedPackages()
}

// restoreObserver is the optional restore-metrics hook a Logger can
// implement; *logging.KernelLogger does.
type restoreObserver interface {
	LogRestore(requested, resolved int, dur time.Duration, success bool, err error)
}

// RestorePackages resolves the pending package references. Each newly
// resolved package is announced with PackageAdded, and its init script, if
// any, runs through the normal submission path so its output and failures
// surface as ordinary events. Script failures do not fail the restore.
func (k *Kernel) RestorePackages(ctx context.Context) (*nuget.RestoreResult, error) {
	start := time.Now()
	requested := len(k.restore.PendingPackages())

	result, err := k.restore.Restore(ctx)
	if err != nil {
		k.observeRestore(requested, 0, time.Since(start), false, err)
		return nil, err
	}

	for _, pkg := range result.Resolved {
		k.publish(protocol.PackageAdded{
			PackageReference: protocol.PackageReference{Name: pkg.Name, Version: pkg.Version},
		}, nil)

		if err := k.runPackageInitScript(ctx, pkg); err != nil {
			k.logger.Warn("package init script failed", "package", pkg.Name, "error", err)
		}
	}

	k.observeRestore(requested, len(result.Resolved), time.Since(start), len(result.Errors) == 0, nil)

	return result, nil
}

func (k *Kernel) observeRestore(requested, resolved int, dur time.Duration, success bool, err error) {
	if obs, ok := k.logger.(restoreObserver); ok {
		obs.LogRestore(requested, resolved, dur, success, err)
		return
	}

	args := []any{"requested", requested, "resolved", resolved, "duration", dur}
	if err != nil {
		args = append(args, "error", err)
	}
	if success {
		k.logger.Info("package restore finished", args...)
		return
	}
	k.logger.Error("package restore failed", args...)
}

func (k *Kernel) runPackageInitScript(ctx context.Context, pkg nuget.ResolvedPackage) error {
	if pkg.InitScript == "" {
		return nil
	}

	path := pkg.InitScript
	if !filepath.IsAbs(path) {
		path = filepath.Join(pkg.Root, path)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read init script: %w", err)
	}

	cmd := protocol.SubmitCode{Code: string(code)}
	env := protocol.NewCommandEnvelope(cmd)
	return k.runSubmission(ctx, &env, cmd)
}

// LoadExtensionsFromDirectory discovers extensions under dir and evaluates
// each one's entry script through the normal submission path, publishing
// KernelExtensionLoaded for every script that succeeds. A missing directory
// is not an error. Failing extensions are skipped and reported together
// after the rest have loaded.
func (k *Kernel) LoadExtensionsFromDirectory(ctx context.Context, dir string) error {
	exts, err := k.loader.Discover(dir)
	if err != nil {
		return err
	}

	var errs []error
	for _, ext := range exts {
		if err := k.LoadExtension(ctx, ext); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LoadExtension evaluates one discovered extension's entry script through
// the normal submission path and publishes KernelExtensionLoaded when the
// script succeeds.
func (k *Kernel) LoadExtension(ctx context.Context, ext extensions.Extension) error {
	if err := k.runExtensionScript(ctx, ext); err != nil {
		k.logger.Warn("extension load failed", "name", ext.Name, "dir", ext.Directory, "error", err)
		return fmt.Errorf("extension %s: %w", ext.Name, err)
	}

	k.publish(protocol.KernelExtensionLoaded{Name: ext.Name, Directory: ext.Directory}, nil)
	k.logger.Info("extension loaded", "name", ext.Name, "version", ext.Version)
	return nil
}

func (k *Kernel) runExtensionScript(ctx context.Context, ext extensions.Extension) error {
	code, err := os.ReadFile(ext.ScriptPath)
	if err != nil {
		return fmt.Errorf("read extension script: %w", err)
	}

	cmd := protocol.SubmitCode{Code: string(code)}
	env := protocol.NewCommandEnvelope(cmd)
	return k.runSubmission(ctx, &env, cmd)
}
