package nuget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoResolver is returned by Restore when no Resolver was configured.
var ErrNoResolver = errors.New("no package resolver configured")

// VersionLatest requests whatever version the resolver considers current.
const VersionLatest = "*"

// PackageReference identifies a requested package. An empty Version is
// normalized to VersionLatest.
type PackageReference struct {
	Name    string
	Version string
}

// String renders the reference the way restore logs and error messages show
// packages, e.g. "FSharp.Data, 6.3.0".
func (r PackageReference) String() string {
	if r.Version == "" {
		return r.Name
	}
	return fmt.Sprintf("%s, %s", r.Name, r.Version)
}

// ResolvedPackage describes a package the resolver materialized on disk.
type ResolvedPackage struct {
	Name    string
	Version string
	// Root is the package's directory on disk.
	Root string
	// InitScript is an optional script the kernel evaluates after restore,
	// relative to Root when not absolute. Empty when the package has none.
	InitScript string
}

// RestoreError describes a single reference the resolver could not satisfy.
type RestoreError struct {
	Reference PackageReference
	Message   string
}

func (e RestoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reference, e.Message)
}

// RestoreResult reports the outcome of one Restore call. Resolved holds the
// packages newly materialized by this call; Errors holds per-reference
// failures. References that failed stay pending so a later Restore can retry
// them.
type RestoreResult struct {
	Resolved []ResolvedPackage
	Errors   []RestoreError
}

// Success reports whether every pending reference resolved.
func (r *RestoreResult) Success() bool {
	return len(r.Errors) == 0
}

// VersionConflictError is returned when a package is re-requested at a
// version different from the one already requested or resolved.
type VersionConflictError struct {
	Name      string
	Existing  string
	Requested string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("package %s version conflict: have %s, requested %s", e.Name, e.Existing, e.Requested)
}

// Resolver performs package resolution on behalf of a RestoreContext. The
// notebook host injects an implementation backed by its own dependency
// tooling. Implementations report per-reference failures in the result and
// reserve the error return for faults that invalidate the whole batch.
type Resolver interface {
	Resolve(ctx context.Context, sources []string, packages []PackageReference) (*RestoreResult, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, sources []string, packages []PackageReference) (*RestoreResult, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, sources []string, packages []PackageReference) (*RestoreResult, error) {
	return f(ctx, sources, packages)
}

// RestoreContext accumulates restore sources and package references for the
// lifetime of a kernel session. Adding the same source or reference twice is
// a no-op; re-requesting a package at a conflicting version is an error.
//
// Concurrency: protected by RWMutex. Restore snapshots the pending set and
// calls the resolver without holding the lock.
type RestoreContext struct {
	mu        sync.RWMutex
	resolver  Resolver
	sources   []string
	sourceSet map[string]struct{}
	requested map[string]PackageReference // lower(name) -> reference
	resolved  map[string]ResolvedPackage  // lower(name) -> package
}

// NewRestoreContext creates an empty restore context. A nil resolver is
// allowed; Restore fails with ErrNoResolver until one is provided.
func NewRestoreContext(resolver Resolver) *RestoreContext {
	return &RestoreContext{
		resolver:  resolver,
		sourceSet: make(map[string]struct{}),
		requested: make(map[string]PackageReference),
		resolved:  make(map[string]ResolvedPackage),
	}
}

// AddSource registers an additional package feed. Blank and duplicate
// sources are ignored; order of first appearance is preserved.
func (c *RestoreContext) AddSource(source string) {
	source = strings.TrimSpace(source)
	if source == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sourceSet[source]; ok {
		return
	}
	c.sourceSet[source] = struct{}{}
	c.sources = append(c.sources, source)
}

// Sources returns the registered feeds in registration order.
func (c *RestoreContext) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.sources))
	copy(out, c.sources)
	return out
}

// AddPackage records a package reference for the next Restore. Package names
// are case-insensitive. Re-adding a reference the context already holds, or
// asking for the latest version of a package that is already pinned, is
// idempotent; a concrete version that disagrees with the requested or
// resolved one yields a VersionConflictError.
func (c *RestoreContext) AddPackage(ref PackageReference) error {
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.Name == "" {
		return errors.New("package name required")
	}
	ref.Version = strings.TrimSpace(ref.Version)
	if ref.Version == "" {
		ref.Version = VersionLatest
	}
	if strings.ContainsAny(ref.Version, " \t") {
		return fmt.Errorf("invalid package version %q", ref.Version)
	}

	key := strings.ToLower(ref.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if pkg, ok := c.resolved[key]; ok {
		if ref.Version == VersionLatest || ref.Version == pkg.Version {
			return nil
		}
		return &VersionConflictError{Name: pkg.Name, Existing: pkg.Version, Requested: ref.Version}
	}

	if prev, ok := c.requested[key]; ok {
		switch {
		case ref.Version == VersionLatest || ref.Version == prev.Version:
			return nil
		case prev.Version == VersionLatest:
			// Narrow a latest request to the concrete version.
			c.requested[key] = ref
			return nil
		default:
			return &VersionConflictError{Name: prev.Name, Existing: prev.Version, Requested: ref.Version}
		}
	}

	c.requested[key] = ref
	return nil
}

// PendingPackages returns the references awaiting resolution, name-sorted.
func (c *RestoreContext) PendingPackages() []PackageReference {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pendingLocked()
}

func (c *RestoreContext) pendingLocked() []PackageReference {
	out := make([]PackageReference, 0, len(c.requested))
	for _, ref := range c.requested {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// ResolvedPackages returns every package resolved so far, name-sorted.
func (c *RestoreContext) ResolvedPackages() []ResolvedPackage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ResolvedPackage, 0, len(c.resolved))
	for _, pkg := range c.resolved {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Restore resolves the pending references against the registered sources.
// Successfully resolved packages move to the resolved set; failed ones stay
// pending. A nil result with an error means the batch never ran.
func (c *RestoreContext) Restore(ctx context.Context) (*RestoreResult, error) {
	c.mu.RLock()
	resolver := c.resolver
	sources := make([]string, len(c.sources))
	copy(sources, c.sources)
	pending := c.pendingLocked()
	c.mu.RUnlock()

	if resolver == nil {
		return nil, ErrNoResolver
	}
	if len(pending) == 0 {
		return &RestoreResult{}, nil
	}

	result, err := resolver.Resolve(ctx, sources, pending)
	if err != nil {
		return nil, fmt.Errorf("restore packages: %w", err)
	}
	if result == nil {
		result = &RestoreResult{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := make(map[string]struct{}, len(result.Resolved)+len(result.Errors))
	for _, pkg := range result.Resolved {
		key := strings.ToLower(pkg.Name)
		outcome[key] = struct{}{}
		c.resolved[key] = pkg
		delete(c.requested, key)
	}
	for _, re := range result.Errors {
		outcome[strings.ToLower(re.Reference.Name)] = struct{}{}
	}

	// References the resolver reported nothing about count as failures so
	// the caller never mistakes silence for success.
	for _, ref := range pending {
		if _, ok := outcome[strings.ToLower(ref.Name)]; !ok {
			result.Errors = append(result.Errors, RestoreError{
				Reference: ref,
				Message:   "resolver reported no outcome",
			})
		}
	}

	return result, nil
}
