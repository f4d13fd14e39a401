// Package registry implements Component B of the package manager: providers
// that resolve (port, version) -> source tree + manifest from a baseline,
// overlay, or override source, composed in priority order.
package registry

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// Registry answers the two queries every port source must support.
type Registry interface {
	// BaselineVersion returns the version a baseline snapshot assigns to
	// port, or an error if the baseline doesn't mention it.
	BaselineVersion(ctx context.Context, port string) (vcgo.Version, error)

	// SourceControlFile returns the manifest for port at version.
	SourceControlFile(ctx context.Context, port string, version vcgo.Version) (*vcgo.SourceControlFile, error)
}

// VersionAxis reports whether a Registry has a meaningful version axis.
// Overlay providers don't: whatever is on disk is "the" version, so
// BaselineVersion is meaningless for them.
type VersionAxis interface {
	HasVersionAxis() bool
}

// Kind names the five registry provider variants from spec.md §4.B.
type Kind string

const (
	KindBuiltin    Kind = "builtin"
	KindGit        Kind = "git"
	KindFilesystem Kind = "filesystem"
	KindOverlay    Kind = "overlay"
	KindOverride   Kind = "override"
)

// NamedRegistry pairs a Registry with the Kind-specific location it was
// constructed from and the port-name glob patterns it claims, per
// spec.md §4.H's "registries" field.
type NamedRegistry struct {
	Kind     Kind
	Location string
	Registry Registry
	Packages []string // glob patterns; empty means "matches everything"
}

// Matches reports whether port matches one of r's declared package
// patterns (or r claims all ports, when Packages is empty).
func (r NamedRegistry) Matches(port string) bool {
	if len(r.Packages) == 0 {
		return true
	}
	for _, pat := range r.Packages {
		if ok, _ := matchGlob(pat, port); ok {
			return true
		}
	}
	return false
}

// matchGlob supports a single trailing "*" wildcard, which covers every
// pattern shape vcpkg-style registries declare ("boost-*", "*", exact
// names).
func matchGlob(pattern, name string) (bool, error) {
	if pattern == "*" {
		return true, nil
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix, nil
	}
	return pattern == name, nil
}

// ProviderSet composes override, overlay, named registries, and a default
// registry, consulted in exactly that priority order (spec.md §4.B).
type ProviderSet struct {
	Override        Registry // may be nil
	Overlays        []Registry
	Named           []NamedRegistry
	DefaultRegistry Registry // may be nil
}

// Resolve finds the highest-priority Registry that should answer for port,
// per spec.md §4.B's "override > overlay > named-registry-matching-port >
// default-registry".
func (ps *ProviderSet) Resolve(port string) (Registry, error) {
	if ps.Override != nil {
		if _, err := ps.Override.BaselineVersion(context.Background(), port); err == nil {
			return ps.Override, nil
		}
	}
	for _, ov := range ps.Overlays {
		if _, err := ov.BaselineVersion(context.Background(), port); err == nil {
			return ov, nil
		}
	}
	for _, nr := range ps.Named {
		if nr.Matches(port) {
			return nr.Registry, nil
		}
	}
	if ps.DefaultRegistry != nil {
		return ps.DefaultRegistry, nil
	}
	return nil, errors.Errorf("no registry configured can resolve port %q", port)
}

// BaselineVersion resolves port to the Registry that should answer for it,
// then queries that registry's baseline.
func (ps *ProviderSet) BaselineVersion(ctx context.Context, port string) (vcgo.Version, error) {
	r, err := ps.Resolve(port)
	if err != nil {
		return vcgo.Version{}, err
	}
	return r.BaselineVersion(ctx, port)
}

// SourceControlFile resolves port to the Registry that should answer for
// it, then loads the manifest for version from that registry.
func (ps *ProviderSet) SourceControlFile(ctx context.Context, port string, version vcgo.Version) (*vcgo.SourceControlFile, error) {
	r, err := ps.Resolve(port)
	if err != nil {
		return nil, err
	}
	return r.SourceControlFile(ctx, port, version)
}
