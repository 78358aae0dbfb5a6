// Package providers defines the query contracts that feed the resolver
// (internal/resolver): a baseline (port name -> minimum version), a
// versioned-portfile lookup (port name + version -> SourceControlFile), and
// an overlay that shadows both unconditionally. Concrete registry
// implementations (git, filesystem, a real package index) are out of scope;
// this package ships a TOML-backed fixture and a GitHub-backed registry to
// exercise the contracts, plus a TTL-caching decorator usable over either.
package providers

import (
	"context"

	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/semver"
)

// VersionConstraint is either absent (nil) or a minimum-version floor.
type VersionConstraint struct {
	Minimum semver.Version
}

// DependencyRequestedFeature is a feature request that is itself conditional
// on a platform expression.
type DependencyRequestedFeature struct {
	Feature      string
	PlatformExpr *pkgspec.Expr // nil means unconditional
}

// DefaultFeature is a port's declared default feature, also conditional.
type DefaultFeature struct {
	Feature      string
	PlatformExpr *pkgspec.Expr
}

// Dependency is one edge out of a port or feature paragraph.
type Dependency struct {
	Name              string
	RequestedFeatures []DependencyRequestedFeature
	PlatformExpr      *pkgspec.Expr
	HostFlag          bool
	VersionConstraint *VersionConstraint

	// NoDefaultFeatures marks a dependency (or top-level request) as
	// explicitly core-only: the resolver's feature expansion skips the
	// target's default features for this edge even though "default" is
	// the implicit behavior everywhere else.
	NoDefaultFeatures bool
}

// FeatureParagraph describes one named, optional feature of a port.
type FeatureParagraph struct {
	Name         string
	Dependencies []Dependency
	SupportsExpr *pkgspec.Expr
}

// SourceControlFile is a port's resolved metadata for one version.
type SourceControlFile struct {
	Name            string
	Version         semver.Version
	VersionScheme   semver.Scheme
	PortVersion     int
	Dependencies    []Dependency
	DefaultFeatures []DefaultFeature
	SupportsExpr    *pkgspec.Expr
	Features        []FeatureParagraph
}

// FindFeature looks up a feature paragraph by name ("core" is not stored
// here — it is implicit and has no paragraph of its own).
func (scf *SourceControlFile) FindFeature(name string) (*FeatureParagraph, bool) {
	for i := range scf.Features {
		if scf.Features[i].Name == name {
			return &scf.Features[i], true
		}
	}
	return nil, false
}

// IBaselineProvider resolves the baseline (minimum acceptable) version for a
// port name, valid for the whole resolution graph.
type IBaselineProvider interface {
	GetBaselineVersion(ctx context.Context, name string) (semver.Version, error)
}

// IVersionedPortfileProvider resolves a port's SourceControlFile at an exact
// version.
type IVersionedPortfileProvider interface {
	GetControlFile(ctx context.Context, name string, version semver.Version) (*SourceControlFile, error)
}

// IOverlayProvider resolves an ad-hoc, unversioned port directory that
// shadows registry lookups unconditionally when present.
type IOverlayProvider interface {
	// GetControlFile returns (scf, true, nil) if the overlay serves this
	// port, or (nil, false, nil) if it doesn't. A non-nil error means the
	// overlay exists but is malformed.
	GetControlFile(ctx context.Context, name string) (*SourceControlFile, bool, error)
}

// Registry bundles the two registry-backed contracts a single backend
// typically implements together (the fixture and GitHub registries below
// both satisfy this; CachedProvider wraps anything that does).
type Registry interface {
	IBaselineProvider
	IVersionedPortfileProvider
}
