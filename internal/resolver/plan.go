// Package resolver implements minimum-version-selection dependency
// resolution: given top-level dependencies, version overrides, a baseline,
// and per-triplet platform variables, it produces a topologically ordered
// ActionPlan satisfying every version floor, feature request, and platform
// constraint, or a structured *ResolutionError explaining the conflict.
package resolver

import (
	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/providers"
	"github.com/tsukumogami/cport/internal/semver"
)

// RequestType records why a node was included in the plan.
type RequestType int

const (
	// UserRequested marks a node seeded directly from a top-level dependency.
	UserRequested RequestType = iota
	// AutoSelected marks a node pulled in transitively.
	AutoSelected
)

func (t RequestType) String() string {
	if t == UserRequested {
		return "user_requested"
	}
	return "auto_selected"
}

// UnsupportedPortAction controls what happens when a chosen version's
// supports_expr fails for the active triplet and no override pins it.
type UnsupportedPortAction int

const (
	// UnsupportedPortError fails resolution (the default).
	UnsupportedPortError UnsupportedPortAction = iota
	// UnsupportedPortWarn allows the plan through with a warning instead.
	UnsupportedPortWarn
)

// Policy bundles the resolver's escape hatches, each scoped per top-level
// port name (not globally): a port opted into use_head_version or editable
// mode skips ABI computation for its action; UnsupportedPortAction governs
// every port uniformly since it is a resolution-wide safety stance.
type Policy struct {
	UnsupportedPortAction UnsupportedPortAction
	UseHeadVersion        map[string]bool
	Editable              map[string]bool
	AllowUnsupported      map[string]bool // ports where a failing supports_expr is tolerated
}

// Override pins an exact version (and optional port_version) for a port,
// regardless of baseline or constraints.
type Override struct {
	Name        string
	Version     semver.Version
	VersionOnly bool // when true, Version.PortVersion is not pinned, only the primary version
}

// VariableProvider resolves the CMake-style variable map for a triplet, used
// to evaluate platform expressions. Unlike the other inputs this is a
// function rather than an interface: there is exactly one operation and no
// implementation needs state beyond a closure over the triplet database.
type VariableProvider func(t pkgspec.Triplet) (map[string]bool, error)

// InstalledState describes a port already present on disk, used to decide
// the already_installed vs remove_actions split at emit time.
type InstalledState struct {
	Version  semver.Version
	Features []string
}

// Input bundles everything the resolver needs to produce a plan.
type Input struct {
	Dependencies []providers.Dependency
	Overrides    []Override
	Toplevel     pkgspec.PackageSpec
	HostTriplet  pkgspec.Triplet
	Overlay      providers.IOverlayProvider // nil if none configured
	Registry     providers.Registry
	Variables    VariableProvider
	Policy       Policy

	// AlreadyInstalled records ports already on disk; resolved nodes that
	// match exactly are reported as already_installed instead of
	// install_actions, and installed ports absent from the resolved node
	// set become remove_actions.
	AlreadyInstalled map[pkgspec.PackageSpec]InstalledState
}

// AbiInfo is attached to an InstallPlanAction after ABI computation
// (internal/abi); it is the zero value until then.
type AbiInfo struct {
	PackageAbi        string
	TripletAbi        string
	Toolset           string
	CompilerInfo      string
	RelativePortFiles []string
	RelativePortHashes []string
	AbiTagFile        string
}

// InstallPlanAction is one planned build/install.
type InstallPlanAction struct {
	Spec                pkgspec.PackageSpec
	SCF                 *providers.SourceControlFile
	FeatureList         []string // sorted, always includes "core", never "default"
	FeatureDependencies map[string][]pkgspec.FeatureSpec
	PackageDependencies []pkgspec.PackageSpec // flat, de-duplicated
	RequestType         RequestType
	UseHeadVersion      bool
	Editable            bool
	OnlyDownloads       bool
	Abi                 AbiInfo
}

// ActionPlan is the resolver's output: three ordered lists.
type ActionPlan struct {
	InstallActions   []InstallPlanAction // topologically sorted, leaves first
	AlreadyInstalled []InstallPlanAction
	RemoveActions    []pkgspec.PackageSpec
}
