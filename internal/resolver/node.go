package resolver

import (
	"sort"

	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/providers"
	"github.com/tsukumogami/cport/internal/semver"
)

// node is the resolver's mutable working state for one (name, triplet) pair
// across fixed-point iterations.
type node struct {
	spec pkgspec.PackageSpec

	// version selection
	overridden      bool
	overrideVersion semver.Version
	overlayServed   bool
	overlaySCF      *providers.SourceControlFile
	floorSet        bool
	floor           semver.Version
	floorScheme     semver.Scheme
	baselineApplied bool

	requestType       RequestType
	coreOnly          bool // true if every edge requesting this node set NoDefaultFeatures
	coreOnlySet       bool
	requestedFeatures map[string]bool

	scf              *providers.SourceControlFile
	resolvedVersion  semver.Version
	scfResolvedAt    string // version.String() the current scf was fetched for
	selectedFeatures map[string]bool
	featureDeps      map[string][]pkgspec.FeatureSpec
	packageDeps      map[pkgspec.PackageSpec]bool

	// topological sort state
	visitState int // 0 = unvisited, 1 = on stack, 2 = done
}

func newNode(spec pkgspec.PackageSpec) *node {
	return &node{
		spec:              spec,
		requestedFeatures: make(map[string]bool),
		featureDeps:       make(map[string][]pkgspec.FeatureSpec),
		packageDeps:       make(map[pkgspec.PackageSpec]bool),
	}
}

// sortedFeatureList returns the node's selected features, sorted, always
// including "core", never including "default".
func (n *node) sortedFeatureList() []string {
	seen := make(map[string]bool, len(n.selectedFeatures)+1)
	for f := range n.selectedFeatures {
		if f == pkgspec.DefaultFeature {
			continue
		}
		seen[f] = true
	}
	seen[pkgspec.CoreFeature] = true

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (n *node) sortedPackageDeps() []pkgspec.PackageSpec {
	out := make([]pkgspec.PackageSpec, 0, len(n.packageDeps))
	for d := range n.packageDeps {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Triplet < out[j].Triplet
	})
	return out
}
