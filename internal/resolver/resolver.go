package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/providers"
	"github.com/tsukumogami/cport/internal/semver"
)

// graph is the resolver's working state for one Resolve call.
type graph struct {
	ctx   context.Context
	input Input

	nodes   map[pkgspec.PackageSpec]*node
	order   []pkgspec.PackageSpec // insertion order, deterministic
	varsFor map[pkgspec.Triplet]map[string]bool

	overrides map[string]Override
}

// Resolve runs minimum-version selection over in and returns an ActionPlan,
// or a *ResolutionError describing the first conflict encountered.
func Resolve(ctx context.Context, in Input) (*ActionPlan, error) {
	g := &graph{
		ctx:       ctx,
		input:     in,
		nodes:     make(map[pkgspec.PackageSpec]*node),
		varsFor:   make(map[pkgspec.Triplet]map[string]bool),
		overrides: make(map[string]Override),
	}
	for _, o := range in.Overrides {
		g.overrides[o.Name] = o
	}

	toplevelVars, err := g.variablesFor(in.Toplevel.Triplet)
	if err != nil {
		return nil, err
	}

	// 1. Seed.
	for _, dep := range in.Dependencies {
		ok, err := evalOrTrue(dep.PlatformExpr, toplevelVars)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		triplet := in.Toplevel.Triplet
		if dep.HostFlag {
			triplet = in.HostTriplet
		}
		spec := pkgspec.PackageSpec{Name: dep.Name, Triplet: triplet}
		n := g.getOrCreate(spec)
		n.requestType = UserRequested
		if err := g.applyDependencyToNode(n, dep); err != nil {
			return nil, err
		}
	}

	// 2-5. Fixed point over version choice, feature expansion, dependency edges.
	for {
		changed := false
		for i := 0; i < len(g.order); i++ {
			n := g.nodes[g.order[i]]
			nodeChanged, err := g.processNode(n)
			if err != nil {
				return nil, err
			}
			changed = changed || nodeChanged
		}
		if !changed {
			break
		}
	}

	// 6. Supports check.
	for _, spec := range g.order {
		n := g.nodes[spec]
		if err := g.checkSupports(n); err != nil {
			return nil, err
		}
	}

	// 7-8. Cycle detection + topological emit.
	return g.emit()
}

func (g *graph) variablesFor(t pkgspec.Triplet) (map[string]bool, error) {
	if vars, ok := g.varsFor[t]; ok {
		return vars, nil
	}
	if g.input.Variables == nil {
		return map[string]bool{}, nil
	}
	vars, err := g.input.Variables(t)
	if err != nil {
		return nil, fmt.Errorf("resolving platform variables for triplet %s: %w", t, err)
	}
	g.varsFor[t] = vars
	return vars, nil
}

func (g *graph) getOrCreate(spec pkgspec.PackageSpec) *node {
	if n, ok := g.nodes[spec]; ok {
		return n
	}
	n := newNode(spec)
	g.nodes[spec] = n
	g.order = append(g.order, spec)
	return n
}

func evalOrTrue(expr *pkgspec.Expr, vars map[string]bool) (bool, error) {
	if expr == nil {
		return true, nil
	}
	return expr.Eval(vars)
}

// applyDependencyToNode merges one Dependency edge's requirements (version
// floor, requested features, core-only-ness) into the target node n. Used
// both for top-level seeding and for dependency-edge refinement.
func (g *graph) applyDependencyToNode(n *node, dep providers.Dependency) error {
	vars, err := g.variablesFor(n.spec.Triplet)
	if err != nil {
		return err
	}

	n.requestedFeatures[pkgspec.CoreFeature] = true
	for _, rf := range dep.RequestedFeatures {
		ok, err := evalOrTrue(rf.PlatformExpr, vars)
		if err != nil {
			return err
		}
		if ok {
			n.requestedFeatures[rf.Feature] = true
		}
	}

	if !n.coreOnlySet {
		n.coreOnly = dep.NoDefaultFeatures
		n.coreOnlySet = true
	} else if !dep.NoDefaultFeatures {
		// Any edge that wants defaults wins over a more restrictive earlier edge.
		n.coreOnly = false
	}

	if dep.VersionConstraint != nil {
		if err := g.raiseFloor(n, dep.VersionConstraint.Minimum); err != nil {
			return err
		}
	}
	return nil
}

// raiseFloor raises n's version floor to max(current, v) using compare_any,
// returning a VersionIncomparable error if the schemes can't be compared.
func (g *graph) raiseFloor(n *node, v semver.Version) error {
	if n.overridden || n.overlayServed {
		return nil // overrides/overlay ignore floors entirely
	}
	if !n.floorSet {
		n.floor = v
		n.floorSet = true
		return nil
	}
	cmp := semver.Compare(n.floor, v)
	switch cmp {
	case semver.Less:
		n.floor = v
	case semver.Greater, semver.Equal:
		// no change
	case semver.Unknown:
		return &ResolutionError{
			Kind:    VersionIncomparable,
			Port:    n.spec.Name,
			Message: fmt.Sprintf("version %s and version %s for %s have incomparable schemes", n.floor, v, n.spec.Name),
			OverrideSuggestion: fmt.Sprintf(
				"{\n  \"overrides\": [\n    { \"name\": %q, \"version\": %q }\n  ]\n}", n.spec.Name, v.Text),
		}
	}
	return nil
}

// processNode advances node n by one round: choosing its version/SCF,
// expanding its effective feature set, and walking its dependency edges.
// Returns whether anything about n's resolved state changed this round.
func (g *graph) processNode(n *node) (bool, error) {
	changed := false

	if !n.overridden {
		if ov, ok := g.overrides[n.spec.Name]; ok {
			n.overridden = true
			n.overrideVersion = ov.Version
			changed = true
		}
	}

	if !n.overlayServed && g.input.Overlay != nil {
		scf, ok, err := g.input.Overlay.GetControlFile(g.ctx, n.spec.Name)
		if err != nil {
			return false, &ResolutionError{Kind: OverlayPatchDir, Port: n.spec.Name, Message: "overlay lookup failed", Err: err}
		}
		if ok {
			n.overlayServed = true
			n.overlaySCF = scf
			changed = true
		}
	}

	version, scf, err := g.chooseVersion(n)
	if err != nil {
		return false, err
	}

	if n.scf == nil || n.scfResolvedAt != version.String() {
		n.scf = scf
		n.resolvedVersion = version
		n.scfResolvedAt = version.String()
		changed = true
	}

	featuresChanged, err := g.expandFeatures(n)
	if err != nil {
		return false, err
	}
	changed = changed || featuresChanged

	edgesChanged, err := g.walkDependencyEdges(n)
	if err != nil {
		return false, err
	}
	changed = changed || edgesChanged

	return changed, nil
}

// chooseVersion implements step 2: override > overlay > baseline+floor.
func (g *graph) chooseVersion(n *node) (semver.Version, *providers.SourceControlFile, error) {
	if n.overlayServed {
		return n.overlaySCF.Version, n.overlaySCF, nil
	}

	if n.overridden {
		scf, err := g.input.Registry.GetControlFile(g.ctx, n.spec.Name, n.overrideVersion)
		if err != nil {
			return semver.Version{}, nil, &ResolutionError{Kind: BaselineMissing, Port: n.spec.Name, Message: "override version not found in registry", Err: err}
		}
		return n.overrideVersion, scf, nil
	}

	if !n.baselineApplied {
		baseline, err := g.input.Registry.GetBaselineVersion(g.ctx, n.spec.Name)
		if err != nil {
			return semver.Version{}, nil, &ResolutionError{Kind: BaselineMissing, Port: n.spec.Name, Message: "no baseline version for this port", Err: err}
		}
		if err := g.raiseFloor(n, baseline); err != nil {
			return semver.Version{}, nil, err
		}
		n.baselineApplied = true
	}

	scf, err := g.input.Registry.GetControlFile(g.ctx, n.spec.Name, n.floor)
	if err != nil {
		return semver.Version{}, nil, &ResolutionError{Kind: BaselineMissing, Port: n.spec.Name, Message: fmt.Sprintf("no control file for %s at version %s", n.spec.Name, n.floor), Err: err}
	}
	return n.floor, scf, nil
}

// expandFeatures implements step 3: user-requested ∪ (unless core-only) the
// matching default features. "*" is preserved, never expanded or validated.
func (g *graph) expandFeatures(n *node) (bool, error) {
	if n.scf == nil {
		return false, nil
	}
	vars, err := g.variablesFor(n.spec.Triplet)
	if err != nil {
		return false, err
	}

	next := map[string]bool{pkgspec.CoreFeature: true}
	for f := range n.requestedFeatures {
		if f != pkgspec.DefaultFeature {
			next[f] = true
		}
	}
	if !n.coreOnly {
		for _, d := range n.scf.DefaultFeatures {
			ok, err := evalOrTrue(d.PlatformExpr, vars)
			if err != nil {
				return false, err
			}
			if ok {
				next[d.Feature] = true
			}
		}
	}

	for f := range next {
		if f == pkgspec.CoreFeature || f == pkgspec.Wildcard {
			continue
		}
		if _, ok := n.scf.FindFeature(f); !ok {
			return false, &ResolutionError{
				Kind:    UnsupportedFeature,
				Port:    n.spec.Name,
				Message: fmt.Sprintf("feature %q does not exist on %s", f, n.spec.Name),
			}
		}
	}

	if mapsEqual(n.selectedFeatures, next) {
		return false, nil
	}
	n.selectedFeatures = next
	return true, nil
}

func mapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// walkDependencyEdges implements step 4: for each selected feature (and
// core), walk its dependency list, filtered by the dependent's own
// platform variables, creating or refining child nodes.
func (g *graph) walkDependencyEdges(n *node) (bool, error) {
	if n.scf == nil || n.selectedFeatures == nil {
		return false, nil
	}
	vars, err := g.variablesFor(n.spec.Triplet)
	if err != nil {
		return false, err
	}

	changed := false
	for feature := range n.selectedFeatures {
		if feature == pkgspec.Wildcard {
			continue // preserved, not expanded: no dependency walk
		}
		deps := n.scf.Dependencies
		if feature != pkgspec.CoreFeature {
			fp, ok := n.scf.FindFeature(feature)
			if !ok {
				continue
			}
			deps = fp.Dependencies
		}

		var featureTargets []pkgspec.FeatureSpec
		for _, dep := range deps {
			ok, err := evalOrTrue(dep.PlatformExpr, vars)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}

			childTriplet := n.spec.Triplet
			if dep.HostFlag {
				childTriplet = g.input.HostTriplet
			}
			childSpec := pkgspec.PackageSpec{Name: dep.Name, Triplet: childTriplet}

			isSelf := childSpec == n.spec
			child := g.getOrCreate(childSpec)
			if child.requestType != UserRequested {
				child.requestType = AutoSelected
			}

			before := snapshotNode(child)
			if err := g.applyDependencyToNode(child, dep); err != nil {
				return false, err
			}
			if !isSelf && !n.packageDeps[childSpec] {
				n.packageDeps[childSpec] = true
				changed = true
			}
			if !nodeSnapshotEqual(before, snapshotNode(child)) {
				changed = true
			}

			featureTargets = append(featureTargets, pkgspec.FeatureSpec{PackageSpec: childSpec, Feature: pkgspec.CoreFeature})
			for _, rf := range dep.RequestedFeatures {
				featureTargets = append(featureTargets, pkgspec.FeatureSpec{PackageSpec: childSpec, Feature: rf.Feature})
			}
		}
		if !edgesEqual(n.featureDeps[feature], featureTargets) {
			n.featureDeps[feature] = featureTargets
			changed = true
		}
	}
	return changed, nil
}

type nodeSnapshot struct {
	floor    string
	coreOnly bool
	features string
}

func snapshotNode(n *node) nodeSnapshot {
	feats := make([]string, 0, len(n.requestedFeatures))
	for f := range n.requestedFeatures {
		feats = append(feats, f)
	}
	sort.Strings(feats)
	floor := ""
	if n.floorSet {
		floor = n.floor.String()
	}
	return nodeSnapshot{floor: floor, coreOnly: n.coreOnly, features: fmt.Sprint(feats)}
}

func nodeSnapshotEqual(a, b nodeSnapshot) bool {
	return a == b
}

func edgesEqual(a, b []pkgspec.FeatureSpec) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[pkgspec.FeatureSpec]bool, len(a))
	for _, e := range a {
		seen[e] = true
	}
	for _, e := range b {
		if !seen[e] {
			return false
		}
	}
	return true
}

// checkSupports implements step 6: a failing supports_expr aborts
// resolution unless the port is overridden or allow-unsupported applies.
func (g *graph) checkSupports(n *node) error {
	if n.overridden {
		return nil
	}
	if g.input.Policy.AllowUnsupported[n.spec.Name] {
		return nil
	}
	vars, err := g.variablesFor(n.spec.Triplet)
	if err != nil {
		return err
	}

	check := func(expr *pkgspec.Expr) error {
		if expr == nil {
			return nil
		}
		ok, err := expr.Eval(vars)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		msg := fmt.Sprintf("%s does not support the active triplet", n.spec)
		if g.input.Policy.UnsupportedPortAction == UnsupportedPortWarn {
			return nil
		}
		return &ResolutionError{Kind: UnsupportedPortSupportsExpression, Port: n.spec.Name, Message: msg}
	}

	if err := check(n.scf.SupportsExpr); err != nil {
		return err
	}
	for feature := range n.selectedFeatures {
		if feature == pkgspec.CoreFeature || feature == pkgspec.Wildcard {
			continue
		}
		fp, ok := n.scf.FindFeature(feature)
		if !ok {
			continue
		}
		if err := check(fp.SupportsExpr); err != nil {
			return err
		}
	}
	return nil
}

// emit implements steps 7-8: DFS cycle detection (self-references merge
// into the same node and are never cycles, since walkDependencyEdges never
// records a packageDeps edge for them) followed by post-order topological
// emission, leaves first.
func (g *graph) emit() (*ActionPlan, error) {
	topo := make([]pkgspec.PackageSpec, 0, len(g.order))
	var stack []pkgspec.PackageSpec

	var visit func(spec pkgspec.PackageSpec) error
	visit = func(spec pkgspec.PackageSpec) error {
		n := g.nodes[spec]
		switch n.visitState {
		case 2:
			return nil
		case 1:
			idx := stackIndex(stack, spec)
			lines := make([]string, 0, len(stack)-idx)
			for _, s := range stack[idx:] {
				sn := g.nodes[s]
				lines = append(lines, fmt.Sprintf("%s@%s", s, sn.resolvedVersion))
			}
			return newCycleError(stack[idx].String(), lines)
		}

		n.visitState = 1
		stack = append(stack, spec)
		for _, dep := range n.sortedPackageDeps() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		n.visitState = 2
		topo = append(topo, spec)
		return nil
	}

	for _, spec := range g.order {
		if err := visit(spec); err != nil {
			return nil, err
		}
	}

	plan := &ActionPlan{}
	for _, spec := range topo {
		n := g.nodes[spec]
		action := InstallPlanAction{
			Spec:                spec,
			SCF:                 n.scf,
			FeatureList:         n.sortedFeatureList(),
			FeatureDependencies: n.featureDeps,
			PackageDependencies: n.sortedPackageDeps(),
			RequestType:         n.requestType,
			UseHeadVersion:      g.input.Policy.UseHeadVersion[spec.Name],
			Editable:            g.input.Policy.Editable[spec.Name],
		}

		if installed, ok := g.input.AlreadyInstalled[spec]; ok &&
			semver.Compare(installed.Version, n.resolvedVersion) == semver.Equal &&
			stringsEqual(installed.Features, action.FeatureList) {
			plan.AlreadyInstalled = append(plan.AlreadyInstalled, action)
			continue
		}
		plan.InstallActions = append(plan.InstallActions, action)
	}

	for spec := range g.input.AlreadyInstalled {
		if _, ok := g.nodes[spec]; !ok {
			plan.RemoveActions = append(plan.RemoveActions, spec)
		}
	}
	sort.Slice(plan.RemoveActions, func(i, j int) bool {
		if plan.RemoveActions[i].Name != plan.RemoveActions[j].Name {
			return plan.RemoveActions[i].Name < plan.RemoveActions[j].Name
		}
		return plan.RemoveActions[i].Triplet < plan.RemoveActions[j].Triplet
	})

	return plan, nil
}

func stackIndex(stack []pkgspec.PackageSpec, spec pkgspec.PackageSpec) int {
	for i, s := range stack {
		if s == spec {
			return i
		}
	}
	return 0
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}
