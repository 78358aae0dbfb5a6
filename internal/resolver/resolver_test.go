package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/providers"
	"github.com/tsukumogami/cport/internal/semver"
)

const x64linux pkgspec.Triplet = "x64-linux"

// memRegistry is a hand-built in-memory Registry for resolver tests: a map
// of baseline versions and a map of (name, version text) -> SourceControlFile.
type memRegistry struct {
	baseline map[string]semver.Version
	scfs     map[string]*providers.SourceControlFile
}

func newMemRegistry() *memRegistry {
	return &memRegistry{baseline: map[string]semver.Version{}, scfs: map[string]*providers.SourceControlFile{}}
}

func (r *memRegistry) key(name, versionText string) string { return name + "@" + versionText }

func (r *memRegistry) add(name string, v semver.Version, scf *providers.SourceControlFile) {
	r.baseline[name] = v
	r.scfs[r.key(name, v.Text)] = scf
}

func (r *memRegistry) addVersion(name string, v semver.Version, scf *providers.SourceControlFile) {
	r.scfs[r.key(name, v.Text)] = scf
}

func (r *memRegistry) GetBaselineVersion(ctx context.Context, name string) (semver.Version, error) {
	v, ok := r.baseline[name]
	if !ok {
		return semver.Version{}, &providers.ProviderError{Type: providers.ErrTypeNotFound, Source: "mem", Port: name, Message: "no baseline"}
	}
	return v, nil
}

func (r *memRegistry) GetControlFile(ctx context.Context, name string, version semver.Version) (*providers.SourceControlFile, error) {
	scf, ok := r.scfs[r.key(name, version.Text)]
	if !ok {
		return nil, &providers.ProviderError{Type: providers.ErrTypeNotFound, Source: "mem", Port: name, Message: "no such version"}
	}
	return scf, nil
}

func noVars(t pkgspec.Triplet) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func mustSemver(t *testing.T, text string) semver.Version {
	t.Helper()
	v, err := semver.Parse(text, semver.Semver)
	if err != nil {
		t.Fatalf("parsing %q: %v", text, err)
	}
	return v
}

func mustRelaxed(t *testing.T, text string) semver.Version {
	t.Helper()
	v, err := semver.Parse(text, semver.Relaxed)
	if err != nil {
		t.Fatalf("parsing %q: %v", text, err)
	}
	return v
}

// S1: single-port install.
func TestResolveSinglePort(t *testing.T) {
	reg := newMemRegistry()
	zlibV := mustSemver(t, "1.2.13")
	reg.add("zlib", zlibV, &providers.SourceControlFile{Name: "zlib", Version: zlibV, VersionScheme: semver.Semver})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "zlib"}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}

	plan, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.InstallActions) != 1 {
		t.Fatalf("expected 1 install action, got %d", len(plan.InstallActions))
	}
	action := plan.InstallActions[0]
	if action.Spec.Name != "zlib" || action.Spec.Triplet != x64linux {
		t.Errorf("unexpected spec: %+v", action.Spec)
	}
	if action.RequestType != UserRequested {
		t.Errorf("expected UserRequested, got %v", action.RequestType)
	}
	if got := action.FeatureList; len(got) != 1 || got[0] != "core" {
		t.Errorf("expected [core], got %v", got)
	}
}

// S2: diamond dependency under the Relaxed scheme — two paths request the
// same port at different floors; the higher floor wins and the node
// appears once, before both its dependents in topological order.
func TestResolveDiamondRaisesFloor(t *testing.T) {
	reg := newMemRegistry()

	baseV := mustRelaxed(t, "1.0")
	higherV := mustRelaxed(t, "2.0")
	baseSCF := &providers.SourceControlFile{Name: "base", Version: baseV, VersionScheme: semver.Relaxed}
	higherSCF := &providers.SourceControlFile{Name: "base", Version: higherV, VersionScheme: semver.Relaxed}
	reg.add("base", baseV, baseSCF)
	reg.addVersion("base", higherV, higherSCF)

	midAV := mustRelaxed(t, "1.0")
	reg.add("mid-a", midAV, &providers.SourceControlFile{
		Name: "mid-a", Version: midAV, VersionScheme: semver.Relaxed,
		Dependencies: []providers.Dependency{{Name: "base"}},
	})

	midBV := mustRelaxed(t, "1.0")
	reg.add("mid-b", midBV, &providers.SourceControlFile{
		Name: "mid-b", Version: midBV, VersionScheme: semver.Relaxed,
		Dependencies: []providers.Dependency{{Name: "base", VersionConstraint: &providers.VersionConstraint{Minimum: higherV}}},
	})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "mid-a"}, {Name: "mid-b"}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}

	plan, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.InstallActions) != 3 {
		t.Fatalf("expected 3 install actions, got %d", len(plan.InstallActions))
	}

	var baseAction *InstallPlanAction
	baseIdx, midAIdx, midBIdx := -1, -1, -1
	for i := range plan.InstallActions {
		a := &plan.InstallActions[i]
		switch a.Spec.Name {
		case "base":
			baseAction = a
			baseIdx = i
		case "mid-a":
			midAIdx = i
		case "mid-b":
			midBIdx = i
		}
	}
	if baseAction == nil {
		t.Fatal("base not in plan")
	}
	if baseAction.SCF.Version.Text != "2.0" {
		t.Errorf("expected base raised to 2.0, got %s", baseAction.SCF.Version.Text)
	}
	if baseIdx > midAIdx || baseIdx > midBIdx {
		t.Errorf("expected base (leaf) before its dependents: base=%d mid-a=%d mid-b=%d", baseIdx, midAIdx, midBIdx)
	}
}

// S3: cycle detection produces the exact diagnostic string.
func TestResolveCycleDetected(t *testing.T) {
	reg := newMemRegistry()

	aV := mustSemver(t, "1.0.0")
	bV := mustSemver(t, "1.0.0")
	reg.add("a", aV, &providers.SourceControlFile{
		Name: "a", Version: aV, VersionScheme: semver.Semver,
		Dependencies: []providers.Dependency{{Name: "b"}},
	})
	reg.add("b", bV, &providers.SourceControlFile{
		Name: "b", Version: bV, VersionScheme: semver.Semver,
		Dependencies: []providers.Dependency{{Name: "a"}},
	})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "a"}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}

	_, err := Resolve(context.Background(), in)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	var resErr *ResolutionError
	if !isResolutionError(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %T: %v", err, err)
	}
	if resErr.Kind != CycleDetected {
		t.Fatalf("expected CycleDetected, got %v", resErr.Kind)
	}
	want := "cycle detected during a:x64-linux:\na:x64-linux@1.0.0\nb:x64-linux@1.0.0"
	if resErr.Message != want {
		t.Errorf("unexpected message:\n got: %q\nwant: %q", resErr.Message, want)
	}
}

func isResolutionError(err error, target **ResolutionError) bool {
	if re, ok := err.(*ResolutionError); ok {
		*target = re
		return true
	}
	return false
}

// S4: incomparable schemes at one node surfaces VersionIncomparable with an
// overrides suggestion.
func TestResolveIncomparableSchemesConflict(t *testing.T) {
	reg := newMemRegistry()

	dateV := mustSemverScheme(t, "2023-12-15", semver.Date)
	semverV := mustSemver(t, "1.0.0")
	reg.add("leaf", dateV, &providers.SourceControlFile{Name: "leaf", Version: dateV, VersionScheme: semver.Date})
	reg.addVersion("leaf", semverV, &providers.SourceControlFile{Name: "leaf", Version: semverV, VersionScheme: semver.Semver})

	aV := mustSemver(t, "1.0.0")
	reg.add("a", aV, &providers.SourceControlFile{
		Name: "a", Version: aV, VersionScheme: semver.Semver,
		Dependencies: []providers.Dependency{{Name: "leaf", VersionConstraint: &providers.VersionConstraint{Minimum: semverV}}},
	})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "a"}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}

	_, err := Resolve(context.Background(), in)
	if err == nil {
		t.Fatal("expected a VersionIncomparable error")
	}
	var resErr *ResolutionError
	if !isResolutionError(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %T: %v", err, err)
	}
	if resErr.Kind != VersionIncomparable {
		t.Fatalf("expected VersionIncomparable, got %v", resErr.Kind)
	}
	if !strings.Contains(resErr.Suggestion(), "overrides") {
		t.Errorf("expected an overrides suggestion, got %q", resErr.Suggestion())
	}
}

func mustSemverScheme(t *testing.T, text string, scheme semver.Scheme) semver.Version {
	t.Helper()
	v, err := semver.Parse(text, scheme)
	if err != nil {
		t.Fatalf("parsing %q as %v: %v", text, scheme, err)
	}
	return v
}

// S5: overlay supremacy — an overlay-served port ignores the registry
// entirely, even when a floor would otherwise raise it past the overlay's
// version.
func TestResolveOverlaySupremacy(t *testing.T) {
	reg := newMemRegistry()
	registryV := mustSemver(t, "9.9.9")
	reg.add("zlib", registryV, &providers.SourceControlFile{Name: "zlib", Version: registryV, VersionScheme: semver.Semver})

	overlayV := mustSemver(t, "0.0.1")
	overlay := fakeOverlay{"zlib": {Name: "zlib", Version: overlayV, VersionScheme: semver.Semver}}

	in := Input{
		Dependencies: []providers.Dependency{{Name: "zlib", VersionConstraint: &providers.VersionConstraint{Minimum: registryV}}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Overlay:      overlay,
		Variables:    noVars,
	}

	plan, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.InstallActions) != 1 {
		t.Fatalf("expected 1 install action, got %d", len(plan.InstallActions))
	}
	if got := plan.InstallActions[0].SCF.Version.Text; got != "0.0.1" {
		t.Errorf("expected overlay version 0.0.1 to win, got %s", got)
	}
}

type fakeOverlay map[string]providers.SourceControlFile

func (f fakeOverlay) GetControlFile(ctx context.Context, name string) (*providers.SourceControlFile, bool, error) {
	scf, ok := f[name]
	if !ok {
		return nil, false, nil
	}
	cp := scf
	return &cp, true, nil
}

// S6: default features are expanded per the requesting triplet's variables,
// and a dependency marked NoDefaultFeatures stays core-only.
func TestResolveDefaultFeaturesPerTriplet(t *testing.T) {
	reg := newMemRegistry()

	libV := mustSemver(t, "1.0.0")
	winExpr, err := pkgspec.ParsePlatformExpr("windows")
	if err != nil {
		t.Fatal(err)
	}
	reg.add("lib", libV, &providers.SourceControlFile{
		Name: "lib", Version: libV, VersionScheme: semver.Semver,
		DefaultFeatures: []providers.DefaultFeature{{Feature: "ssl", PlatformExpr: winExpr}},
		Features:        []providers.FeatureParagraph{{Name: "ssl"}},
	})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "lib"}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables: func(t pkgspec.Triplet) (map[string]bool, error) {
			return map[string]bool{"windows": false}, nil
		},
	}

	plan, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	feats := plan.InstallActions[0].FeatureList
	for _, f := range feats {
		if f == "ssl" {
			t.Errorf("expected ssl not selected on a non-windows triplet, got %v", feats)
		}
	}

	// Now re-resolve with NoDefaultFeatures set: even a matching platform
	// shouldn't pull in the default.
	in.Dependencies = []providers.Dependency{{Name: "lib", NoDefaultFeatures: true}}
	in.Variables = func(t pkgspec.Triplet) (map[string]bool, error) {
		return map[string]bool{"windows": true}, nil
	}
	plan, err = Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	feats = plan.InstallActions[0].FeatureList
	for _, f := range feats {
		if f == "ssl" {
			t.Errorf("expected ssl suppressed by no_default_features, got %v", feats)
		}
	}
}

// Property: unknown requested feature errors.
func TestResolveUnknownFeatureErrors(t *testing.T) {
	reg := newMemRegistry()
	v := mustSemver(t, "1.0.0")
	reg.add("lib", v, &providers.SourceControlFile{Name: "lib", Version: v, VersionScheme: semver.Semver})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "lib", RequestedFeatures: []providers.DependencyRequestedFeature{{Feature: "nope"}}}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}
	_, err := Resolve(context.Background(), in)
	if err == nil {
		t.Fatal("expected an UnsupportedFeature error")
	}
	var resErr *ResolutionError
	if !isResolutionError(err, &resErr) || resErr.Kind != UnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %v", err)
	}
}

// Property: a self-referencing feature is legal and not a cycle.
func TestResolveSelfReferenceIsNotACycle(t *testing.T) {
	reg := newMemRegistry()
	v := mustSemver(t, "1.0.0")
	reg.add("lib", v, &providers.SourceControlFile{
		Name: "lib", Version: v, VersionScheme: semver.Semver,
		Features: []providers.FeatureParagraph{
			{Name: "extra", Dependencies: []providers.Dependency{{Name: "lib"}}},
		},
	})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "lib", RequestedFeatures: []providers.DependencyRequestedFeature{{Feature: "extra"}}}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}
	plan, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.InstallActions) != 1 {
		t.Fatalf("expected 1 install action, got %d", len(plan.InstallActions))
	}
}

// Property: determinism — resolving the same input twice yields identical
// plans (install order and feature lists).
func TestResolveDeterministic(t *testing.T) {
	reg := newMemRegistry()
	zV := mustSemver(t, "1.2.13")
	reg.add("zlib", zV, &providers.SourceControlFile{Name: "zlib", Version: zV, VersionScheme: semver.Semver})
	oV := mustSemver(t, "1.0.0")
	reg.add("openssl", oV, &providers.SourceControlFile{Name: "openssl", Version: oV, VersionScheme: semver.Semver})

	in := Input{
		Dependencies: []providers.Dependency{{Name: "zlib"}, {Name: "openssl"}},
		Toplevel:     pkgspec.PackageSpec{Name: "app", Triplet: x64linux},
		HostTriplet:  x64linux,
		Registry:     reg,
		Variables:    noVars,
	}

	plan1, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	plan2, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan1.InstallActions) != len(plan2.InstallActions) {
		t.Fatalf("mismatched plan lengths")
	}
	for i := range plan1.InstallActions {
		if plan1.InstallActions[i].Spec != plan2.InstallActions[i].Spec {
			t.Errorf("order mismatch at %d: %v vs %v", i, plan1.InstallActions[i].Spec, plan2.InstallActions[i].Spec)
		}
	}
}
