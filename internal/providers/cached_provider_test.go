package providers

import (
	"context"
	"testing"
	"time"

	"github.com/tsukumogami/cport/internal/semver"
)

// countingRegistry wraps a Registry and counts calls, to verify the cache
// avoids re-querying the inner provider.
type countingRegistry struct {
	inner         Registry
	baselineCalls int
	scfCalls      int
}

func (r *countingRegistry) GetBaselineVersion(ctx context.Context, name string) (semver.Version, error) {
	r.baselineCalls++
	return r.inner.GetBaselineVersion(ctx, name)
}

func (r *countingRegistry) GetControlFile(ctx context.Context, name string, version semver.Version) (*SourceControlFile, error) {
	r.scfCalls++
	return r.inner.GetControlFile(ctx, name, version)
}

func TestCachedProviderBaselineHitsCache(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	fixture := NewFixtureRegistry(dir)
	counting := &countingRegistry{inner: fixture}

	db, err := OpenCache(":memory:")
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer db.Close()

	cached := NewCachedProvider(counting, db, "test", time.Hour, nil)
	ctx := context.Background()

	v1, err := cached.GetBaselineVersion(ctx, "zlib")
	if err != nil {
		t.Fatalf("first GetBaselineVersion failed: %v", err)
	}
	v2, err := cached.GetBaselineVersion(ctx, "zlib")
	if err != nil {
		t.Fatalf("second GetBaselineVersion failed: %v", err)
	}
	if semver.Compare(v1, v2) != semver.Equal {
		t.Errorf("cached result mismatch: %s vs %s", v1, v2)
	}
	if counting.baselineCalls != 1 {
		t.Errorf("inner baseline calls = %d, want 1 (second call should hit cache)", counting.baselineCalls)
	}
}

func TestCachedProviderControlFileHitsCache(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	fixture := NewFixtureRegistry(dir)
	counting := &countingRegistry{inner: fixture}

	db, err := OpenCache(":memory:")
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer db.Close()

	cached := NewCachedProvider(counting, db, "test", time.Hour, nil)
	ctx := context.Background()
	version, _ := semver.Parse("1.2.13", semver.Semver)

	scf1, err := cached.GetControlFile(ctx, "zlib", version)
	if err != nil {
		t.Fatalf("first GetControlFile failed: %v", err)
	}
	scf2, err := cached.GetControlFile(ctx, "zlib", version)
	if err != nil {
		t.Fatalf("second GetControlFile failed: %v", err)
	}
	if scf1.Name != scf2.Name || len(scf1.Dependencies) != len(scf2.Dependencies) {
		t.Errorf("cached SCF mismatch: %+v vs %+v", scf1, scf2)
	}
	if counting.scfCalls != 1 {
		t.Errorf("inner control-file calls = %d, want 1 (second call should hit cache)", counting.scfCalls)
	}
}

func TestCachedProviderExpiresAfterTTL(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	fixture := NewFixtureRegistry(dir)
	counting := &countingRegistry{inner: fixture}

	db, err := OpenCache(":memory:")
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer db.Close()

	cached := NewCachedProvider(counting, db, "test", 0, nil)
	ctx := context.Background()

	if _, err := cached.GetBaselineVersion(ctx, "zlib"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.GetBaselineVersion(ctx, "zlib"); err != nil {
		t.Fatal(err)
	}
	if counting.baselineCalls != 2 {
		t.Errorf("inner baseline calls = %d, want 2 (zero TTL should never be fresh)", counting.baselineCalls)
	}
}
