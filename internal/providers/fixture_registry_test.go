package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsukumogami/cport/internal/semver"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "baseline.toml"), []byte(`
[baseline.zlib]
version = "1.2.13"
scheme = "semver"
port_version = 0

[baseline.bzip2]
version = "1.0.8"
scheme = "semver"
port_version = 1
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "versions"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "versions", "zlib.toml"), []byte(`
[[versions]]
version = "1.2.13"
scheme = "semver"
port_version = 0
default_features = [{ feature = "static" }]

[[versions.dependencies]]
name = "bzip2"
version_gte = "1.0.8"

[[versions]]
version = "1.2.11"
scheme = "semver"
port_version = 0
`), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFixtureRegistryBaseline(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	reg := NewFixtureRegistry(dir)

	v, err := reg.GetBaselineVersion(context.Background(), "zlib")
	if err != nil {
		t.Fatalf("GetBaselineVersion failed: %v", err)
	}
	want, _ := semver.Parse("1.2.13", semver.Semver)
	if semver.Compare(v, want) != semver.Equal {
		t.Errorf("got %s, want %s", v, want)
	}

	_, err = reg.GetBaselineVersion(context.Background(), "nonexistent")
	if err == nil {
		t.Error("expected error for unknown port")
	}
}

func TestFixtureRegistryControlFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	reg := NewFixtureRegistry(dir)

	version, _ := semver.Parse("1.2.13", semver.Semver)
	scf, err := reg.GetControlFile(context.Background(), "zlib", version)
	if err != nil {
		t.Fatalf("GetControlFile failed: %v", err)
	}
	if scf.Name != "zlib" {
		t.Errorf("Name = %q, want zlib", scf.Name)
	}
	if len(scf.Dependencies) != 1 || scf.Dependencies[0].Name != "bzip2" {
		t.Errorf("Dependencies = %+v, want one dep on bzip2", scf.Dependencies)
	}
	if scf.Dependencies[0].VersionConstraint == nil {
		t.Error("expected a version constraint on the bzip2 dependency")
	}
	if len(scf.DefaultFeatures) != 1 || scf.DefaultFeatures[0].Feature != "static" {
		t.Errorf("DefaultFeatures = %+v, want [static]", scf.DefaultFeatures)
	}
}

func TestFixtureRegistryUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	reg := NewFixtureRegistry(dir)

	missing, _ := semver.Parse("9.9.9", semver.Semver)
	_, err := reg.GetControlFile(context.Background(), "zlib", missing)
	if err == nil {
		t.Error("expected error for unknown version")
	}
}
