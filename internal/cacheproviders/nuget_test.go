package cacheproviders

import (
	"context"
	"os"
	"testing"
)

func TestPackageIDIncludesPrefixWhenSet(t *testing.T) {
	if got := PackageID("zlib", "x64-linux"); got != "zlib_x64-linux" {
		t.Fatalf("expected no prefix by default, got %q", got)
	}

	os.Setenv("X_VCPKG_NUGET_ID_PREFIX", "myorg")
	defer os.Unsetenv("X_VCPKG_NUGET_ID_PREFIX")

	if got := PackageID("zlib", "x64-linux"); got != "myorg_zlib_x64-linux" {
		t.Fatalf("expected prefix applied, got %q", got)
	}
}

func TestPackageVersionDateVersion(t *testing.T) {
	got := PackageVersion("2024-01-05", "deadbeef")
	if got != "2024.1.5-vcpkgdeadbeef" {
		t.Fatalf("expected leading zeros trimmed in date version, got %q", got)
	}
}

func TestPackageVersionDotVersionStripsLeadingV(t *testing.T) {
	got := PackageVersion("v1.3.1", "deadbeef")
	if got != "1.3.1-vcpkgdeadbeef" {
		t.Fatalf("expected leading v stripped, got %q", got)
	}
}

func TestPackageVersionUnrecognizedFallsBackToZero(t *testing.T) {
	got := PackageVersion("unstable", "deadbeef")
	if got != "0.0.0-vcpkgdeadbeef" {
		t.Fatalf("expected 0.0.0 fallback, got %q", got)
	}
}

func TestDetectAuthFailure(t *testing.T) {
	cases := []struct {
		output string
		want   bool
	}{
		{"Authentication may require manual action.", true},
		{"Response status code does not indicate success: 401 Unauthorized", true},
		{`try "-ApiKey AzureDevOps"`, true},
		{"Successfully installed 'zlib 1.3.1'.", false},
	}
	for _, c := range cases {
		if got := detectAuthFailure(c.output); got != c.want {
			t.Errorf("detectAuthFailure(%q) = %v, want %v", c.output, got, c.want)
		}
	}
}

func TestNeedsNuspecDataRequiresSourceOrConfig(t *testing.T) {
	bare := NewNuGetProvider("", "", 0, false, 0, t.TempDir())
	if bare.NeedsNuspecData() {
		t.Fatalf("a provider with no uri/configPath should not need nuspec data")
	}

	withURI := NewNuGetProvider("https://example.test/feed", "", 0, false, 0, t.TempDir())
	if !withURI.NeedsNuspecData() {
		t.Fatalf("a provider with a uri should need nuspec data")
	}
}

func TestPrecheckAlwaysFalse(t *testing.T) {
	p := NewNuGetProvider("https://example.test/feed", "", 0, false, 0, t.TempDir())
	out, err := p.Precheck(context.Background(), []Action{{ABI: "X"}})
	if err != nil {
		t.Fatalf("Precheck: %v", err)
	}
	if out["X"] {
		t.Fatalf("NuGet has no batch existence check; Precheck should always report false")
	}
}
