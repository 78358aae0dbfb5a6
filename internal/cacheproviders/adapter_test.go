package cacheproviders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

func TestObjectBinaryAdapterPushThenPrefetchRoundTrip(t *testing.T) {
	root := t.TempDir()
	fp := NewFileProvider(root, cacheconfig.AccessReadWrite)
	adapter := NewObjectBinaryAdapter("files", fp, t.TempDir())

	packageDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(packageDir, "lib.a"), []byte("binary content"), 0o644); err != nil {
		t.Fatal(err)
	}

	act := Action{ABI: "feedface", Name: "zlib", Triplet: "x64-linux", PackageDir: packageDir}
	if err := adapter.PushSuccess(context.Background(), PushInfo{Action: act}); err != nil {
		t.Fatalf("PushSuccess: %v", err)
	}

	avail, err := adapter.Precheck(context.Background(), []Action{act})
	if err != nil {
		t.Fatalf("Precheck: %v", err)
	}
	if !avail["feedface"] {
		t.Fatalf("expected the pushed ABI to be available after push")
	}

	restoreDir := t.TempDir()
	restoreAct := Action{ABI: "feedface", PackageDir: restoreDir}
	outcome, err := adapter.TryRestore(context.Background(), restoreAct)
	if err != nil {
		t.Fatalf("TryRestore: %v", err)
	}
	if outcome != Restored {
		t.Fatalf("expected Restored, got %v", outcome)
	}

	got, err := os.ReadFile(filepath.Join(restoreDir, "lib.a"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(got) != "binary content" {
		t.Fatalf("restored content mismatch: %q", got)
	}
}

func TestObjectBinaryAdapterPrefetchMissingIsUnavailable(t *testing.T) {
	fp := NewFileProvider(t.TempDir(), cacheconfig.AccessRead)
	adapter := NewObjectBinaryAdapter("files", fp, t.TempDir())

	act := Action{ABI: "never-pushed", PackageDir: t.TempDir()}
	outcome, err := adapter.TryRestore(context.Background(), act)
	if err != nil {
		t.Fatalf("TryRestore: %v", err)
	}
	if outcome != Unavailable {
		t.Fatalf("expected Unavailable for a never-pushed ABI, got %v", outcome)
	}
}
