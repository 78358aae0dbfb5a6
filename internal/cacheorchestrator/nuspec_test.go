package cacheorchestrator

import (
	"strings"
	"testing"

	"github.com/tsukumogami/cport/internal/cacheproviders"
	"github.com/tsukumogami/cport/internal/resolver"
)

func TestNuspecBuilderForPlanRendersCompilerInfo(t *testing.T) {
	action := resolver.InstallPlanAction{}
	action.Abi.CompilerInfo = "GNU"
	action.Abi.Toolset = "13.2.0"
	action.Abi.TripletAbi = "deadbeef"

	build := NuspecBuilderForPlan(action)
	info := cacheproviders.PushInfo{Action: cacheproviders.Action{Name: "zlib", Triplet: "x64-linux", Version: "1.3.1"}}

	nuspec, err := build(info)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{"GNU", "13.2.0", "deadbeef"} {
		if !strings.Contains(nuspec, want) {
			t.Fatalf("expected nuspec to contain %q, got:\n%s", want, nuspec)
		}
	}
}
