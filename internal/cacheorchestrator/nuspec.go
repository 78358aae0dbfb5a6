package cacheorchestrator

import (
	"github.com/tsukumogami/cport/internal/cacheproviders"
	"github.com/tsukumogami/cport/internal/resolver"
)

// NuspecBuilderForPlan adapts one resolved InstallPlanAction's ABI info
// (internal/abi, surfaced on the action by the resolver's emit step) into a
// NuspecBuilder closure, so a real build driver can wire C4's resolution
// output straight into C7/C8's push path without duplicating the
// CompilerID/CompilerVer/TripletAbi plumbing at every call site.
func NuspecBuilderForPlan(action resolver.InstallPlanAction) NuspecBuilder {
	data := cacheproviders.NuSpecData{
		CompilerID:  action.Abi.CompilerInfo,
		CompilerVer: action.Abi.Toolset,
		TripletAbi:  action.Abi.TripletAbi,
	}
	data.RepoURL, data.RepoBranch, data.RepoCommit = cacheproviders.NuGetRepoInfo()

	return func(info cacheproviders.PushInfo) (string, error) {
		return cacheproviders.GenerateNuspec(info, data)
	}
}
