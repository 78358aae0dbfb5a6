// Package cacheproviders implements the binary-cache backend contracts
// (spec.md §4.7): a batch-oriented object-store shape shared by every
// backend, and a plan-oriented binary-provider shape the orchestrator
// (internal/cacheorchestrator) drives directly.
package cacheproviders

import (
	"context"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

// Action is the minimal slice of an install-plan action a cache provider
// needs: its package ABI (the cache key) and where to restore/read package
// contents from.
type Action struct {
	ABI         string
	Name        string
	Version     string
	Triplet     string
	PackageDir  string // restore target / upload source directory
}

// ObjectID is the cache key for one archived package, the literal
// "<package_abi>.zip" naming used by every backend except NuGet (§4.7).
func ObjectID(abi string) string {
	return abi + ".zip"
}

// IObjectProvider is the batch-oriented contract shared by the File, HTTP,
// and CLI-shell-out backends.
type IObjectProvider interface {
	Access() cacheconfig.Access
	Download(ctx context.Context, objects []string, targetDir string) error
	Upload(ctx context.Context, objectID string, file string) error
	CheckAvailability(ctx context.Context, objects []string) ([]bool, error)
}

// RestoreOutcome is try_restore's result.
type RestoreOutcome int

const (
	Unavailable RestoreOutcome = iota
	Restored
)

// PushInfo is everything push_success needs about one completed build.
type PushInfo struct {
	Action       Action
	Features     []string
	Dependencies []string // dependency port names, for nuspec generation

	// Nuspec is the pre-rendered nuspec XML document for this push, set by
	// the orchestrator only when at least one configured provider's
	// NeedsNuspecData() returns true (spec.md §4.8 step 3). Empty otherwise.
	Nuspec string
}

// IBinaryProvider is the plan-oriented contract cacheorchestrator drives:
// every method is given the full batch of actions for one prefetch/precheck
// pass so a backend can amortize round trips.
type IBinaryProvider interface {
	Name() string
	Prefetch(ctx context.Context, actions []Action) (map[string]RestoreOutcome, error)
	TryRestore(ctx context.Context, action Action) (RestoreOutcome, error)
	Precheck(ctx context.Context, actions []Action) (map[string]bool, error)
	PushSuccess(ctx context.Context, info PushInfo) error
	NeedsNuspecData() bool
}
