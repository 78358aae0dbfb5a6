package cacheproviders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ObjectBinaryAdapter lifts a batch-oriented IObjectProvider (File, HTTP,
// CLI) into the plan-oriented IBinaryProvider the orchestrator drives:
// prefetch downloads each action's "<abi>.zip" object into a staging
// directory and decompresses it into the package directory, push_success
// zips the package directory and uploads it. None of these backends need
// nuspec data.
type ObjectBinaryAdapter struct {
	name       string
	provider   IObjectProvider
	stagingDir string
	codec      CodecName
}

func NewObjectBinaryAdapter(name string, provider IObjectProvider, stagingDir string) *ObjectBinaryAdapter {
	return &ObjectBinaryAdapter{name: name, provider: provider, stagingDir: stagingDir, codec: CodecZip}
}

func (a *ObjectBinaryAdapter) Name() string { return a.name }

func (a *ObjectBinaryAdapter) NeedsNuspecData() bool { return false }

// Prefetch downloads every action's object in one batch call, then
// decompresses each blob individually, concurrently, so a single corrupt
// archive doesn't fail the whole batch (spec.md §4.8: "the orchestrator then
// parallel-decompresses each blob").
func (a *ObjectBinaryAdapter) Prefetch(ctx context.Context, actions []Action) (map[string]RestoreOutcome, error) {
	out := make(map[string]RestoreOutcome, len(actions))
	if len(actions) == 0 {
		return out, nil
	}

	objects := make([]string, len(actions))
	byObject := make(map[string]Action, len(actions))
	for i, act := range actions {
		id := ObjectID(act.ABI)
		objects[i] = id
		byObject[id] = act
		out[act.ABI] = Unavailable
	}

	if err := a.provider.Download(ctx, objects, a.stagingDir); err != nil {
		// A batch download failure leaves every action Unavailable; the
		// orchestrator marks this provider unavailable for all of them
		// and moves on to the next (spec.md §7: prefetch failures never
		// abort the plan).
		return out, nil
	}

	// Every blob already sits in the staging directory after one batch
	// Download call; decompressing them into per-action package
	// directories is CPU/IO-bound and independent per action, so it fans
	// out with errgroup rather than looping serially (spec.md §4.8: "the
	// orchestrator then parallel-decompresses each blob").
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range objects {
		id := id
		act := byObject[id]
		g.Go(func() error {
			blob := filepath.Join(a.stagingDir, id)
			if _, err := os.Stat(blob); err != nil {
				return nil
			}
			if err := Decompress(a.codec, blob, act.PackageDir); err != nil {
				return nil
			}
			_ = os.Remove(blob)
			mu.Lock()
			out[act.ABI] = Restored
			mu.Unlock()
			return nil
		})
	}
	_ = gctx
	_ = g.Wait() // per-blob failures are absorbed above; nothing to propagate
	return out, nil
}

func (a *ObjectBinaryAdapter) TryRestore(ctx context.Context, act Action) (RestoreOutcome, error) {
	outcomes, err := a.Prefetch(ctx, []Action{act})
	if err != nil {
		return Unavailable, err
	}
	return outcomes[act.ABI], nil
}

func (a *ObjectBinaryAdapter) Precheck(ctx context.Context, actions []Action) (map[string]bool, error) {
	objects := make([]string, len(actions))
	for i, act := range actions {
		objects[i] = ObjectID(act.ABI)
	}
	available, err := a.provider.CheckAvailability(ctx, objects)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(actions))
	for i, act := range actions {
		out[act.ABI] = available[i]
	}
	return out, nil
}

func (a *ObjectBinaryAdapter) PushSuccess(ctx context.Context, info PushInfo) error {
	archive := filepath.Join(a.stagingDir, ObjectID(info.Action.ABI))
	if err := Compress(a.codec, info.Action.PackageDir, archive); err != nil {
		return fmt.Errorf("archiving %s for upload: %w", info.Action.Name, err)
	}
	defer os.Remove(archive)
	return a.provider.Upload(ctx, ObjectID(info.Action.ABI), archive)
}
