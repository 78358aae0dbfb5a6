package cacheorchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tsukumogami/cport/internal/cacheproviders"
)

// fakeProvider is a hand-built IBinaryProvider for orchestrator tests: it
// reports availability and restore outcomes from maps the test configures,
// and records every call it receives for assertions.
type fakeProvider struct {
	name string

	mu          sync.Mutex
	available   map[string]bool // precheck result per ABI
	restorable  map[string]bool // whether Prefetch/TryRestore actually succeeds per ABI
	prefetched  []string        // ABIs offered to Prefetch, across calls
	pushed      []string
	needsNuspec bool
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, available: map[string]bool{}, restorable: map[string]bool{}}
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) NeedsNuspecData() bool { return f.needsNuspec }

func (f *fakeProvider) Prefetch(ctx context.Context, actions []cacheproviders.Action) (map[string]cacheproviders.RestoreOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]cacheproviders.RestoreOutcome, len(actions))
	for _, a := range actions {
		f.prefetched = append(f.prefetched, a.ABI)
		if f.restorable[a.ABI] {
			out[a.ABI] = cacheproviders.Restored
		} else {
			out[a.ABI] = cacheproviders.Unavailable
		}
	}
	return out, nil
}

func (f *fakeProvider) TryRestore(ctx context.Context, act cacheproviders.Action) (cacheproviders.RestoreOutcome, error) {
	outcomes, _ := f.Prefetch(ctx, []cacheproviders.Action{act})
	return outcomes[act.ABI], nil
}

func (f *fakeProvider) Precheck(ctx context.Context, actions []cacheproviders.Action) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(actions))
	for _, a := range actions {
		out[a.ABI] = f.available[a.ABI]
	}
	return out, nil
}

func (f *fakeProvider) PushSuccess(ctx context.Context, info cacheproviders.PushInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, info.Action.ABI)
	return nil
}

func TestOrchestratorS7PrefetchFailoverBetweenProviders(t *testing.T) {
	// S7 from spec.md §8: P1 reports precheck=available for ABI X but
	// download fails; P2 then succeeds.
	p1 := newFakeProvider("p1")
	p1.available["X"] = true
	// p1.restorable["X"] left false: precheck says yes, prefetch/restore fails.

	p2 := newFakeProvider("p2")
	p2.restorable["X"] = true

	o := New([]cacheproviders.IBinaryProvider{p1, p2}, Options{})
	defer o.Close()

	act := cacheproviders.Action{ABI: "X", Name: "zlib", Triplet: "x64-linux", PackageDir: t.TempDir()}

	avail := o.Precheck(context.Background(), []cacheproviders.Action{act})
	if !avail[0] {
		t.Fatalf("expected precheck to report available")
	}
	if o.Status("X").State() != Available {
		t.Fatalf("expected status Available after precheck, got %v", o.Status("X").State())
	}

	o.Prefetch(context.Background(), []cacheproviders.Action{act})
	// p1 was tried (it was the recorded-available provider) and failed to
	// restore, so it's rolled back to Unknown+unavailable; p2 then succeeds.
	if o.Status("X").State() != Restored {
		t.Fatalf("expected status Restored after prefetch fallback, got %v", o.Status("X").State())
	}
	if !o.Status("X").Unavailable("p1") {
		t.Fatalf("p1 should be recorded unavailable after its failed restore")
	}

	outcome := o.TryRestore(context.Background(), act)
	if outcome != cacheproviders.Restored {
		t.Fatalf("expected TryRestore to report Restored, got %v", outcome)
	}
}

func TestOrchestratorPrefetchSkipsKnownUnavailableProviders(t *testing.T) {
	p1 := newFakeProvider("p1") // never restorable
	p2 := newFakeProvider("p2")
	p2.restorable["X"] = true

	o := New([]cacheproviders.IBinaryProvider{p1, p2}, Options{})
	defer o.Close()

	act := cacheproviders.Action{ABI: "X", PackageDir: t.TempDir()}
	o.Prefetch(context.Background(), []cacheproviders.Action{act})
	if o.Status("X").State() != Restored {
		t.Fatalf("expected eventual restore via p2")
	}

	// A second prefetch pass must not re-offer X to p1: it's already Restored.
	p1.mu.Lock()
	beforeLen := len(p1.prefetched)
	p1.mu.Unlock()
	o.Prefetch(context.Background(), []cacheproviders.Action{act})
	p1.mu.Lock()
	afterLen := len(p1.prefetched)
	p1.mu.Unlock()
	if afterLen != beforeLen {
		t.Fatalf("p1 should not be asked again once the ABI is Restored")
	}
}

func TestOrchestratorPushSuccessRunsAsync(t *testing.T) {
	p1 := newFakeProvider("p1")
	o := New([]cacheproviders.IBinaryProvider{p1}, Options{})
	defer o.Close()

	act := cacheproviders.Action{ABI: "Y", Name: "zlib", Triplet: "x64-linux", PackageDir: t.TempDir()}
	if err := o.PushSuccess(cacheproviders.PushInfo{Action: act}); err != nil {
		t.Fatalf("PushSuccess: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		p1.mu.Lock()
		n := len(p1.pushed)
		p1.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("background push never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestratorPushSuccessNoopWithoutABI(t *testing.T) {
	p1 := newFakeProvider("p1")
	o := New([]cacheproviders.IBinaryProvider{p1}, Options{})
	defer o.Close()

	if err := o.PushSuccess(cacheproviders.PushInfo{Action: cacheproviders.Action{ABI: ""}}); err != nil {
		t.Fatalf("PushSuccess with empty ABI should be a no-op, got %v", err)
	}
	o.Close() // drains; safe to call twice via closeOnce

	p1.mu.Lock()
	defer p1.mu.Unlock()
	if len(p1.pushed) != 0 {
		t.Fatalf("expected no push for an action with empty ABI")
	}
}

func TestOrchestratorPushSuccessRequiresNuspecBuilderWhenNeeded(t *testing.T) {
	p1 := newFakeProvider("p1")
	p1.needsNuspec = true

	o := New([]cacheproviders.IBinaryProvider{p1}, Options{})
	defer o.Close()

	act := cacheproviders.Action{ABI: "Z", PackageDir: t.TempDir()}
	err := o.PushSuccess(cacheproviders.PushInfo{Action: act})
	if err == nil {
		t.Fatalf("expected an error when a provider needs nuspec data but no builder is configured")
	}
}
