package cacheorchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tsukumogami/cport/internal/cacheproviders"
	"github.com/tsukumogami/cport/internal/log"
)

// NuspecBuilder renders the nuspec XML a NuGet-flavored provider needs
// before push_success, closing over whatever per-action compiler/SCF data
// cacheproviders.NuSpecData requires but the orchestrator itself doesn't
// track (spec.md §4.8 step 3).
type NuspecBuilder func(info cacheproviders.PushInfo) (string, error)

// Options configures an Orchestrator.
type Options struct {
	// CleanPackages renames a pushed action's package directory to a
	// "_push_N" sibling instead of leaving it in place (spec.md §4.8 step 2).
	CleanPackages bool
	NuspecBuilder NuspecBuilder
	Logger        log.Logger
}

type pushJob struct {
	info           cacheproviders.PushInfo
	cleanAfterPush bool
}

// Orchestrator drives a list of cacheproviders.IBinaryProvider in
// configuration order: prefetch/precheck run on the calling goroutine
// (fanning out internally where it's safe to), push_success is handed to a
// single background worker goroutine so a slow upload never blocks the
// build loop (spec.md §4.8, §5).
//
// There is no C++ destructor in Go; Close is the idiomatic replacement for
// "wait_for_async_complete" — the only point before process exit where every
// push is guaranteed complete. There is no separate wait method that blocks
// on pending pushes while still accepting new ones.
type Orchestrator struct {
	providers []cacheproviders.IBinaryProvider
	opts      Options

	mu       sync.Mutex // guards statuses; taken by the calling goroutine and by Precheck's fan-out goroutines
	statuses map[string]*CacheStatus

	queue      chan pushJob
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	pushCount  atomic.Int64
	pendingCnt atomic.Int64
}

// New builds an Orchestrator over providers (first to last is precedence
// order for prefetch/precheck) and starts its background push worker.
func New(providers []cacheproviders.IBinaryProvider, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.NewNoop()
	}
	o := &Orchestrator{
		providers: providers,
		opts:      opts,
		statuses:  make(map[string]*CacheStatus),
		queue:     make(chan pushJob, 64),
		done:      make(chan struct{}),
	}
	o.wg.Add(1)
	go o.worker()
	return o
}

// Status returns the CacheStatus for abi, creating it (as Unknown) on
// first query (spec.md §3 lifecycle).
func (o *Orchestrator) Status(abi string) *CacheStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked(abi)
}

func (o *Orchestrator) statusLocked(abi string) *CacheStatus {
	s, ok := o.statuses[abi]
	if !ok {
		s = newCacheStatus()
		o.statuses[abi] = s
	}
	return s
}

// Prefetch drives every configured provider, in order, over actions: each
// provider is only offered the subset of actions whose CacheStatus would
// still accept it, it downloads+decompresses what it can, and every action
// it didn't restore is marked unavailable for that provider so later
// providers don't retry it (spec.md §4.8 step 1). Provider errors are
// logged as warnings and never abort the pass (§7).
func (o *Orchestrator) Prefetch(ctx context.Context, actions []cacheproviders.Action) {
	if len(actions) == 0 {
		return
	}
	for _, p := range o.providers {
		eligible := o.eligibleForRestore(p.Name(), actions)
		if len(eligible) == 0 {
			continue
		}
		outcomes, err := p.Prefetch(ctx, eligible)
		if err != nil {
			o.opts.Logger.Warn("cache prefetch failed", "provider", p.Name(), "error", err)
			o.markAllUnavailable(p.Name(), eligible)
			continue
		}
		o.applyOutcomes(p.Name(), eligible, outcomes)
	}
}

func (o *Orchestrator) eligibleForRestore(provider string, actions []cacheproviders.Action) []cacheproviders.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]cacheproviders.Action, 0, len(actions))
	for _, a := range actions {
		if o.statusLocked(a.ABI).ShouldAttemptRestore(provider) {
			out = append(out, a)
		}
	}
	return out
}

func (o *Orchestrator) applyOutcomes(provider string, actions []cacheproviders.Action, outcomes map[string]cacheproviders.RestoreOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range actions {
		st := o.statusLocked(a.ABI)
		if outcomes[a.ABI] == cacheproviders.Restored {
			st.MarkRestored()
		} else {
			st.MarkUnavailable(provider)
		}
	}
}

func (o *Orchestrator) markAllUnavailable(provider string, actions []cacheproviders.Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range actions {
		o.statusLocked(a.ABI).MarkUnavailable(provider)
	}
}

// TryRestore restores one action: it returns Restored at once if the ABI is
// already Restored, and otherwise asks each provider still eligible for this
// ABI (the one recorded Available, or any not yet marked unavailable while
// Unknown), in order, until one restores it (spec.md §4.8 "CacheStatus
// return to caller").
func (o *Orchestrator) TryRestore(ctx context.Context, act cacheproviders.Action) cacheproviders.RestoreOutcome {
	o.mu.Lock()
	restored := o.statusLocked(act.ABI).State() == Restored
	o.mu.Unlock()
	if restored {
		return cacheproviders.Restored
	}
	for _, p := range o.providers {
		if !o.eligibleSingle(p.Name(), act.ABI) {
			continue
		}
		outcome, err := p.TryRestore(ctx, act)
		if err != nil {
			o.opts.Logger.Warn("cache restore failed", "provider", p.Name(), "abi", act.ABI, "error", err)
			o.markAllUnavailable(p.Name(), []cacheproviders.Action{act})
			continue
		}
		if outcome == cacheproviders.Restored {
			o.mu.Lock()
			o.statusLocked(act.ABI).MarkRestored()
			o.mu.Unlock()
			return cacheproviders.Restored
		}
		o.markAllUnavailable(p.Name(), []cacheproviders.Action{act})
	}
	return cacheproviders.Unavailable
}

func (o *Orchestrator) eligibleSingle(provider, abi string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked(abi).ShouldAttemptRestore(provider)
}

// Precheck reports, per ABI and in input order, whether any provider
// believes it has the artifact — a provider reporting "available" marks the
// status Available(provider) so a later Prefetch/TryRestore tries that
// provider first (spec.md §4.8 "precheck availability"). Providers are
// queried concurrently via errgroup since precheck is read-only.
func (o *Orchestrator) Precheck(ctx context.Context, actions []cacheproviders.Action) []bool {
	out := make([]bool, len(actions))
	if len(actions) == 0 {
		return out
	}

	type result struct {
		provider string
		found    map[string]bool
	}
	results := make([]result, len(o.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range o.providers {
		i, p := i, p
		g.Go(func() error {
			eligible := o.eligibleForPrecheck(p.Name(), actions)
			if len(eligible) == 0 {
				return nil
			}
			found, err := p.Precheck(gctx, eligible)
			if err != nil {
				o.opts.Logger.Warn("cache precheck failed", "provider", p.Name(), "error", err)
				return nil
			}
			results[i] = result{provider: p.Name(), found: found}
			return nil
		})
	}
	_ = g.Wait() // every goroutine above already swallows its own error

	o.mu.Lock()
	for _, r := range results {
		if r.found == nil {
			continue
		}
		for abi, ok := range r.found {
			st := o.statusLocked(abi)
			// Results are applied in provider order: once an earlier provider
			// has confirmed this ABI, a later provider's answer is dropped.
			if !st.ShouldAttemptPrecheck(r.provider) {
				continue
			}
			if ok {
				st.MarkAvailable(r.provider)
			} else {
				st.MarkUnavailable(r.provider)
			}
		}
	}
	for i, a := range actions {
		out[i] = o.statusLocked(a.ABI).State() != Unknown
	}
	o.mu.Unlock()
	return out
}

func (o *Orchestrator) eligibleForPrecheck(provider string, actions []cacheproviders.Action) []cacheproviders.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]cacheproviders.Action, 0, len(actions))
	for _, a := range actions {
		if o.statusLocked(a.ABI).ShouldAttemptPrecheck(provider) {
			out = append(out, a)
		}
	}
	return out
}

// PushSuccess enqueues a completed build for asynchronous upload (spec.md
// §4.8 push_success): a no-op for actions with no ABI, an immediate
// directory rename when CleanPackages is set so the main build loop can
// delete the original, and a nuspec render up front when any configured
// provider needs one.
func (o *Orchestrator) PushSuccess(info cacheproviders.PushInfo) error {
	if info.Action.ABI == "" {
		return nil
	}
	select {
	case <-o.done:
		return fmt.Errorf("orchestrator is shutting down, push for %s dropped", info.Action.Name)
	default:
	}

	packageDir := info.Action.PackageDir
	cleanAfterPush := false
	if o.opts.CleanPackages {
		n := o.pushCount.Add(1)
		renamed := fmt.Sprintf("%s_push_%d", packageDir, n)
		if err := os.Rename(packageDir, renamed); err != nil {
			return fmt.Errorf("renaming package dir for push: %w", err)
		}
		info.Action.PackageDir = renamed
		cleanAfterPush = true
	}

	if o.needsNuspec() && info.Nuspec == "" {
		if o.opts.NuspecBuilder == nil {
			return fmt.Errorf("a configured provider needs nuspec data but no NuspecBuilder is configured")
		}
		nuspec, err := o.opts.NuspecBuilder(info)
		if err != nil {
			return fmt.Errorf("generating nuspec: %w", err)
		}
		info.Nuspec = nuspec
	}

	o.pendingCnt.Add(1)
	select {
	case o.queue <- pushJob{info: info, cleanAfterPush: cleanAfterPush}:
		return nil
	case <-o.done:
		return fmt.Errorf("orchestrator is shutting down, push for %s dropped", info.Action.Name)
	}
}

func (o *Orchestrator) needsNuspec() bool {
	for _, p := range o.providers {
		if p.NeedsNuspecData() {
			return true
		}
	}
	return false
}

// worker is the single background push consumer: it drains the queue one
// job at a time, running every provider's PushSuccess in order and logging
// failures through a logger tagged with the job's ABI and port (unbuffered).
func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case job := <-o.queue:
			o.runPush(job)
		case <-o.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case job := <-o.queue:
					o.runPush(job)
				default:
					return
				}
			}
		}
	}
}

func (o *Orchestrator) runPush(job pushJob) {
	defer o.pendingCnt.Add(-1)
	sink := o.opts.Logger.With("abi", job.info.Action.ABI, "port", job.info.Action.Name)
	for _, p := range o.providers {
		if err := p.PushSuccess(context.Background(), job.info); err != nil {
			sink.Warn("cache upload failed", "provider", p.Name(), "error", err)
		}
	}
	if job.cleanAfterPush {
		_ = os.RemoveAll(job.info.Action.PackageDir)
	}
}

// Pending returns the number of pushes enqueued but not yet processed —
// "announces a count of pending pushes" in spec.md §4.8's destructor note,
// surfaced here for Close to log rather than print directly.
func (o *Orchestrator) Pending() int64 { return o.pendingCnt.Load() }

// Close is the Go-idiomatic replacement for the C++ destructor's
// "wait_for_async_complete": it announces the pending count, signals the
// worker to drain and stop, and blocks until it has. Safe to call once;
// subsequent calls are no-ops. PushSuccess called after Close returns an
// error instead of blocking forever.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if n := o.Pending(); n > 0 {
			o.opts.Logger.Info("waiting for pending cache pushes", "count", n)
		}
		close(o.done)
		o.wg.Wait()
	})
}
