// Package cacheorchestrator implements the binary-cache orchestrator
// (spec.md §4.8): a pluggable multi-provider cache that, keyed by package
// ABI, prefetches artifacts before a build, reports availability, and
// stores them after a successful build on a background worker.
package cacheorchestrator

// State is one point in the per-ABI CacheStatus state machine (spec.md
// §4.8, §8 property 8): Unknown -> Available -> Restored, monotonic except
// for MarkUnavailable's Available -> Unknown fallback for the recorded provider.
type State int

const (
	Unknown State = iota
	Available
	Restored
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Restored:
		return "restored"
	default:
		return "unknown"
	}
}

// CacheStatus tracks, for one package ABI, which provider (if any) is known
// to have it and which providers are known not to. It is created on first
// query and lives for the duration of one orchestrator run; callers never
// construct it directly (use Orchestrator.Status).
type CacheStatus struct {
	state       State
	availableAt string          // provider name, set only in state Available
	unavailable map[string]bool // providers that reported "not found"
}

func newCacheStatus() *CacheStatus {
	return &CacheStatus{state: Unknown, unavailable: make(map[string]bool)}
}

// State reports the current state, for tests and logging.
func (c *CacheStatus) State() State { return c.state }

// Unavailable reports whether provider has already been marked unavailable
// for this ABI, in no particular order.
func (c *CacheStatus) Unavailable(provider string) bool { return c.unavailable[provider] }

// ShouldAttemptPrecheck reports whether it's worth asking provider whether
// it has this ABI: only when nothing has been confirmed yet and provider
// hasn't already said no (spec.md §4.8).
func (c *CacheStatus) ShouldAttemptPrecheck(provider string) bool {
	return c.state == Unknown && !c.unavailable[provider]
}

// ShouldAttemptRestore reports whether provider should be asked to restore
// this ABI: either nothing is confirmed yet and provider hasn't said no, or
// provider is the specific one already known to have it.
func (c *CacheStatus) ShouldAttemptRestore(provider string) bool {
	switch c.state {
	case Unknown:
		return !c.unavailable[provider]
	case Available:
		return c.availableAt == provider
	default: // Restored
		return false
	}
}

// MarkUnavailable records that provider reported "not found" (a precheck
// "no", or a failed restore) for this ABI. No-op once Restored.
//
// When provider is the one currently recorded Available and its restore
// attempt just failed, the status falls back to Unknown so the remaining
// providers get a chance — this is the one documented exception to "Available
// never regresses to Unknown" (spec.md §8 scenario S7: "Unknown ->
// Available(P1) -> Unknown (with P1 in unavailable list) -> Restored (via
// P2)"); it is always paired with recording that provider unavailable in
// the same call, never a silent reset.
func (c *CacheStatus) MarkUnavailable(provider string) {
	if c.state == Restored {
		return
	}
	if c.state == Available && c.availableAt == provider {
		c.state = Unknown
		c.availableAt = ""
	}
	c.unavailable[provider] = true
}

// MarkAvailable transitions Unknown -> Available(provider). No-op from any
// other state (§8 property 8: "Available -> Unknown" never happens, and
// this guard is what prevents a later provider's "yes" from clobbering an
// already-confirmed Available/Restored entry).
func (c *CacheStatus) MarkAvailable(provider string) {
	if c.state == Unknown {
		c.state = Available
		c.availableAt = provider
	}
}

// MarkRestored transitions to Restored from any state. Once Restored, it
// never regresses (§8 property 8: "Restored -> anything" never happens —
// every mutator above already refuses to touch a Restored status).
func (c *CacheStatus) MarkRestored() {
	c.state = Restored
}
