package resolver

import (
	"fmt"
	"strings"
)

// ErrorKind enumerates the resolver failure taxonomy from the error
// handling design: each kind carries enough context to act on, and a
// Suggestion() describing the fix.
type ErrorKind int

const (
	// BaselineMissing: the baseline provider returned no version for a
	// transitively required port.
	BaselineMissing ErrorKind = iota
	// VersionIncomparable: two version floors from incompatible schemes met
	// at one node.
	VersionIncomparable
	// VersionMissingFeature: a requested feature is absent from the chosen
	// version of the target port.
	VersionMissingFeature
	// UnsupportedFeature: the feature name doesn't exist on the port at all.
	UnsupportedFeature
	// UnsupportedPortSupportsExpression: the chosen version's supports_expr
	// fails for the active triplet.
	UnsupportedPortSupportsExpression
	// CycleDetected: the dependency DFS found a non-self back edge.
	CycleDetected
	// OverlayPatchDir: the overlay path supplied is not a directory.
	OverlayPatchDir
)

func (k ErrorKind) String() string {
	switch k {
	case BaselineMissing:
		return "BaselineMissing"
	case VersionIncomparable:
		return "VersionIncomparable"
	case VersionMissingFeature:
		return "VersionMissingFeature"
	case UnsupportedFeature:
		return "UnsupportedFeature"
	case UnsupportedPortSupportsExpression:
		return "UnsupportedPortSupportsExpression"
	case CycleDetected:
		return "CycleDetected"
	case OverlayPatchDir:
		return "OverlayPatchDir"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ResolutionError is a structured, actionable resolver failure.
type ResolutionError struct {
	Kind    ErrorKind
	Port    string
	Message string
	Err     error

	// CyclePath holds the node chain for CycleDetected errors, innermost
	// last, as rendered in the "cycle detected during ..." message.
	CyclePath []string

	// OverrideSuggestion holds a ready-to-paste overrides JSON snippet for
	// VersionIncomparable errors.
	OverrideSuggestion string
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Port, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Port, e.Message)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Suggestion returns an actionable fix for the error kind, per §7's
// "User fix" column.
func (e *ResolutionError) Suggestion() string {
	switch e.Kind {
	case BaselineMissing:
		return "add a builtin-baseline entry, or extend the registry baseline to cover " + e.Port
	case VersionIncomparable:
		if e.OverrideSuggestion != "" {
			return "add an overrides entry pinning one version:\n" + e.OverrideSuggestion
		}
		return "add an overrides entry pinning one version"
	case VersionMissingFeature:
		return "pick a version of " + e.Port + " that provides the feature, or drop the feature"
	case UnsupportedFeature:
		return "check " + e.Port + "'s port metadata for the correct feature name"
	case UnsupportedPortSupportsExpression:
		return "change triplet, or pass allow-unsupported for " + e.Port
	case CycleDetected:
		return "break the cycle upstream of " + e.Port
	case OverlayPatchDir:
		return "fix the overlay configuration: " + e.Port + " is not a directory"
	default:
		return ""
	}
}

// newCycleError renders "cycle detected during <header>:\n<line1>\n<line2>...",
// matching the source's diagnostic format (header is the cycle's starting
// node without a version; lines are "name:triplet@version" entries for each
// node on the cycle, in DFS order).
func newCycleError(header string, lines []string) *ResolutionError {
	return &ResolutionError{
		Kind:      CycleDetected,
		Port:      header,
		Message:   fmt.Sprintf("cycle detected during %s:\n%s", header, strings.Join(lines, "\n")),
		CyclePath: lines,
	}
}
