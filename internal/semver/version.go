// Package semver implements the tagged-union version model used to compare
// port versions across the four schemes a C/C++ port registry can declare:
// strict semver, a relaxed dot-separated form, calendar dates, and opaque
// strings. Comparison is total only within a scheme; cross-scheme comparisons
// that the registry format doesn't define return Unknown rather than a
// best-effort guess, so callers (the resolver) can surface a conflict instead
// of silently picking a version.
package semver

import (
	"encoding/json"
	"fmt"
)

// Scheme identifies which version variant a Version was parsed under.
type Scheme int

const (
	// Semver is the strict "major.minor.patch[-prerelease][+build]" form.
	Semver Scheme = iota
	// Relaxed is a dot-separated sequence of non-negative integers with an
	// optional "-prerelease" suffix and an ignored "+build" suffix.
	Relaxed
	// Date is a "YYYY-MM-DD[.N.N...]" calendar version.
	Date
	// String is an opaque version compared only for byte-equality.
	String
)

// String implements fmt.Stringer for diagnostics.
func (s Scheme) String() string {
	switch s {
	case Semver:
		return "semver"
	case Relaxed:
		return "relaxed"
	case Date:
		return "date"
	case String:
		return "string"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// Version is a parsed port version: a scheme-tagged primary version plus a
// non-negative port_version tiebreaker (rendered as a "#N" suffix).
type Version struct {
	Scheme      Scheme
	Text        string // original, unparsed primary version text
	PortVersion int

	// components holds the parsed numeric primary version for Semver,
	// Relaxed, and Date schemes. Unused for String.
	components []int
	prerelease string // empty means "no prerelease" (always greater)
}

// String renders the version the way the resolver reports it in diagnostics,
// e.g. "1.2.3#1" or "1.2.3" when port_version is zero.
func (v Version) String() string {
	if v.PortVersion == 0 {
		return v.Text
	}
	return fmt.Sprintf("%s#%d", v.Text, v.PortVersion)
}

// jsonVersion is Version's wire representation: just enough to reparse the
// value (components/prerelease are derived from Text+Scheme, not stored).
type jsonVersion struct {
	Scheme      Scheme `json:"scheme"`
	Text        string `json:"text"`
	PortVersion int    `json:"port_version"`
}

// MarshalJSON serializes a Version as its scheme, original text, and
// port_version, for cache storage (internal/providers.CachedProvider).
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonVersion{Scheme: v.Scheme, Text: v.Text, PortVersion: v.PortVersion})
}

// UnmarshalJSON reparses a Version from its scheme, text, and port_version.
func (v *Version) UnmarshalJSON(data []byte) error {
	var jv jsonVersion
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	parsed, err := ParseWithPortVersion(jv.Text, jv.Scheme, jv.PortVersion)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
