// Package pkgspec implements the identifier and platform-expression model
// that the resolver (internal/resolver) and ABI hasher (internal/abi) build
// on: port/feature/triplet identifiers, the qualified-specifier string
// syntax, and the boolean platform-expression grammar evaluated against a
// triplet's CMake-style variable map.
package pkgspec

import (
	"fmt"
	"regexp"
)

// identifierPattern matches lowercase port and feature names: [a-z0-9-]+.
var identifierPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// CoreFeature is the pseudo-feature implicitly selected for every spec.
const CoreFeature = "core"

// DefaultFeature is the virtual marker that expands to a port's declared
// default-feature list. It is never itself a member of a resolved feature
// set.
const DefaultFeature = "default"

// Wildcard is preserved verbatim by feature expansion, never expanded.
const Wildcard = "*"

// ValidIdentifier reports whether name is a legal port or feature name:
// lowercase [a-z0-9-]+. "default" and "core" are syntactically legal (they
// are "not reserved" per the spec) even though they carry special resolver
// semantics.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Triplet is a named build configuration (target arch + OS + linkage).
// cport treats triplet names as opaque identifiers; the variable map used
// for platform-expression evaluation is supplied separately by the caller
// (it comes from the triplet file, which is out of scope here).
type Triplet string

// PackageSpec identifies a port built for a specific triplet.
type PackageSpec struct {
	Name    string
	Triplet Triplet
}

func (s PackageSpec) String() string {
	return fmt.Sprintf("%s:%s", s.Name, s.Triplet)
}

// FeatureSpec identifies one feature of a PackageSpec.
type FeatureSpec struct {
	PackageSpec
	Feature string
}

func (s FeatureSpec) String() string {
	return fmt.Sprintf("%s[%s]:%s", s.Name, s.Feature, s.Triplet)
}

// ValidateIdentifiers reports an error if name or feature (when non-empty)
// isn't a legal lowercase identifier.
func ValidateIdentifiers(name, feature string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("invalid port name %q: must match [a-z0-9-]+", name)
	}
	if feature != "" && feature != Wildcard && !ValidIdentifier(feature) {
		return fmt.Errorf("invalid feature name %q: must match [a-z0-9-]+", feature)
	}
	return nil
}
