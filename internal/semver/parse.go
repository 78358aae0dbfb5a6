package semver

import (
	"fmt"
	"strconv"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// ParseError reports a malformed version string.
type ParseError struct {
	Scheme Scheme
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s version %q: %s", e.Scheme, e.Text, e.Reason)
}

// Parse parses text as a primary version under the given scheme. port_version
// is set separately by the caller (it's carried alongside the primary version
// text in a port's SourceControlFile, not embedded in text itself).
func Parse(text string, scheme Scheme) (Version, error) {
	return ParseWithPortVersion(text, scheme, 0)
}

// ParseWithPortVersion parses text as a primary version under the given
// scheme and attaches the given non-negative port_version.
func ParseWithPortVersion(text string, scheme Scheme, portVersion int) (Version, error) {
	if portVersion < 0 {
		return Version{}, &ParseError{Scheme: scheme, Text: text, Reason: "port_version must be non-negative"}
	}

	switch scheme {
	case Semver:
		return parseSemver(text, portVersion)
	case Relaxed:
		return parseRelaxed(text, portVersion)
	case Date:
		return parseDate(text, portVersion)
	case String:
		return Version{Scheme: String, Text: text, PortVersion: portVersion}, nil
	default:
		return Version{}, &ParseError{Scheme: scheme, Text: text, Reason: "unknown scheme"}
	}
}

func parseSemver(text string, portVersion int) (Version, error) {
	v, err := mmsemver.StrictNewVersion(text)
	if err != nil {
		return Version{}, &ParseError{Scheme: Semver, Text: text, Reason: err.Error()}
	}
	return Version{
		Scheme:      Semver,
		Text:        text,
		PortVersion: portVersion,
		components:  []int{int(v.Major()), int(v.Minor()), int(v.Patch())},
		prerelease:  v.Prerelease(),
	}, nil
}

// parseRelaxed parses "<int>(.<int>)*(-<prerelease>)?(+<build>)?". The build
// suffix is accepted and discarded; it never participates in comparison.
func parseRelaxed(text string, portVersion int) (Version, error) {
	if text == "" {
		return Version{}, &ParseError{Scheme: Relaxed, Text: text, Reason: "empty version"}
	}

	body := text
	if i := strings.IndexByte(body, '+'); i >= 0 {
		body = body[:i]
	}

	var pre string
	if i := strings.IndexByte(body, '-'); i >= 0 {
		pre = body[i+1:]
		body = body[:i]
	}

	if body == "" {
		return Version{}, &ParseError{Scheme: Relaxed, Text: text, Reason: "missing dot-version component"}
	}

	parts := strings.Split(body, ".")
	components := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, &ParseError{Scheme: Relaxed, Text: text, Reason: fmt.Sprintf("component %q is not a non-negative integer", p)}
		}
		components = append(components, n)
	}

	return Version{
		Scheme:      Relaxed,
		Text:        text,
		PortVersion: portVersion,
		components:  components,
		prerelease:  pre,
	}, nil
}

// parseDate parses "YYYY-MM-DD[.N.N...]". The Y/M/D fields are ordinary
// zero-padded non-negative integers; the ".N" disambiguators are
// non-negative integers that must not carry a leading zero, except a
// bare "0".
func parseDate(text string, portVersion int) (Version, error) {
	if text == "" {
		return Version{}, &ParseError{Scheme: Date, Text: text, Reason: "empty version"}
	}

	parts := strings.Split(text, ".")
	if len(parts) < 1 {
		return Version{}, &ParseError{Scheme: Date, Text: text, Reason: "missing date"}
	}

	dateParts := strings.Split(parts[0], "-")
	if len(dateParts) != 3 {
		return Version{}, &ParseError{Scheme: Date, Text: text, Reason: "date must be YYYY-MM-DD"}
	}

	components := make([]int, 0, len(parts)+2)
	for _, d := range dateParts {
		n, err := parseNonNegativeInt(d)
		if err != nil {
			return Version{}, &ParseError{Scheme: Date, Text: text, Reason: err.Error()}
		}
		components = append(components, n)
	}

	for _, d := range parts[1:] {
		n, err := parseNoLeadingZero(d)
		if err != nil {
			return Version{}, &ParseError{Scheme: Date, Text: text, Reason: err.Error()}
		}
		components = append(components, n)
	}

	return Version{
		Scheme:      Date,
		Text:        text,
		PortVersion: portVersion,
		components:  components,
	}, nil
}

// parseNonNegativeInt parses the fixed-width Y/M/D fields of a date, which
// are zero-padded by convention ("01", "05") and must not be rejected for it.
func parseNonNegativeInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("component %q is not a non-negative integer", s)
	}
	return n, nil
}

// parseNoLeadingZero parses a ".N" disambiguator, which is rejected if it
// carries a leading zero (except the bare literal "0").
func parseNoLeadingZero(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("component %q has a leading zero", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("component %q is not a non-negative integer", s)
	}
	return n, nil
}
