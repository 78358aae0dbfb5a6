package pkgspec

import (
	"strings"
)

// QualifiedSpecifier is the parsed form of "name[feat1,feat2]:triplet (expr)".
type QualifiedSpecifier struct {
	Name         string
	Features     []string
	Triplet      Triplet
	HasTriplet   bool
	PlatformExpr *Expr
}

// SpecifierFlags constrains which qualified-specifier forms are accepted,
// mirroring the call sites that forbid features on an override, require an
// explicit triplet for a host dependency, or forbid a platform suffix on a
// manifest-level override.
type SpecifierFlags struct {
	ForbidFeatures       bool
	RequireTriplet       bool
	ForbidTriplet        bool
	ForbidPlatformSuffix bool
}

// ParseQualifiedSpecifier parses text under the given flags. It returns a
// *LocatedError pointing at the offending character, with a corrected
// Suggestion when the caller wrote the common mistake
// "name:triplet[features]" instead of "name[features]:triplet".
func ParseQualifiedSpecifier(text string, flags SpecifierFlags) (*QualifiedSpecifier, error) {
	rest := text
	pos := 0

	nameEnd := strings.IndexAny(rest, "[:( \t")
	var name string
	if nameEnd < 0 {
		name = rest
		rest = ""
	} else {
		name = rest[:nameEnd]
		rest = rest[nameEnd:]
		pos += nameEnd
	}
	if name == "" {
		return nil, &LocatedError{Text: text, Pos: pos, Message: "missing port name"}
	}
	if !ValidIdentifier(name) {
		return nil, &LocatedError{Text: text, Pos: 0, Message: "invalid port name \"" + name + "\": must match [a-z0-9-]+"}
	}

	spec := &QualifiedSpecifier{Name: name}

	// Detect "name:triplet[features]" before consuming ':' so we can offer
	// the reordering suggestion instead of a confusing parse error.
	if strings.HasPrefix(rest, ":") {
		afterColon := rest[1:]
		bracketIdx := strings.IndexByte(afterColon, '[')
		spaceIdx := strings.IndexAny(afterColon, " \t")
		if bracketIdx >= 0 && (spaceIdx < 0 || bracketIdx < spaceIdx) {
			triplet := afterColon[:bracketIdx]
			closeIdx := strings.IndexByte(afterColon, ']')
			if closeIdx > bracketIdx {
				features := afterColon[bracketIdx+1 : closeIdx]
				suggestion := name + "[" + features + "]:" + triplet
				return nil, &LocatedError{
					Text:       text,
					Pos:        pos,
					Message:    "features must come before the triplet, not after",
					Suggestion: suggestion,
				}
			}
		}
	}

	if strings.HasPrefix(rest, "[") {
		if flags.ForbidFeatures {
			return nil, &LocatedError{Text: text, Pos: pos, Message: "this specifier does not accept a feature list"}
		}
		closeIdx := strings.IndexByte(rest, ']')
		if closeIdx < 0 {
			return nil, &LocatedError{Text: text, Pos: pos, Message: "unterminated feature list, expected \"]\""}
		}
		featureList := rest[1:closeIdx]
		if featureList != "" {
			for _, f := range strings.Split(featureList, ",") {
				f = strings.TrimSpace(f)
				if f != Wildcard && !ValidIdentifier(f) {
					return nil, &LocatedError{Text: text, Pos: pos + 1, Message: "invalid feature name \"" + f + "\": must match [a-z0-9-]+"}
				}
				spec.Features = append(spec.Features, f)
			}
		}
		rest = rest[closeIdx+1:]
		pos += closeIdx + 1
	}

	if strings.HasPrefix(rest, ":") {
		if flags.ForbidTriplet {
			return nil, &LocatedError{Text: text, Pos: pos, Message: "this specifier does not accept an explicit triplet"}
		}
		rest = rest[1:]
		pos++
		tripletEnd := strings.IndexAny(rest, "( \t")
		var triplet string
		if tripletEnd < 0 {
			triplet = rest
			rest = ""
		} else {
			triplet = rest[:tripletEnd]
			rest = rest[tripletEnd:]
			pos += tripletEnd
		}
		if triplet == "" {
			return nil, &LocatedError{Text: text, Pos: pos, Message: "missing triplet name after \":\""}
		}
		spec.Triplet = Triplet(triplet)
		spec.HasTriplet = true
	}
	if flags.RequireTriplet && !spec.HasTriplet {
		return nil, &LocatedError{Text: text, Pos: pos, Message: "this specifier requires an explicit triplet"}
	}

	rest = strings.TrimLeft(rest, " \t")
	pos = len(text) - len(rest)

	if rest != "" {
		if flags.ForbidPlatformSuffix {
			return nil, &LocatedError{Text: text, Pos: pos, Message: "this specifier does not accept a platform-expression suffix"}
		}
		if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
			return nil, &LocatedError{Text: text, Pos: pos, Message: "expected a parenthesized platform expression"}
		}
		exprText := rest[1 : len(rest)-1]
		expr, err := ParsePlatformExpr(exprText)
		if err != nil {
			if le, ok := err.(*LocatedError); ok {
				le.Text = text
				le.Pos += pos + 1
			}
			return nil, err
		}
		spec.PlatformExpr = expr
	}

	return spec, nil
}
