package pkgspec

import "fmt"

// LocatedError is a parse error pointing at a specific byte offset in the
// original input text, for diagnostics that need to underline the offending
// character.
type LocatedError struct {
	Text    string
	Pos     int
	Message string
	// Suggestion, when non-empty, is a corrected form of Text the caller can
	// surface alongside Message (e.g. reordering "name:triplet[features]" to
	// "name[features]:triplet").
	Suggestion string
}

func (e *LocatedError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (at position %d in %q); did you mean %q?", e.Message, e.Pos, e.Text, e.Suggestion)
	}
	return fmt.Sprintf("%s (at position %d in %q)", e.Message, e.Pos, e.Text)
}
