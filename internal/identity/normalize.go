package identity

import (
	"strings"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// Clean returns the storage form of an identifier: surrounding whitespace
// removed, case preserved for display.
func Clean(s string) string {
	return strings.TrimSpace(s)
}

// Normalize returns the comparison form of an identifier. Folding is
// locale-independent, so "ALICE@X.COM" and "alice@x.com" normalize alike.
func Normalize(s string) string {
	return fold.String(strings.TrimSpace(s))
}

// Equal reports whether a and b name the same identity.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ContainsFold reports whether sub occurs in s, ignoring case.
func ContainsFold(s, sub string) bool {
	return strings.Contains(fold.String(s), fold.String(sub))
}
