// Package norm provides canonical string normalization for mentor360.
//
// Every comparison that asks "are these two tokens the same name?" goes
// through Normalize first, so "Luíza", "LUIZA " and "luiza" all collapse
// to the same key.
package norm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lower-cases, trims, and strips combining diacritical marks.
// It is total: any input (including the empty string) yields a valid key.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		// Transform failure leaves the input usable as-is.
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Tokens splits s into normalized whitespace-delimited tokens.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// TokenSet returns the normalized tokens of s as a set.
func TokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// Equal reports whether a and b normalize to the same non-empty key.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

// DedupKeepFirst removes case/diacritic-insensitive duplicates and empty
// entries from values, preserving order and first-seen casing.
func DedupKeepFirst(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := Normalize(v)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
