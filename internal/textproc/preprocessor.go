// Package textproc flattens entity attributes into token streams and
// reduces them to canonical term sequences: lowercasing, stop-word
// removal, and suffix-stripping stemming. All functions are pure and
// never fail on malformed attribute shapes; values that contribute no
// text are simply skipped.
package textproc

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"

	"github.com/latticekb/lattice/pkg/types"
)

// Normalize reduces free text to the canonical term sequence: lowercase,
// tokenize on word boundaries, drop stop words and tokens containing
// non-alphabetic characters, stem, and join with single spaces.
// An empty result is valid.
func Normalize(text string) string {
	tokens := tokenize(strings.ToLower(text))

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !isAlpha(tok) || isStopWord(tok) {
			continue
		}
		out = append(out, english.Stem(tok, false))
	}
	return strings.Join(out, " ")
}

// ExtractText flattens an entity into its normalized document: the id,
// the type, and every string leaf of the attribute map (recursing into
// nested maps and lists, in sorted key order) are concatenated and
// normalized. Non-string scalars contribute nothing.
func ExtractText(e *types.Entity) string {
	if e == nil {
		return ""
	}

	parts := make([]string, 0, 2+len(e.Attributes))
	parts = append(parts, e.ID, e.Type)
	for _, k := range e.Attributes.SortedKeys() {
		parts = append(parts, collectStrings(e.Attributes[k])...)
	}
	return Normalize(strings.Join(parts, " "))
}

// collectStrings gathers string leaves from a value tree.
func collectStrings(v types.Value) []string {
	switch v.Kind() {
	case types.KindString:
		return []string{v.Str()}
	case types.KindList:
		var out []string
		for _, item := range v.Items() {
			out = append(out, collectStrings(item)...)
		}
		return out
	case types.KindMap:
		var out []string
		for _, k := range v.SortedKeys() {
			out = append(out, collectStrings(v.Fields()[k])...)
		}
		return out
	default:
		return nil
	}
}

// tokenize splits on any rune that is neither a letter nor a digit.
// Mixed alphanumeric tokens survive splitting but are rejected later by
// the alphabetic filter, matching word-boundary tokenization.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
