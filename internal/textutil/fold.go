// Package textutil holds text normalization helpers shared by the detector
// and the link classifier.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics, turns punctuation into spaces and
// collapses whitespace. "Autorité des Marchés-Financiers" becomes
// "autorite des marches financiers".
func Fold(s string) string {
	if s == "" {
		return ""
	}
	lower := cases.Lower(language.Und).String(StripMarks(s))

	var b strings.Builder
	b.Grow(len(lower))
	space := true
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// StripMarks removes combining diacritical marks and keeps everything else,
// so "Autorité des Marchés" becomes "Autorite des Marches".
func StripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return stripped
}

// Pad surrounds a folded string with single spaces so callers can test for
// whole-word containment with strings.Contains(Pad(a), Pad(b)).
func Pad(s string) string {
	return " " + s + " "
}

// CollapseSpace collapses runs of whitespace to single spaces and trims.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
