package detect

import (
	"regexp"
	"strings"
	"unicode"
)

// Entity name bounds.
const (
	minEntityName = 3
	maxEntityName = 120
)

// entityPattern matches a run of capitalized words ending in a legal suffix,
// e.g. "Admiral Markets Cyprus Ltd", "eToro (Europe) Ltd", "Broker AU Pty Ltd".
var entityPattern = regexp.MustCompile(
	`\b[a-z]?[A-Z][\w&'.\-]*` +
		`(?:[ \t]+(?:[A-Z0-9][\w&'.\-]*|\([A-Z][\w .&'\-]*\)|&|of|for)){0,7}` +
		`[ \t]+(?:Pty\s+Ltd\b\.?|Ltd\b\.?|Limited\b|LLC\b|LLP\b|GmbH\b|S\.A\.S\.|S\.A\.|SAS\b|S\.R\.L\.|SRL\b|` +
		`AG\b|AS\b|AB\b|OY\b|Oy\b|S\.p\.A\.|SpA\b|Inc\b\.?|PLC\b|plc\b)`)

// splitSuffixes end an entity name. A match containing one of them before its
// last word holds several names written back to back.
var splitSuffixes = map[string]bool{
	"Ltd": true, "Ltd.": true, "Limited": true, "LLC": true, "LLP": true,
	"GmbH": true, "PLC": true, "plc": true, "Inc": true, "Inc.": true, "SpA": true,
}

// leadingStopwords are dropped from the start of a matched name.
var leadingStopwords = map[string]bool{
	"the": true, "our": true, "by": true, "and": true, "is": true, "of": true,
	"this": true, "with": true, "from": true, "in": true, "at": true, "to": true,
	"for": true, "copyright": true, "regulated": true, "authorised": true,
	"authorized": true, "licensed": true, "licenced": true, "registered": true,
	"operated": true, "provided": true, "website": true, "all": true, "rights": true,
	"reserved": true, "&": true,
}

// entityMatch is one occurrence of an entity name in the corpus.
type entityMatch struct {
	name       string
	start, end int
}

// findEntities returns every entity name occurrence in text, in order.
func findEntities(text string) []entityMatch {
	var out []entityMatch
	for _, loc := range entityPattern.FindAllStringIndex(text, -1) {
		out = append(out, splitEntities(text[loc[0]:loc[1]], loc[0])...)
	}
	return out
}

// splitEntities cuts a raw match at inner suffixes and cleans every piece.
func splitEntities(raw string, offset int) []entityMatch {
	var out []entityMatch
	words := strings.Fields(raw)
	cursor := 0
	var piece []string
	for i, w := range words {
		idx := strings.Index(raw[cursor:], w) + cursor
		cursor = idx + len(w)
		if i < len(words)-1 && endsSentence(w) {
			piece = nil
			continue
		}
		piece = append(piece, w)
		if i < len(words)-1 && !splitSuffixes[w] {
			continue
		}
		if m, ok := cleanEntity(piece, offset+cursor); ok {
			out = append(out, m)
		}
		piece = nil
	}
	return out
}

func cleanEntity(words []string, end int) (entityMatch, bool) {
	for len(words) > 2 && (leadingStopwords[strings.ToLower(words[0])] || isNumeric(words[0])) {
		words = words[1:]
	}
	if len(words) < 2 {
		return entityMatch{}, false
	}
	name := strings.Join(words, " ")
	if len(name) < minEntityName || len(name) > maxEntityName {
		return entityMatch{}, false
	}
	if len(words) > 3 && !strings.ContainsFunc(name, unicode.IsLower) {
		return entityMatch{}, false
	}
	// The end stays on the suffix; the start follows the trimmed name.
	return entityMatch{name: name, start: end - len(name), end: end}, true
}

// abbreviations end in a period without ending a sentence.
var abbreviations = map[string]bool{"Co.": true, "No.": true, "St.": true, "Pty.": true, "Corp.": true}

// endsSentence reports whether w closes a sentence, as "FCA." in
// "regulated by the FCA. Broker Ltd".
func endsSentence(w string) bool {
	return strings.HasSuffix(w, ".") && strings.Count(w, ".") == 1 &&
		!splitSuffixes[w] && !abbreviations[w]
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ',' && r != '.' && r != '-' {
			return false
		}
	}
	return s != ""
}
