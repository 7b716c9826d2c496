package crawler

import (
	"regexp"
	"strings"

	"github.com/nao1215/brokersafety/internal/textutil"
)

// Scoring weights of the candidate generator.
const (
	scorePathToken    = 6
	scoreLabelKeyword = 4
	scoreLocale       = 1
	scoreDocumentHint = 2
)

// WellKnownPaths are probed under every locale prefix.
var WellKnownPaths = []string{
	"/regulation",
	"/regulations",
	"/regulatory",
	"/legal",
	"/legal-documents",
	"/documents",
	"/policies",
	"/policy",
	"/compliance",
	"/risk",
	"/risk-disclosure",
	"/disclosure",
	"/terms",
	"/terms-and-conditions",
	"/client-agreement",
	"/client-services-agreement",
	"/customer-service/regulation",
	"/about/regulation",
	"/about-us/regulation",
}

// DefaultLocales are guessed locale prefixes tried after the site root and
// any announced prefix. "" is the site root. A guess earns no locale bonus.
var DefaultLocales = []string{"", "/en", "/en-us", "/en-gb", "/en-au", "/en-eu"}

// regulatoryStems are matched against folded URL paths. Each distinct stem
// found adds scorePathToken.
var regulatoryStems = []string{
	"regulat",
	"legal",
	"terms",
	"risk",
	"disclos",
	"complian",
	"licen",
	"agreement",
	"privacy",
	"document",
	"polic",
	// localized
	"regulacion",
	"regolament",
	"reglement",
	"rechtlich",
	"aufsicht",
	"juridique",
	"legales",
	"condiciones",
	"condizioni",
	"riesgo",
	"rischi",
	"risque",
	"risiko",
	"datenschutz",
	"privacidad",
	"conformite",
	"lizenz",
	"licencia",
	"licenza",
	"agb",
}

// labelKeywords are matched against folded anchor labels.
var labelKeywords = []*regexp.Regexp{
	regexp.MustCompile(`\bregulat`),
	regexp.MustCompile(`\blegal\b`),
	regexp.MustCompile(`\bterms\b`),
	regexp.MustCompile(`\brisk`),
	regexp.MustCompile(`\bdisclosure`),
	regexp.MustCompile(`\bcomplian`),
	regexp.MustCompile(`\blicen[cs]`),
	regexp.MustCompile(`\bagreement`),
	regexp.MustCompile(`\bprivacy\b`),
	regexp.MustCompile(`\bdocuments?\b`),
	regexp.MustCompile(`\bpolic(y|ies)\b`),
	regexp.MustCompile(`\b(regulacion|regulamentacao|regolamentazione|regulierung)\b`),
	regexp.MustCompile(`\b(mentions legales|aviso legal|note legali|rechtliche hinweise)\b`),
	regexp.MustCompile(`\b(condiciones|conditions generales|condizioni|agb)\b`),
	regexp.MustCompile(`\b(riesgo|risque|rischio|risiko)`),
	regexp.MustCompile(`\b(datenschutz|privacidad|confidentialite)\b`),
}

// sitemapFilter selects sitemap <loc> entries worth crawling.
var sitemapFilter = regexp.MustCompile(`(?i)regulat|legal|document|disclosure|terms|licen`)

// jsonEndpointPattern finds absolute .json URLs in script text.
var jsonEndpointPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>\\]+?\.json\b`)

// localeSegment matches a first path segment that looks like a locale.
var localeSegment = regexp.MustCompile(`^[a-z]{2}(-[a-z]{2,4})?$`)

var documentExtensions = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
	"rtf":  true,
	"odt":  true,
}

var binaryExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "svg": true, "ico": true, "avif": true,
	"css": true, "js": true, "mjs": true, "map": true,
	"woff": true, "woff2": true, "ttf": true, "otf": true, "eot": true,
	"zip": true, "rar": true, "7z": true, "tar": true,
	"mp4": true, "mp3": true, "wav": true, "webm": true, "mov": true, "avi": true,
}

// pathTokenCount returns the number of distinct regulatory stems in the
// URL path and query.
func pathTokenCount(p string) int {
	folded := textutil.Fold(p)
	n := 0
	for _, stem := range regulatoryStems {
		if strings.Contains(folded, stem) {
			n++
		}
	}
	return n
}

// labelKeywordCount returns the number of keyword patterns matching label.
func labelKeywordCount(label string) int {
	folded := textutil.Fold(label)
	if folded == "" {
		return 0
	}
	n := 0
	for _, re := range labelKeywords {
		if re.MatchString(folded) {
			n++
		}
	}
	return n
}
