package model

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Candidate origin labels.
const (
	OriginSeed     = "seed"
	OriginAnchor   = "anchor"
	OriginPath     = "path"
	OriginSitemap  = "sitemap"
	OriginEmbedded = "embedded"
	OriginHomepage = "homepage"
)

// CandidateURL is a URL admitted to the crawl frontier.
// URL is canonical (fragment stripped) and same-site with the origin.
// Score orders the frontier and never decides admission.
type CandidateURL struct {
	URL         string  `json:"url"`
	Depth       int     `json:"depth"`
	Score       float64 `json:"score"`
	OriginLabel string  `json:"origin_label"`
}

// Anchor is a resolved hyperlink together with its visible label.
type Anchor struct {
	// URL is absolute and fragment-free.
	URL string `json:"url"`

	// Label is the collapsed visible text, falling back to title or aria-label.
	Label string `json:"label,omitempty"`
}

// FetchedPage is the parsed result of one successfully fetched, non-document
// URL. It is immutable after creation.
type FetchedPage struct {
	// URL is the post-redirect URL.
	URL string `json:"url"`

	// RawText is the visible text with markup removed.
	RawText string `json:"raw_text"`

	// Anchors are the deduplicated hyperlinks in document order.
	Anchors []Anchor `json:"anchors,omitempty"`

	// EmbeddedStrings are the string leaves of script-embedded JSON state.
	EmbeddedStrings []string `json:"embedded_strings,omitempty"`

	// Hash is the SHA3-256 of the raw body, used to fold duplicate bodies.
	Hash string `json:"hash,omitempty"`
}

// AnchorURLs returns the anchor URLs in order.
func (p *FetchedPage) AnchorURLs() []string {
	out := make([]string, 0, len(p.Anchors))
	for _, a := range p.Anchors {
		out = append(out, a.URL)
	}
	return out
}

// Corpus returns the text and embedded strings joined for detection.
func (p *FetchedPage) Corpus() string {
	if len(p.EmbeddedStrings) == 0 {
		return p.RawText
	}
	parts := make([]string, 0, len(p.EmbeddedStrings)+1)
	if p.RawText != "" {
		parts = append(parts, p.RawText)
	}
	parts = append(parts, p.EmbeddedStrings...)
	return strings.Join(parts, CorpusSeparator)
}

// CorpusSeparator joins page texts in the aggregate corpus. Detection windows
// never need to span it, so any visible delimiter works.
const CorpusSeparator = " • "

// HashBody returns the hex SHA3-256 digest of body, or "" for an empty body.
func HashBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}
