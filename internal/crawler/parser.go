package crawler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/textutil"
)

// Limits applied while flattening embedded state.
const (
	maxEmbeddedStrings = 5000
	maxEmbeddedString  = 4096
)

// inlineStateMarkers introduce hydration state assigned in inline scripts.
var inlineStateMarkers = []string{
	"__NUXT__",
	"__INITIAL_STATE__",
	"__PRELOADED_STATE__",
	"__APOLLO_STATE__",
}

// Parser converts a fetched HTML body into text, anchors and embedded strings.
// Relative references are resolved against the page URL.
type Parser struct {
	baseURL *url.URL
}

// ParseResult is everything the crawler keeps from one HTML page.
type ParseResult struct {
	// Title is the page title.
	Title string

	// Text is the visible text with script, style, noscript and comments removed.
	Text string

	// Anchors are deduplicated absolute hyperlinks with their labels.
	Anchors []model.Anchor

	// EmbeddedStrings are the string leaves of recognized script payloads.
	EmbeddedStrings []string

	// EmbeddedURLs are URLs referenced by script payloads, JSON endpoints and
	// data-url/data-endpoint attributes, resolved and deduplicated.
	EmbeddedURLs []string

	// LocalePrefixes are locale path prefixes announced by hreflang alternates.
	LocalePrefixes []string
}

// NewParser creates a parser for a page at baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse reads an HTML document. Malformed markup is tolerated; a failing
// script payload contributes nothing but never aborts the page.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	root, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	result.Text = extractText(root)

	doc := goquery.NewDocumentFromNode(root)
	result.Title = textutil.CollapseSpace(doc.Find("title").First().Text())
	result.Anchors = p.extractAnchors(doc)
	result.LocalePrefixes = p.extractLocales(doc)

	urls := newOrderedSet()
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		for _, m := range jsonEndpointPattern.FindAllString(body, -1) {
			urls.add(p.resolve(m))
		}
		payload, ok := scriptPayload(s, body)
		if !ok {
			return
		}
		strs := ParseEmbeddedJSON(payload)
		if room := maxEmbeddedStrings - len(result.EmbeddedStrings); len(strs) > room {
			strs = strs[:max(room, 0)]
		}
		result.EmbeddedStrings = append(result.EmbeddedStrings, strs...)
		for _, v := range strs {
			if looksLikeURL(v) {
				urls.add(p.resolve(v))
			}
		}
	})
	doc.Find("[data-url], [data-endpoint]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"data-url", "data-endpoint"} {
			if v, ok := s.Attr(attr); ok {
				urls.add(p.resolve(v))
			}
		}
	})
	result.EmbeddedURLs = urls.items

	return result, nil
}

func (p *Parser) resolve(href string) string {
	return resolveHref(p.baseURL, href)
}

func (p *Parser) extractAnchors(doc *goquery.Document) []model.Anchor {
	var anchors []model.Anchor
	index := make(map[string]int)
	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := p.resolve(href)
		if resolved == "" {
			return
		}
		label := anchorLabel(s)
		if i, ok := index[resolved]; ok {
			if anchors[i].Label == "" {
				anchors[i].Label = label
			}
			return
		}
		index[resolved] = len(anchors)
		anchors = append(anchors, model.Anchor{URL: resolved, Label: label})
	})
	return anchors
}

func anchorLabel(s *goquery.Selection) string {
	if label := textutil.CollapseSpace(s.Text()); label != "" {
		return label
	}
	for _, attr := range []string{"aria-label", "title"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return textutil.CollapseSpace(v)
		}
	}
	if alt, ok := s.Find("img[alt]").First().Attr("alt"); ok {
		return textutil.CollapseSpace(alt)
	}
	return ""
}

func (p *Parser) extractLocales(doc *goquery.Document) []string {
	set := newOrderedSet()
	doc.Find("link[hreflang], a[hreflang]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if u, err := url.Parse(p.resolve(href)); err == nil {
				if seg := firstSegment(u.Path); localeSegment.MatchString(seg) {
					set.add("/" + seg)
				}
			}
		}
		if lang, ok := s.Attr("hreflang"); ok {
			lang = strings.ToLower(strings.TrimSpace(lang))
			if localeSegment.MatchString(lang) {
				set.add("/" + lang)
			}
		}
	})
	return set.items
}

// scriptPayload returns the JSON text carried by a script element.
func scriptPayload(s *goquery.Selection, body string) (string, bool) {
	typ, _ := s.Attr("type")
	typ = strings.ToLower(strings.TrimSpace(typ))
	id, _ := s.Attr("id")
	if id == "__NEXT_DATA__" || typ == "application/json" || typ == "application/ld+json" {
		return body, strings.TrimSpace(body) != ""
	}
	if typ != "" && typ != "text/javascript" && typ != "module" && typ != "application/javascript" {
		return "", false
	}
	for _, marker := range inlineStateMarkers {
		i := strings.Index(body, marker)
		if i < 0 {
			continue
		}
		rest := body[i+len(marker):]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			continue
		}
		return rest[eq+1:], true
	}
	return "", false
}

// ParseEmbeddedJSON parses payload as strict JSON, falling back to the first
// balanced {...} block, and returns its string leaves. Unparseable payloads
// yield nil.
func ParseEmbeddedJSON(payload string) []string {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimSuffix(payload, ";")
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		block, ok := firstBalancedObject(payload)
		if !ok {
			return nil
		}
		if err := json.Unmarshal([]byte(block), &v); err != nil {
			return nil
		}
	}
	var out []string
	walkStrings(v, &out)
	return out
}

// firstBalancedObject returns the first {...} block of s, honoring JSON
// string literals and escapes.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// walkStrings appends every string leaf of v. Map keys are visited in sorted
// order so output is deterministic.
func walkStrings(v any, out *[]string) {
	if len(*out) >= maxEmbeddedStrings {
		return
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return
		}
		if len(s) > maxEmbeddedString {
			s = s[:maxEmbeddedString]
		}
		*out = append(*out, s)
	case []any:
		for _, e := range t {
			walkStrings(e, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(t[k], out)
		}
	}
}

// skippedTextElements never contribute visible text.
var skippedTextElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

func extractText(root *html.Node) string {
	var b bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedTextElements[n.Data] {
				return
			}
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return textutil.CollapseSpace(b.String())
}

func looksLikeURL(s string) bool {
	if strings.ContainsAny(s, " \n\t<>") {
		return false
	}
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") ||
		(strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") && len(s) > 1)
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(p)
}

// orderedSet keeps first-seen order and drops empty strings.
type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}
