package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/brokersafety/internal/fetch"
	"github.com/nao1215/brokersafety/internal/model"
)

// Candidate generation bounds.
const (
	// maxEmbeddedCandidates caps URLs taken from script payloads.
	maxEmbeddedCandidates = 32

	// maxLocales caps locale prefixes expanded over well-known paths.
	maxLocales = 8

	// scoreSeed lifts explicit seeds above generated candidates so a small
	// page budget never starves them.
	scoreSeed = 100
)

// Fetcher is the part of the fetch client the crawler needs.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// GeneratorInput is what the generator knows about a site.
type GeneratorInput struct {
	// Origin is scheme://host used for same-site admission.
	Origin string

	// HomepageURL is the canonical homepage, "" when only seeds were given.
	HomepageURL string

	// Seeds are explicit starting URLs.
	Seeds []string

	// Homepage is the parsed homepage, nil when it could not be fetched.
	Homepage *ParseResult

	// Robots is the parsed robots.txt, nil when absent.
	Robots *robotstxt.RobotsData
}

// Generator produces ranked same-site candidate URLs.
type Generator struct {
	fetcher      Fetcher
	sitemaps     bool
	sitemapLimit int
	logger       *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSitemapDiscovery enables or disables robots.txt/sitemap discovery.
func WithSitemapDiscovery(enabled bool) GeneratorOption {
	return func(g *Generator) {
		g.sitemaps = enabled
	}
}

// WithSitemapLimit caps the number of sitemap entries used.
func WithSitemapLimit(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.sitemapLimit = n
		}
	}
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a Generator. f is used for sitemap discovery and may
// be nil when discovery is disabled.
func NewGenerator(f Fetcher, opts ...GeneratorOption) *Generator {
	g := &Generator{
		fetcher:      f,
		sitemaps:     true,
		sitemapLimit: DefaultSitemapLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate discovers sitemap entries and combines every candidate source.
func (g *Generator) Generate(ctx context.Context, in GeneratorInput) []model.CandidateURL {
	var sitemapURLs []string
	if g.sitemaps && g.fetcher != nil && in.Origin != "" {
		sitemapURLs = DiscoverSitemapURLs(ctx, g.fetcher, in.Origin, in.Robots, g.sitemapLimit)
		g.logger.Debug("sitemap discovery", "origin", in.Origin, "urls", len(sitemapURLs))
	}
	cands := BuildCandidates(in, sitemapURLs)
	g.logger.Debug("candidates generated", "origin", in.Origin, "count", len(cands))
	return cands
}

// BuildCandidates combines seeds, homepage anchors, well-known paths across
// locales, sitemap entries and embedded URLs into a deduplicated, same-site
// candidate list. It performs no I/O; identical inputs give identical output.
func BuildCandidates(in GeneratorInput, sitemapURLs []string) []model.CandidateURL {
	announced := announcedLocales(in)
	locales := expandLocales(announced)
	acc := newCandidateSet(in.Origin, announced)

	for _, s := range in.Seeds {
		acc.add(s, "", 0, model.OriginSeed, scoreSeed)
	}

	if in.Homepage != nil {
		for _, a := range in.Homepage.Anchors {
			if !isRegulatoryLink(a.URL, a.Label) {
				continue
			}
			acc.add(a.URL, a.Label, 1, model.OriginAnchor, 0)
		}
	}

	for _, loc := range locales {
		for _, p := range WellKnownPaths {
			acc.add(in.Origin+loc+p, "", 0, model.OriginPath, 0)
		}
	}

	for _, u := range sitemapURLs {
		acc.add(u, "", 0, model.OriginSitemap, 0)
	}

	if in.Homepage != nil {
		n := 0
		for _, u := range in.Homepage.EmbeddedURLs {
			if n >= maxEmbeddedCandidates {
				break
			}
			if !IsJSONEndpoint(u) && !isRegulatoryLink(u, "") {
				continue
			}
			if acc.add(u, "", 1, model.OriginEmbedded, 0) {
				n++
			}
		}
	}

	return acc.list()
}

// Score computes the heuristic weight of a URL with its anchor label.
func Score(rawURL, label string, locales []string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	p := u.Path
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	score := scorePathToken*pathTokenCount(p) + scoreLabelKeyword*labelKeywordCount(label)
	if hasLocalePrefix(u.Path, locales) {
		score += scoreLocale
	}
	if IsDocument(rawURL) {
		score += scoreDocumentHint
	}
	return float64(score)
}

// isRegulatoryLink reports whether a discovered link's path or label matches
// the regulatory token set.
func isRegulatoryLink(rawURL, label string) bool {
	if labelKeywordCount(label) > 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return pathTokenCount(u.Path) > 0
}

func hasLocalePrefix(p string, locales []string) bool {
	lp := strings.ToLower(p)
	for _, loc := range locales {
		if loc == "" {
			continue
		}
		if lp == loc || strings.HasPrefix(lp, loc+"/") {
			return true
		}
	}
	return false
}

// announcedLocales returns the locale prefixes the site itself advertises:
// the homepage's first path segment and hreflang alternates. Only these earn
// the locale bonus.
func announcedLocales(in GeneratorInput) []string {
	set := newOrderedSet()
	if in.HomepageURL != "" {
		if u, err := url.Parse(in.HomepageURL); err == nil {
			if seg := firstSegment(u.Path); localeSegment.MatchString(seg) {
				set.add("/" + seg)
			}
		}
	}
	if in.Homepage != nil {
		for _, l := range in.Homepage.LocalePrefixes {
			set.add(l)
		}
	}
	return set.items
}

// expandLocales returns the prefixes well-known paths are probed under: the
// site root first, then announced prefixes, then the guessed defaults. The
// order matters because equal scores are fetched first come, first served.
func expandLocales(announced []string) []string {
	out := []string{""}
	set := newOrderedSet()
	for _, l := range announced {
		set.add(l)
	}
	for _, l := range DefaultLocales {
		set.add(l)
	}
	out = append(out, set.items...)
	if len(out) > maxLocales {
		return out[:maxLocales]
	}
	return out
}

// candidateSet deduplicates by canonical URL, keeping the highest score and
// the lowest depth. The origin label of the first source is kept.
type candidateSet struct {
	origin  string
	locales []string
	index   map[string]int
	items   []model.CandidateURL
}

func newCandidateSet(origin string, locales []string) *candidateSet {
	return &candidateSet{origin: origin, locales: locales, index: make(map[string]int)}
}

// add reports whether a new candidate was created.
func (s *candidateSet) add(raw, label string, depth int, originLabel string, bonus float64) bool {
	c := Canonicalize(raw)
	if c == "" || !SameSite(s.origin, c) || IsBinaryAsset(c) {
		return false
	}
	score := Score(c, label, s.locales) + bonus
	if i, ok := s.index[c]; ok {
		if score > s.items[i].Score {
			s.items[i].Score = score
		}
		if depth < s.items[i].Depth {
			s.items[i].Depth = depth
		}
		return false
	}
	s.index[c] = len(s.items)
	s.items = append(s.items, model.CandidateURL{URL: c, Depth: depth, Score: score, OriginLabel: originLabel})
	return true
}

func (s *candidateSet) list() []model.CandidateURL {
	out := make([]model.CandidateURL, len(s.items))
	copy(out, s.items)
	return out
}
