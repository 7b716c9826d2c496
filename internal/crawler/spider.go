package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/brokersafety/internal/fetch"
	"github.com/nao1215/brokersafety/internal/model"
)

// Worker pool bounds.
const (
	DefaultWorkers = 4
	maxWorkers     = 8
)

// DefaultDocumentTextLimit is the number of recorded documents whose text is
// extracted after the crawl when page budget remains. Documents are recorded,
// not read, unless a caller opts in with WithDocumentText.
const DefaultDocumentTextLimit = 0

// DefaultRobotsAgent is the product token matched against robots.txt groups.
const DefaultRobotsAgent = "brokersafety"

// ErrNoOrigin is returned when neither the homepage nor any seed is an
// http(s) URL.
var ErrNoOrigin = errors.New("cannot resolve an http(s) origin from homepage or seeds")

// Spider performs the bounded same-site crawl of one broker site.
//
// The homepage is fetched first and feeds the candidate generator. Generated
// candidates are then fetched by a small worker pool in score order until the
// frontier drains, the page budget is spent, or the context ends.
type Spider struct {
	fetcher   Fetcher
	generator *Generator

	// workers bounds concurrent fetches.
	workers int

	// respectRobots skips non-seed URLs disallowed by robots.txt.
	respectRobots bool

	// sitemaps enables robots.txt/sitemap candidate discovery.
	sitemaps bool

	// robotsAgent is matched against robots.txt user-agent groups.
	robotsAgent string

	// documentText is how many recorded documents get their text extracted.
	documentText int

	// ignorePatterns are URL path globs never crawled (e.g. "/blog/*").
	ignorePatterns []string

	// followPatterns, when set, restrict discovered URLs to matching paths.
	followPatterns []string

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithWorkers sets the number of concurrent fetches, clamped to 1..8.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		s.workers = min(max(n, 1), maxWorkers)
	}
}

// WithRobots makes the spider honor robots.txt for non-seed URLs.
func WithRobots(respect bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = respect
	}
}

// WithSitemaps enables or disables sitemap discovery.
func WithSitemaps(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.sitemaps = enabled
	}
}

// WithRobotsAgent sets the robots.txt product token.
func WithRobotsAgent(agent string) SpiderOption {
	return func(s *Spider) {
		if agent != "" {
			s.robotsAgent = agent
		}
	}
}

// WithDocumentText sets how many documents get their text extracted. Zero
// disables extraction.
func WithDocumentText(n int) SpiderOption {
	return func(s *Spider) {
		s.documentText = max(n, 0)
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/blog/*", "*.aspx", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only discovered URLs matching at least one pattern are crawled.
// Seeds are always crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithSpiderLogger sets the logger.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches through f.
func NewSpider(f Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:       f,
		workers:       DefaultWorkers,
		respectRobots: false,
		sitemaps:      true,
		robotsAgent:   DefaultRobotsAgent,
		documentText:  DefaultDocumentTextLimit,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.generator = NewGenerator(f, WithSitemapDiscovery(s.sitemaps), WithGeneratorLogger(s.logger))
	return s
}

// Result is everything one crawl produced.
type Result struct {
	// Origin is scheme://host of the crawled site.
	Origin string

	// Candidates is the generator output before admission.
	Candidates []model.CandidateURL

	// Pages are the successfully fetched, parsed, distinct pages.
	Pages []*model.FetchedPage

	// TriedPaths are all URLs admitted for fetching, in admission order.
	// Its length never exceeds the page budget.
	TriedPaths []string

	// Sources are same-site URLs that were fetched or recorded as documents.
	Sources []string

	// Documents are recorded document links.
	Documents []string

	// Anchors are the anchors of all pages in traversal order.
	Anchors []model.Anchor

	// FetchFailures counts failed fetches.
	FetchFailures int

	// TimedOut is true when the context ended before the frontier drained.
	TimedOut bool

	// Errors are the non-fatal errors met while crawling.
	Errors []error
}

// Crawl runs one bounded crawl. Every fetch, robots.txt and sitemaps
// included, is bounded by req.Timeout. Individual fetch failures never abort it; the
// only error is a request without a usable origin. Pages fetched before the
// context ends are kept.
func (s *Spider) Crawl(ctx context.Context, req model.CrawlRequest) (*Result, error) {
	req = req.WithDefaults()
	ctx = fetch.ContextWithTimeout(ctx, req.Timeout)

	homepage := canonicalTarget(req.Homepage)
	var seeds []string
	for _, seed := range req.Seeds {
		if c := canonicalTarget(seed); c != "" {
			seeds = append(seeds, c)
		}
	}

	origin := Origin(homepage)
	if origin == "" && len(seeds) > 0 {
		origin = Origin(seeds[0])
	}
	if origin == "" {
		return nil, ErrNoOrigin
	}

	st := newCrawlState(req, origin)
	for _, seed := range seeds {
		st.seeds[seed] = true
	}

	if s.respectRobots || s.sitemaps {
		st.robots = FetchRobots(ctx, s.fetcher, origin)
	}

	var home *ParseResult
	if homepage != "" {
		st.mu.Lock()
		st.seen[homepage] = true
		cand, ok := st.admitLocked(model.CandidateURL{URL: homepage, OriginLabel: model.OriginHomepage})
		st.mu.Unlock()
		if ok {
			home = s.visit(ctx, st, cand, false)
		}
	}

	cands := s.generator.Generate(ctx, GeneratorInput{
		Origin:      origin,
		HomepageURL: homepage,
		Seeds:       seeds,
		Homepage:    home,
		Robots:      st.robots,
	})
	st.result.Candidates = cands

	st.mu.Lock()
	for _, c := range cands {
		s.enqueueLocked(st, c)
	}
	st.mu.Unlock()

	s.run(ctx, st)
	s.extractDocuments(ctx, st)

	s.logger.Info("crawl finished",
		"origin", origin,
		"pages", len(st.result.Pages),
		"tried", len(st.result.TriedPaths),
		"failures", st.result.FetchFailures,
		"timed_out", st.result.TimedOut)

	return st.result, nil
}

// run dispatches frontier entries to the worker pool until nothing is queued
// or in flight, the budget is spent, or ctx ends.
func (s *Spider) run(ctx context.Context, st *crawlState) {
	var g errgroup.Group
	g.SetLimit(s.workers)

	for {
		st.mu.Lock()
		if ctx.Err() != nil {
			if st.frontier.len() > 0 || st.inflight > 0 {
				st.result.TimedOut = true
			}
			st.mu.Unlock()
			break
		}
		cand, ok := st.nextLocked()
		if !ok {
			idle := st.inflight == 0
			st.mu.Unlock()
			if idle {
				break
			}
			select {
			case <-st.wake:
			case <-ctx.Done():
			}
			continue
		}
		st.inflight++
		st.mu.Unlock()

		g.Go(func() error {
			s.visit(ctx, st, cand, true)
			st.mu.Lock()
			st.inflight--
			st.mu.Unlock()
			st.signal()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors
}

// visit fetches one admitted URL and folds the response into the result. It
// returns the parse of an HTML page so the homepage can feed the generator.
func (s *Spider) visit(ctx context.Context, st *crawlState, cand model.CandidateURL, discover bool) *ParseResult {
	resp, err := s.fetcher.Get(ctx, cand.URL)
	if err != nil {
		st.fail(err)
		s.logger.Debug("fetch failed", "url", cand.URL, "error", err)
		return nil
	}

	final := Canonicalize(resp.FinalURL)
	if final == "" {
		final = cand.URL
	}
	if !SameSite(st.origin, final) {
		st.addError(fmt.Errorf("%s redirected off-site to %s", cand.URL, final))
		return nil
	}

	switch {
	case resp.IsPDF() || IsDocument(final):
		st.mu.Lock()
		st.recordDocumentLocked(final)
		st.mu.Unlock()
		return nil

	case resp.IsJSON():
		strs := ParseEmbeddedJSON(string(resp.Body))
		page := &model.FetchedPage{URL: final, EmbeddedStrings: strs, Hash: resp.Hash}
		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.addPageLocked(page) || !discover {
			return nil
		}
		for _, v := range strs {
			if looksLikeURL(v) {
				s.discoverLocked(st, cand, resolveAgainst(final, v), "", model.OriginEmbedded)
			}
		}
		return nil

	case resp.IsHTML():
		parser, err := NewParser(final)
		if err != nil {
			st.addError(fmt.Errorf("parse %s: %w", final, err))
			return nil
		}
		parsed, err := parser.Parse(bytes.NewReader(resp.Body))
		if err != nil {
			st.addError(fmt.Errorf("parse %s: %w", final, err))
			return nil
		}
		page := &model.FetchedPage{
			URL:             final,
			RawText:         joinTitle(parsed.Title, parsed.Text),
			Anchors:         parsed.Anchors,
			EmbeddedStrings: parsed.EmbeddedStrings,
			Hash:            resp.Hash,
		}

		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.addPageLocked(page) {
			return nil
		}
		st.result.Anchors = append(st.result.Anchors, parsed.Anchors...)
		for _, a := range parsed.Anchors {
			if IsDocument(a.URL) && SameSite(st.origin, a.URL) {
				st.recordDocumentLocked(a.URL)
			}
		}
		if discover {
			for _, a := range parsed.Anchors {
				s.discoverLocked(st, cand, a.URL, a.Label, model.OriginAnchor)
			}
			for _, u := range parsed.EmbeddedURLs {
				s.discoverLocked(st, cand, u, "", model.OriginEmbedded)
			}
		}
		return parsed

	default:
		s.logger.Debug("skipping unsupported content", "url", final, "content_type", resp.ContentType)
		return nil
	}
}

// discoverLocked enqueues a link found on a page when it is same-site,
// regulatory-looking and within the depth limit.
func (s *Spider) discoverLocked(st *crawlState, parent model.CandidateURL, rawURL, label, originLabel string) {
	c := Canonicalize(rawURL)
	if c == "" || !SameSite(st.origin, c) || IsBinaryAsset(c) {
		return
	}
	if IsDocument(c) {
		st.recordDocumentLocked(c)
		return
	}
	depth := parent.Depth + 1
	if depth > st.req.MaxDepth {
		return
	}
	if !IsJSONEndpoint(c) && !isRegulatoryLink(c, label) {
		return
	}
	s.enqueueLocked(st, model.CandidateURL{
		URL:         c,
		Depth:       depth,
		Score:       Score(c, label, nil),
		OriginLabel: originLabel,
	})
}

// enqueueLocked pushes c to the frontier unless it is out of depth, already
// seen, filtered, or a document.
func (s *Spider) enqueueLocked(st *crawlState, c model.CandidateURL) {
	if c.Depth > st.req.MaxDepth || st.seen[c.URL] {
		return
	}
	if IsDocument(c.URL) {
		st.recordDocumentLocked(c.URL)
		return
	}
	if !st.seeds[c.URL] {
		if !s.shouldCrawl(c.URL) {
			return
		}
		if s.respectRobots && !RobotsAllow(st.robots, c.URL, s.robotsAgent) {
			s.logger.Debug("disallowed by robots.txt", "url", c.URL)
			return
		}
	}
	st.seen[c.URL] = true
	st.frontier.push(c)
}

// extractDocuments fetches the first recorded documents while budget remains
// and keeps their text as pages. Extraction failures are ignored.
func (s *Spider) extractDocuments(ctx context.Context, st *crawlState) {
	if s.documentText == 0 || !st.req.AllowDocumentLinks {
		return
	}
	st.mu.Lock()
	docs := append([]string(nil), st.result.Documents...)
	st.mu.Unlock()
	if len(docs) > s.documentText {
		docs = docs[:s.documentText]
	}

	for _, doc := range docs {
		if ctx.Err() != nil {
			return
		}
		st.mu.Lock()
		cand, ok := st.admitLocked(model.CandidateURL{URL: doc, OriginLabel: model.OriginAnchor})
		st.mu.Unlock()
		if !ok {
			return
		}
		resp, err := s.fetcher.Get(ctx, cand.URL)
		if err != nil {
			st.fail(err)
			continue
		}
		text := ExtractPDFText(resp.Body)
		if text == "" {
			continue
		}
		st.mu.Lock()
		st.addPageLocked(&model.FetchedPage{URL: doc, RawText: text, Hash: resp.Hash})
		st.mu.Unlock()
	}
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If URL matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and URL matches none, skip it (return false)
//  3. Otherwise, crawl it (return true)
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/blog/*" matches "/blog/2024", "/blog/news"
//   - "*.aspx" matches "/legal/terms.aspx"
//   - "/en-??/*" matches "/en-gb/legal"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Bare filename patterns such as "*.pdf" also match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}

// crawlState is the shared state of one crawl, guarded by mu.
type crawlState struct {
	req    model.CrawlRequest
	origin string
	robots *robotstxt.RobotsData

	mu       sync.Mutex
	frontier *frontier
	seeds    map[string]bool
	seen     map[string]bool
	hashes   map[string]bool
	sources  map[string]bool
	docs     map[string]bool
	admitted int
	inflight int
	result   *Result

	wake chan struct{}
}

func newCrawlState(req model.CrawlRequest, origin string) *crawlState {
	return &crawlState{
		req:      req,
		origin:   origin,
		frontier: newFrontier(),
		seeds:    make(map[string]bool),
		seen:     make(map[string]bool),
		hashes:   make(map[string]bool),
		sources:  make(map[string]bool),
		docs:     make(map[string]bool),
		result:   &Result{Origin: origin},
		wake:     make(chan struct{}, 1),
	}
}

// admitLocked charges c against the page budget and records it as tried.
func (st *crawlState) admitLocked(c model.CandidateURL) (model.CandidateURL, bool) {
	if st.admitted >= st.req.MaxPages {
		return model.CandidateURL{}, false
	}
	st.admitted++
	st.result.TriedPaths = append(st.result.TriedPaths, c.URL)
	return c, true
}

// nextLocked pops and admits the best queued candidate.
func (st *crawlState) nextLocked() (model.CandidateURL, bool) {
	if st.admitted >= st.req.MaxPages {
		return model.CandidateURL{}, false
	}
	c, ok := st.frontier.pop()
	if !ok {
		return model.CandidateURL{}, false
	}
	return st.admitLocked(c)
}

// addPageLocked appends page unless an identical body was already kept.
func (st *crawlState) addPageLocked(page *model.FetchedPage) bool {
	if page.Hash != "" {
		if st.hashes[page.Hash] {
			return false
		}
		st.hashes[page.Hash] = true
	}
	st.result.Pages = append(st.result.Pages, page)
	st.addSourceLocked(page.URL)
	return true
}

func (st *crawlState) recordDocumentLocked(u string) {
	st.seen[u] = true
	if !st.req.AllowDocumentLinks || st.docs[u] {
		return
	}
	st.docs[u] = true
	st.result.Documents = append(st.result.Documents, u)
	st.addSourceLocked(u)
}

func (st *crawlState) addSourceLocked(u string) {
	if st.sources[u] || !SameSite(st.origin, u) {
		return
	}
	st.sources[u] = true
	st.result.Sources = append(st.result.Sources, u)
}

// fail records a failed fetch. Cancellation marks the crawl as timed out
// instead of counting as a failure.
func (st *crawlState) fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if kind, ok := fetch.KindOf(err); ok && kind == fetch.KindCancelled {
		st.result.TimedOut = true
		return
	}
	st.result.FetchFailures++
	st.result.Errors = append(st.result.Errors, err)
}

func (st *crawlState) addError(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.result.Errors = append(st.result.Errors, err)
}

func (st *crawlState) signal() {
	select {
	case st.wake <- struct{}{}:
	default:
	}
}

// canonicalTarget canonicalizes a user-supplied URL, assuming https when the
// scheme is missing.
func canonicalTarget(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	return Canonicalize(raw)
}

func resolveAgainst(base, href string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return resolveHref(u, href)
}

func joinTitle(title, text string) string {
	switch {
	case title == "":
		return text
	case text == "":
		return title
	default:
		return title + " " + text
	}
}
