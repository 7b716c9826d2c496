package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/brokersafety/internal/crawler"
	"github.com/nao1215/brokersafety/internal/detect"
	"github.com/nao1215/brokersafety/internal/links"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/normalize"
	"github.com/nao1215/brokersafety/internal/regulator"
)

// Step names.
const (
	StepCrawl     = "crawl"
	StepDetect    = "detect"
	StepClassify  = "classify_links"
	StepNormalize = "normalize"
)

// CrawlStep runs the bounded crawl of the requested site and copies pages,
// anchors and crawl metadata into the scan.
type CrawlStep struct {
	// spider performs the traversal.
	spider *crawler.Spider

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawl step around spider.
func NewCrawlStep(spider *crawler.Spider, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		spider: spider,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return StepCrawl
}

// Do executes the crawl step. Fetch failures are recorded in the scan; only
// a request without a usable origin fails the step.
func (s *CrawlStep) Do(ctx context.Context, scan *model.SafetyScan) error {
	res, err := s.spider.Crawl(ctx, scan.Request)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", target(scan), err)
	}

	scan.Origin = res.Origin
	scan.Candidates = res.Candidates
	scan.Pages = res.Pages
	scan.TriedPaths = res.TriedPaths
	scan.Sources = res.Sources
	scan.Documents = res.Documents
	scan.Anchors = res.Anchors
	scan.FetchFailures = res.FetchFailures
	if res.TimedOut {
		scan.TimedOut = true
	}
	for _, e := range res.Errors {
		scan.AddError(e)
	}

	s.logger.Debug("crawl step finished",
		"origin", res.Origin,
		"candidates", len(res.Candidates),
		"pages", len(res.Pages),
		"documents", len(res.Documents),
	)
	return nil
}

// DetectStep runs regulator, entity and protection detection over the
// pages of the scan.
type DetectStep struct {
	detector *detect.Detector
}

// NewDetectStep creates a detection step. A nil detector uses the built-in
// catalog.
func NewDetectStep(detector *detect.Detector) *DetectStep {
	if detector == nil {
		detector = detect.New(nil)
	}
	return &DetectStep{detector: detector}
}

// Name returns the step name.
func (s *DetectStep) Name() string {
	return StepDetect
}

// Final reports that detection runs on partial crawls.
func (s *DetectStep) Final() bool {
	return true
}

// Do executes the detection step.
func (s *DetectStep) Do(_ context.Context, scan *model.SafetyScan) error {
	scan.Detection = s.detector.Detect(scan.Pages)
	return nil
}

// ClassifyLinksStep fills the document link slots from the scan's anchors.
// Document URLs that were recorded without an anchor are considered after
// all anchors.
type ClassifyLinksStep struct {
	classifier *links.Classifier
}

// NewClassifyLinksStep creates a link classification step. A nil classifier
// uses the built-in phrase sets.
func NewClassifyLinksStep(classifier *links.Classifier) *ClassifyLinksStep {
	if classifier == nil {
		classifier = links.New()
	}
	return &ClassifyLinksStep{classifier: classifier}
}

// Name returns the step name.
func (s *ClassifyLinksStep) Name() string {
	return StepClassify
}

// Final reports that classification runs on partial crawls.
func (s *ClassifyLinksStep) Final() bool {
	return true
}

// Do executes the classification step.
func (s *ClassifyLinksStep) Do(_ context.Context, scan *model.SafetyScan) error {
	anchors := make([]model.Anchor, 0, len(scan.Anchors)+len(scan.Documents))
	anchors = append(anchors, scan.Anchors...)
	for _, d := range scan.Documents {
		anchors = append(anchors, model.Anchor{URL: d})
	}
	scan.Links = s.classifier.Classify(anchors)
	return nil
}

// NormalizeStep builds the record of the scan.
type NormalizeStep struct {
	normalizer *normalize.Normalizer
}

// NewNormalizeStep creates a normalization step. A nil normalizer uses the
// defaults.
func NewNormalizeStep(normalizer *normalize.Normalizer) *NormalizeStep {
	if normalizer == nil {
		normalizer = normalize.New()
	}
	return &NormalizeStep{normalizer: normalizer}
}

// Name returns the step name.
func (s *NormalizeStep) Name() string {
	return StepNormalize
}

// Final reports that normalization always runs.
func (s *NormalizeStep) Final() bool {
	return true
}

// Do executes the normalization step.
func (s *NormalizeStep) Do(_ context.Context, scan *model.SafetyScan) error {
	scan.Record = s.normalizer.Normalize(scan)
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Workers is the number of concurrent fetches of one crawl.
	Workers int

	// RespectRobots filters generated candidates through robots.txt. It is
	// off by default, matching crawler.NewSpider.
	RespectRobots bool

	// Sitemaps enables sitemap discovery.
	Sitemaps bool

	// DocumentText is the number of PDF documents whose text is extracted.
	DocumentText int

	// IgnorePatterns are URL path patterns to skip during crawling.
	IgnorePatterns []string

	// FollowPatterns are URL path patterns to follow during crawling.
	FollowPatterns []string

	// Catalog is the regulator catalog. Nil selects the built-in one.
	Catalog *regulator.Catalog

	// Window is the entity pairing window in characters.
	Window int
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineWorkers sets the number of concurrent fetches.
func WithPipelineWorkers(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Workers = n
	}
}

// WithPipelineRobots enables or disables robots.txt filtering.
func WithPipelineRobots(respect bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.RespectRobots = respect
	}
}

// WithPipelineSitemaps enables or disables sitemap discovery.
func WithPipelineSitemaps(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Sitemaps = enabled
	}
}

// WithPipelineDocumentText sets how many PDFs are read for text.
func WithPipelineDocumentText(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.DocumentText = n
	}
}

// WithPipelineIgnorePatterns sets URL patterns to skip during crawling.
func WithPipelineIgnorePatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnorePatterns = patterns
	}
}

// WithPipelineFollowPatterns sets URL patterns to follow during crawling.
func WithPipelineFollowPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowPatterns = patterns
	}
}

// WithPipelineCatalog sets the regulator catalog.
func WithPipelineCatalog(catalog *regulator.Catalog) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Catalog = catalog
	}
}

// WithPipelineWindow sets the entity pairing window.
func WithPipelineWindow(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Window = n
	}
}

// DefaultPipeline creates the crawl, detect, classify and normalize pipeline
// over fetcher.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineWorkers, etc).
func DefaultPipeline(fetcher crawler.Fetcher, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		Workers:       crawler.DefaultWorkers,
		RespectRobots: false,
		Sitemaps:      true,
		DocumentText:  crawler.DefaultDocumentTextLimit,
		Window:        detect.DefaultWindow,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	spider := crawler.NewSpider(fetcher,
		crawler.WithWorkers(cfg.Workers),
		crawler.WithRobots(cfg.RespectRobots),
		crawler.WithSitemaps(cfg.Sitemaps),
		crawler.WithDocumentText(cfg.DocumentText),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithSpiderLogger(p.logger),
	)

	p.AddSteps(
		NewCrawlStep(spider, WithCrawlLogger(p.logger)),
		NewDetectStep(detect.New(cfg.Catalog, detect.WithWindow(cfg.Window), detect.WithLogger(p.logger))),
		NewClassifyLinksStep(links.New(links.WithLogger(p.logger))),
		NewNormalizeStep(normalize.New(normalize.WithLogger(p.logger))),
	)

	return p
}
