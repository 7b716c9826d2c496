package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/brokersafety/internal/crawler"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/normalize"
	"github.com/nao1215/brokersafety/internal/pipeline"
)

// HeuristicName is the extractor name of HeuristicCrawlExtractor.
const HeuristicName = "heuristic"

// HeuristicCrawlExtractor crawls the broker site and derives the record from
// the pages it fetched. It is safe for concurrent use; every Extract call
// builds its own pipeline and crawl state.
type HeuristicCrawlExtractor struct {
	fetcher  crawler.Fetcher
	logger   *slog.Logger
	pipeline []pipeline.DefaultPipelineOption
}

// HeuristicOption configures a HeuristicCrawlExtractor.
type HeuristicOption func(*HeuristicCrawlExtractor)

// WithHeuristicLogger sets the logger passed to the pipeline.
func WithHeuristicLogger(logger *slog.Logger) HeuristicOption {
	return func(e *HeuristicCrawlExtractor) {
		e.logger = logger
	}
}

// WithPipelineConfig sets the options of the default pipeline, such as the
// number of workers or robots handling.
func WithPipelineConfig(opts ...pipeline.DefaultPipelineOption) HeuristicOption {
	return func(e *HeuristicCrawlExtractor) {
		e.pipeline = append(e.pipeline, opts...)
	}
}

// NewHeuristicCrawlExtractor returns an extractor that fetches through f.
func NewHeuristicCrawlExtractor(f crawler.Fetcher, opts ...HeuristicOption) *HeuristicCrawlExtractor {
	e := &HeuristicCrawlExtractor{fetcher: f}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Name returns HeuristicName.
func (e *HeuristicCrawlExtractor) Name() string {
	return HeuristicName
}

// Extract crawls the site named by req and returns the report.
//
// A request without homepage and seeds returns ErrNoHomepage with an
// explanatory record. An invalid request returns the validation error with
// the unresolved record. Deadline expiry is not an error: the report is
// marked TimedOut and carries whatever was collected.
func (e *HeuristicCrawlExtractor) Extract(ctx context.Context, req model.CrawlRequest) (*model.SafetyReport, error) {
	start := time.Now()
	req.Homepage = NormalizeHomepage(req.Homepage)

	report := model.NewSafetyReport(req.Homepage, e.Name())
	report.BrokerID = req.BrokerID

	if !req.HasTarget() {
		report.Record = normalize.ForMissingHomepage()
		report.Duration = time.Since(start)
		return report, ErrNoHomepage
	}

	req = req.WithDefaults()
	scan := model.NewSafetyScan(req)
	if err := req.Validate(); err != nil {
		report.Record = normalize.New(normalize.WithLogger(e.logger)).Normalize(scan)
		report.Errors = append(report.Errors, err.Error())
		report.Duration = time.Since(start)
		return report, fmt.Errorf("invalid crawl request: %w", err)
	}

	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	p := pipeline.DefaultPipeline(e.fetcher,
		[]pipeline.Option{pipeline.WithLogger(e.logger), pipeline.WithContinueOnError(true)},
		e.pipeline...,
	)
	if err := p.Execute(ctx, scan); err != nil &&
		!errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		scan.AddError(err)
	}

	if report.Homepage == "" {
		report.Homepage = scan.Origin
	}
	report.Record = scan.Record
	if report.Record == nil {
		report.Record = normalize.New(normalize.WithLogger(e.logger)).Normalize(scan)
	}
	report.PagesFetched = len(scan.Pages)
	report.TimedOut = scan.TimedOut
	for _, err := range scan.Errors() {
		report.Errors = append(report.Errors, err.Error())
	}
	report.Duration = time.Since(start)

	e.logger.Info("extraction finished",
		"homepage", report.Homepage,
		"pages", report.PagesFetched,
		"regulators", report.Record.IsRegulated,
		"timed_out", report.TimedOut,
		"duration", report.Duration,
	)
	return report, nil
}
