package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/brokersafety/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of requests processed at once.
const DefaultConcurrency = 4

// RunFunc produces the report of one request. It must return a non-nil
// report even when it also returns an error.
type RunFunc func(ctx context.Context, req model.CrawlRequest) (*model.SafetyReport, error)

// BatchProcessor handles concurrent processing of multiple crawl requests.
// It uses errgroup to manage goroutines and respect concurrency limits.
// Requests share nothing but what run closes over.
type BatchProcessor struct {
	// run processes one request.
	run RunFunc

	// concurrency is the maximum number of concurrent requests.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed reports.
	// Access is synchronized via mutex.
	results []*model.SafetyReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent requests.
// Default is DefaultConcurrency if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor around run.
func NewBatchProcessor(run RunFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		run:         run,
		concurrency: DefaultConcurrency,
		results:     make([]*model.SafetyReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch processes requests concurrently, bounded by the configured
// concurrency. Results keep the order of requests.
//
// A failing request never stops the others; its report carries the error.
// The returned error is only the context's, and requests that never started
// because of it have a nil report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, requests []model.CrawlRequest) ([]*model.SafetyReport, error) {
	bp.logger.Info("starting batch processing",
		"total_requests", len(requests),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	bp.mu.Lock()
	bp.results = make([]*model.SafetyReport, len(requests))
	bp.mu.Unlock()

	err := bp.each(ctx, requests, func(report *model.SafetyReport, index int) {
		bp.mu.Lock()
		bp.results[index] = report
		bp.mu.Unlock()
	})

	bp.logger.Info("batch processing complete",
		"total_requests", len(requests),
		"elapsed", time.Since(startTime),
	)

	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.results, err
}

// ProcessBatchWithCallback processes requests and calls callback for each
// completed report. This is useful for streaming results.
//
// The callback receives the report and the index of the request in the
// original slice. It is called from the goroutine that completed the
// request, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	requests []model.CrawlRequest,
	callback func(report *model.SafetyReport, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_requests", len(requests),
		"concurrency", bp.concurrency,
	)
	return bp.each(ctx, requests, callback)
}

func (bp *BatchProcessor) each(
	ctx context.Context,
	requests []model.CrawlRequest,
	callback func(report *model.SafetyReport, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, req := range requests {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("processing request",
				"target", requestTarget(req),
				"index", i+1,
				"total", len(requests),
			)

			report, err := bp.run(ctx, req)
			if report == nil {
				report = model.NewSafetyReport(requestTarget(req), "")
			}
			if err != nil {
				bp.logger.Warn("request failed",
					"target", requestTarget(req),
					"error", err,
				)
				if len(report.Errors) == 0 {
					report.Errors = append(report.Errors, err.Error())
				}
			}

			callback(report, i)
			return nil
		})
	}

	return g.Wait()
}

func requestTarget(req model.CrawlRequest) string {
	if req.Homepage != "" {
		return req.Homepage
	}
	if len(req.Seeds) > 0 {
		return req.Seeds[0]
	}
	return ""
}
