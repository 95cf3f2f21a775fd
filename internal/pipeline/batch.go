package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/model"
	"golang.org/x/sync/errgroup"
)

// PipelineFactory builds a fresh pipeline for one seed URL. Batch runs
// derive per-seed defaults (save directory, links file, allowed domains)
// from the seed, so the factory receives it.
type PipelineFactory func(seed string) (*Pipeline, error)

// BatchProcessor crawls multiple seed URLs concurrently. It uses errgroup
// to manage goroutines and respect the concurrency limit.
//
// Design decision: We use a separate BatchProcessor rather than adding
// batch functionality to Pipeline because:
//  1. It keeps the Pipeline focused on single-crawl execution
//  2. It allows different batch strategies (e.g., rate limiting, retries)
//  3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each seed.
	// A factory ensures each crawl gets a fresh pipeline instance.
	pipelineFactory PipelineFactory

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed crawl reports.
	// Access is synchronized via mutex.
	results []*model.CrawlReport
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

// WithConcurrency sets the maximum number of concurrent crawls.
// Default is config.DefaultBatchConcurrency if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The factory is called once per seed to create a fresh pipeline, so
// pipeline state never leaks between crawls and per-seed defaults (save
// directory, links file) are derived from the right URL.
func NewBatchProcessor(factory PipelineFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: factory,
		concurrency:     config.DefaultBatchConcurrency,
		results:         make([]*model.CrawlReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls multiple seed URLs concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each seed gets its own goroutine, but only 'concurrency' goroutines run
// simultaneously. Per-host politeness is enforced inside each crawl; this
// limit only caps how many sites are crawled at once.
//
// Returns all reports collected, even for seeds that failed.
// The error return indicates whether the batch was canceled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlReport, error) {
	bp.logger.Info("starting batch crawl",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*model.CrawlReport, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			report := bp.crawlSeed(ctx, seed)

			// Store result regardless of error
			// The report carries error information if the crawl failed
			bp.mu.Lock()
			bp.results[i] = report
			bp.mu.Unlock()

			return nil
		})
	}

	// Wait for all crawls to complete
	err := g.Wait()

	elapsed := time.Since(startTime)
	bp.logger.Info("batch crawl complete",
		"total_seeds", len(seeds),
		"elapsed", elapsed,
	)

	return bp.results, err
}

// ProcessBatchWithCallback crawls multiple seeds and calls a callback for
// each completed crawl. This is useful for streaming results.
//
// The callback receives the report and the index of the seed in the
// original slice. The callback is called from the goroutine that completed
// the crawl, so it should be thread-safe if it accesses shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch crawl with callback",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			report := bp.crawlSeed(ctx, seed)

			// Call the callback with the result
			callback(report, i)

			return nil
		})
	}

	return g.Wait()
}

// crawlSeed builds a pipeline for one seed and runs it. The returned
// report always exists; factory and crawl failures are recorded on it so
// the batch keeps going.
func (bp *BatchProcessor) crawlSeed(ctx context.Context, seed string) *model.CrawlReport {
	report := model.NewCrawlReport(seed, hostOf(seed))

	pipeline, err := bp.pipelineFactory(seed)
	if err != nil {
		bp.logger.Warn("skipping seed", "seed", seed, "error", err)
		report.Error = err
		report.ErrorMessage = err.Error()
		return report
	}

	// Don't propagate execution errors - we want to continue other crawls
	// and the error is already recorded in the report
	if err := pipeline.Execute(ctx, report); err != nil {
		bp.logger.Warn("crawl failed", "seed", seed, "error", err)
		return report
	}

	bp.logger.Info("crawl finished", "seed", seed)
	return report
}
