package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/model"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(_ string) (*Pipeline, error) { return New(), nil })

		if bp == nil {
			t.Fatal("expected non-nil processor")
		}
		if bp.concurrency != config.DefaultBatchConcurrency {
			t.Errorf("expected default concurrency %d, got %d",
				config.DefaultBatchConcurrency, bp.concurrency)
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, error) { return New(), nil },
			WithConcurrency(5),
		)

		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, error) { return New(), nil },
			WithConcurrency(0),
		)

		if bp.concurrency != config.DefaultBatchConcurrency { // Should keep default
			t.Errorf("expected concurrency %d, got %d",
				config.DefaultBatchConcurrency, bp.concurrency)
		}
	})

	t.Run("applies WithBatchLogger option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, error) { return New(), nil },
			WithBatchLogger(nil),
		)

		// When WithBatchLogger(nil) is passed, the logger should be set to default
		if bp == nil {
			t.Fatal("expected non-nil processor")
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestBatchProcessorProcessBatch tests batch crawling.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("processes all seeds", func(t *testing.T) {
		t.Parallel()

		var processedCount atomic.Int32

		bp := NewBatchProcessor(func(_ string) (*Pipeline, error) {
			p := New()
			p.AddStep(&mockStep{
				name: "counter",
				doFunc: func(_ context.Context, _ *model.CrawlReport) error {
					processedCount.Add(1)
					return nil
				},
			})
			return p, nil
		})

		seeds := []string{
			"http://first.example/",
			"http://second.example/",
			"http://third.example/",
		}

		results, err := bp.ProcessBatch(context.Background(), seeds)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Errorf("expected 3 results, got %d", len(results))
		}
		if processedCount.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processedCount.Load())
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var maxConcurrent atomic.Int32
		var currentConcurrent atomic.Int32
		var mu sync.Mutex

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, error) {
				p := New()
				p.AddStep(&mockStep{
					name: "concurrent-counter",
					doFunc: func(_ context.Context, _ *model.CrawlReport) error {
						current := currentConcurrent.Add(1)

						// Update max if needed (with mutex for safety)
						mu.Lock()
						if current > maxConcurrent.Load() {
							maxConcurrent.Store(current)
						}
						mu.Unlock()

						// Simulate some work
						time.Sleep(50 * time.Millisecond)

						currentConcurrent.Add(-1)
						return nil
					},
				})
				return p, nil
			},
			WithConcurrency(2),
		)

		seeds := make([]string, 10)
		for i := range seeds {
			seeds[i] = "http://site.example/"
		}

		_, err := bp.ProcessBatch(context.Background(), seeds)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if maxConcurrent.Load() > 2 {
			t.Errorf("max concurrent was %d, expected <= 2", maxConcurrent.Load())
		}
	})

	t.Run("maintains result order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(_ string) (*Pipeline, error) {
			p := New()
			p.AddStep(&mockStep{name: "noop"})
			return p, nil
		})

		seeds := []string{
			"http://first.example/",
			"http://second.example/",
			"http://third.example/",
		}

		results, err := bp.ProcessBatch(context.Background(), seeds)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, result := range results {
			if result.Seed != seeds[i] {
				t.Errorf("result[%d]: got %q, expected %q", i, result.Seed, seeds[i])
			}
		}
	})

	t.Run("continues after individual crawl failure", func(t *testing.T) {
		t.Parallel()

		var processedCount atomic.Int32

		bp := NewBatchProcessor(func(_ string) (*Pipeline, error) {
			p := New()
			p.AddStep(&mockStep{
				name: "sometimes-fails",
				doFunc: func(_ context.Context, report *model.CrawlReport) error {
					processedCount.Add(1)
					// Fail for the second seed only
					if report.Seed == "http://fail.example/" {
						return errors.New("simulated crawl failure")
					}
					return nil
				},
			})
			return p, nil
		})

		seeds := []string{
			"http://first.example/",
			"http://fail.example/",
			"http://third.example/",
		}

		results, err := bp.ProcessBatch(context.Background(), seeds)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if processedCount.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processedCount.Load())
		}
		// Check that the failed crawl has an error recorded
		if results[1].Error == nil {
			t.Error("expected error in second result")
		}
	})

	t.Run("records a factory failure on the report", func(t *testing.T) {
		t.Parallel()

		factoryErr := errors.New("bad seed")

		bp := NewBatchProcessor(func(seed string) (*Pipeline, error) {
			if seed == "http://bad.example/" {
				return nil, factoryErr
			}
			p := New()
			p.AddStep(&mockStep{name: "noop"})
			return p, nil
		})

		seeds := []string{
			"http://good.example/",
			"http://bad.example/",
		}

		results, err := bp.ProcessBatch(context.Background(), seeds)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Error != nil {
			t.Errorf("expected no error in first result, got %v", results[0].Error)
		}
		if !errors.Is(results[1].Error, factoryErr) {
			t.Errorf("expected factory error in second result, got %v", results[1].Error)
		}
		if results[1].ErrorMessage != factoryErr.Error() {
			t.Errorf("expected error message %q, got %q", factoryErr.Error(), results[1].ErrorMessage)
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())

		var startedCount atomic.Int32

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, error) {
				p := New()
				p.AddStep(&mockStep{
					name: "slow-step",
					doFunc: func(ctx context.Context, _ *model.CrawlReport) error {
						startedCount.Add(1)
						select {
						case <-ctx.Done():
							return ctx.Err()
						case <-time.After(time.Second):
							return nil
						}
					},
				})
				return p, nil
			},
			WithConcurrency(2),
		)

		seeds := make([]string, 10)
		for i := range seeds {
			seeds[i] = "http://site.example/"
		}

		// Cancel after a short delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := bp.ProcessBatch(ctx, seeds)

		// Should return context.Canceled
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		// Not all seeds should have started
		//nolint:gosec // len(seeds) is small, no overflow risk
		if startedCount.Load() >= int32(len(seeds)) {
			t.Error("expected some seeds to not start due to cancellation")
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests callback-based crawling.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	t.Run("calls callback for each result", func(t *testing.T) {
		t.Parallel()

		var callbackCount atomic.Int32
		var mu sync.Mutex
		receivedSeeds := make(map[string]bool)

		bp := NewBatchProcessor(func(_ string) (*Pipeline, error) {
			p := New()
			p.AddStep(&mockStep{name: "noop"})
			return p, nil
		})

		seeds := []string{
			"http://first.example/",
			"http://second.example/",
			"http://third.example/",
		}

		err := bp.ProcessBatchWithCallback(
			context.Background(),
			seeds,
			func(report *model.CrawlReport, _ int) {
				callbackCount.Add(1)
				mu.Lock()
				receivedSeeds[report.Seed] = true
				mu.Unlock()
			},
		)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if callbackCount.Load() != 3 {
			t.Errorf("expected 3 callbacks, got %d", callbackCount.Load())
		}
		for _, seed := range seeds {
			if !receivedSeeds[seed] {
				t.Errorf("missing callback for %q", seed)
			}
		}
	})
}
