package model

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewCrawlReport(t *testing.T) {
	t.Parallel()

	report := NewCrawlReport("http://example.com/start", "example.com")

	if report.Seed != "http://example.com/start" {
		t.Errorf("Seed = %q, want %q", report.Seed, "http://example.com/start")
	}
	if report.Host != "example.com" {
		t.Errorf("Host = %q, want %q", report.Host, "example.com")
	}
	if report.Crawls == nil {
		t.Error("Crawls map not initialized")
	}
	if report.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestCrawlReportRecordPage(t *testing.T) {
	t.Parallel()

	report := NewCrawlReport("http://example.com/", "example.com")
	page := &Page{
		URL:         "http://example.com/about",
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Title:       "About",
		Body:        []byte("<html></html>"),
		FetchedAt:   time.Now(),
	}
	page.ComputeHash()

	report.RecordPage(page, "/tmp/mirror/example.com/about/index.html")

	if report.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", report.PagesFetched)
	}
	if got := report.Crawls["http://example.com/about"]; got != 200 {
		t.Errorf("Crawls[url] = %d, want 200", got)
	}
	if len(report.Pages) != 1 {
		t.Fatalf("len(Pages) = %d, want 1", len(report.Pages))
	}

	rec := report.Pages[0]
	if rec.URL != page.URL {
		t.Errorf("record URL = %q, want %q", rec.URL, page.URL)
	}
	if rec.Hash != page.Hash {
		t.Errorf("record Hash = %q, want %q", rec.Hash, page.Hash)
	}
	if rec.Size != int64(len(page.Body)) {
		t.Errorf("record Size = %d, want %d", rec.Size, len(page.Body))
	}
	if rec.SavedPath != "/tmp/mirror/example.com/about/index.html" {
		t.Errorf("record SavedPath = %q", rec.SavedPath)
	}
}

func TestCrawlReportCounters(t *testing.T) {
	t.Parallel()

	report := NewCrawlReport("http://example.com/", "example.com")

	report.RecordIgnored("http://example.com/missing", 404)
	report.AddRequestErrors(1)
	report.AddOffsiteFiltered(2)
	report.RecordSaved(100)
	report.RecordSaved(250)
	report.RecordSkippedExisting()
	report.RecordLink()
	report.RecordLink()
	report.RecordLink()

	if report.IgnoredResponses != 1 {
		t.Errorf("IgnoredResponses = %d, want 1", report.IgnoredResponses)
	}
	if got := report.Crawls["http://example.com/missing"]; got != 404 {
		t.Errorf("Crawls[missing] = %d, want 404", got)
	}
	if report.RequestErrors != 1 {
		t.Errorf("RequestErrors = %d, want 1", report.RequestErrors)
	}
	if report.OffsiteFiltered != 2 {
		t.Errorf("OffsiteFiltered = %d, want 2", report.OffsiteFiltered)
	}
	if report.FilesSaved != 2 {
		t.Errorf("FilesSaved = %d, want 2", report.FilesSaved)
	}
	if report.BytesSaved != 350 {
		t.Errorf("BytesSaved = %d, want 350", report.BytesSaved)
	}
	if report.SkippedExisting != 1 {
		t.Errorf("SkippedExisting = %d, want 1", report.SkippedExisting)
	}
	if report.LinksRecorded != 3 {
		t.Errorf("LinksRecorded = %d, want 3", report.LinksRecorded)
	}
	if report.TotalResponses() != 1 {
		t.Errorf("TotalResponses() = %d, want 1", report.TotalResponses())
	}
}

func TestCrawlReportConcurrentRecording(t *testing.T) {
	t.Parallel()

	report := NewCrawlReport("http://example.com/", "example.com")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.RecordLink()
			report.RecordSaved(10)
			report.AddOffsiteFiltered(1)
		}()
	}
	wg.Wait()

	if report.LinksRecorded != 50 {
		t.Errorf("LinksRecorded = %d, want 50", report.LinksRecorded)
	}
	if report.FilesSaved != 50 {
		t.Errorf("FilesSaved = %d, want 50", report.FilesSaved)
	}
	if report.BytesSaved != 500 {
		t.Errorf("BytesSaved = %d, want 500", report.BytesSaved)
	}
	if report.OffsiteFiltered != 50 {
		t.Errorf("OffsiteFiltered = %d, want 50", report.OffsiteFiltered)
	}
}

func TestCrawlReportFinish(t *testing.T) {
	t.Parallel()

	t.Run("records reason and end time", func(t *testing.T) {
		t.Parallel()

		report := NewCrawlReport("http://example.com/", "example.com")
		report.Finish(FinishReasonFinished)

		if report.FinishedAt.IsZero() {
			t.Error("FinishedAt not set")
		}
		if report.FinishReason != FinishReasonFinished {
			t.Errorf("FinishReason = %q, want %q", report.FinishReason, FinishReasonFinished)
		}
		if report.Duration() < 0 {
			t.Errorf("Duration() = %v, want >= 0", report.Duration())
		}
	})

	t.Run("propagates error message", func(t *testing.T) {
		t.Parallel()

		report := NewCrawlReport("http://example.com/", "example.com")
		report.Error = errors.New("connection refused")
		report.Finish(FinishReasonCanceled)

		if report.ErrorMessage != "connection refused" {
			t.Errorf("ErrorMessage = %q", report.ErrorMessage)
		}
	})
}

func TestNewSimpleReport(t *testing.T) {
	t.Parallel()

	report := NewCrawlReport("http://example.com/", "example.com")

	html := &Page{
		URL:         "http://example.com/",
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte("<html></html>"),
		FetchedAt:   time.Now(),
	}
	css := &Page{
		URL:         "http://example.com/style.css",
		StatusCode:  200,
		ContentType: "text/css",
		Body:        []byte("body{}"),
		FetchedAt:   time.Now(),
	}
	report.RecordPage(html, "a")
	report.RecordPage(css, "b")
	report.RecordSaved(13)
	report.RecordSaved(6)
	report.RecordIgnored("http://example.com/gone", 404)
	report.Finish(FinishReasonFinished)

	simple := NewSimpleReport(report)

	if simple.Seed != report.Seed {
		t.Errorf("Seed = %q, want %q", simple.Seed, report.Seed)
	}
	if simple.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2", simple.PagesFetched)
	}
	if simple.FilesSaved != 2 {
		t.Errorf("FilesSaved = %d, want 2", simple.FilesSaved)
	}
	if simple.BytesSaved != 19 {
		t.Errorf("BytesSaved = %d, want 19", simple.BytesSaved)
	}
	if simple.ElapsedSeconds < 0 {
		t.Errorf("ElapsedSeconds = %f, want >= 0", simple.ElapsedSeconds)
	}
	if got := simple.StatusCounts[200]; got != 2 {
		t.Errorf("StatusCounts[200] = %d, want 2", got)
	}
	if got := simple.StatusCounts[404]; got != 1 {
		t.Errorf("StatusCounts[404] = %d, want 1", got)
	}
	if got := simple.ContentTypes["text/html"]; got != 1 {
		t.Errorf("ContentTypes[text/html] = %d, want 1 (charset must be stripped)", got)
	}
	if got := simple.ContentTypes["text/css"]; got != 1 {
		t.Errorf("ContentTypes[text/css] = %d, want 1", got)
	}
	if simple.TotalResponses() != 3 {
		t.Errorf("TotalResponses() = %d, want 3", simple.TotalResponses())
	}
}

func TestCrawlReportJSONRoundTrip(t *testing.T) {
	t.Parallel()

	report := NewCrawlReport("http://example.com/", "example.com")
	report.AllowedDomains = []string{"example.com"}
	page := &Page{
		URL:         "http://example.com/",
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte("x"),
		FetchedAt:   time.Now(),
	}
	page.ComputeHash()
	report.RecordPage(page, "out/example.com/index.html")
	report.Finish(FinishReasonFinished)

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var restored CrawlReport
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if restored.Seed != report.Seed {
		t.Errorf("Seed = %q, want %q", restored.Seed, report.Seed)
	}
	if len(restored.Pages) != 1 {
		t.Fatalf("len(Pages) = %d, want 1", len(restored.Pages))
	}
	if restored.Pages[0].Hash != page.Hash {
		t.Errorf("Hash = %q, want %q", restored.Pages[0].Hash, page.Hash)
	}
	if restored.Crawls["http://example.com/"] != 200 {
		t.Errorf("Crawls not restored: %v", restored.Crawls)
	}
}
