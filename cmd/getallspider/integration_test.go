package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/webscrapy/getallspider/internal/database"
	"github.com/webscrapy/getallspider/internal/model"
)

// newTestSite serves a small three-page site. The handler counts requests
// and can switch the homepage body to simulate a site change between runs.
func newTestSite(t *testing.T) (*httptest.Server, *atomic.Int64, *atomic.Bool) {
	t.Helper()

	var requests atomic.Int64
	var changed atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		body := `<html><head><title>Home</title></head>
<body><a href="/about.html">About</a> <a href="/team/">Team</a></body></html>`
		if changed.Load() {
			body = `<html><head><title>Home v2</title></head>
<body><a href="/about.html">About</a> <a href="/team/">Team</a> changed</body></html>`
		}
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/about.html", func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>About</title></head><body>About us.</body></html>`)
	})
	mux.HandleFunc("/team/", func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Team</title></head><body>The team.</body></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &requests, &changed
}

// crawlArgs returns root command arguments for a fast, quiet test crawl.
func crawlArgs(seed string, extra ...string) []string {
	args := []string{
		"--url", seed,
		"--allowed-domains", "127.0.0.1",
		"--delay", "0",
		"--randomize-delay=false",
	}
	return append(args, extra...)
}

// jsonReport mirrors the envelope written by --report-format=json.
type jsonReport struct {
	Version string             `json:"version"`
	Report  *model.CrawlReport `json:"report"`
}

// TestCrawlEndToEnd crawls a local test site through the root command and
// checks the mirror tree, the JSON report, and the crawl ledger.
func TestCrawlEndToEnd(t *testing.T) {
	// Note: Not using t.Parallel() because the crawl prints to os.Stdout
	srv, _, _ := newTestSite(t)

	tmpDir := t.TempDir()
	saveDir := filepath.Join(tmpDir, "mirror")
	dbDir := filepath.Join(tmpDir, "db")
	reportPath := filepath.Join(tmpDir, "report.json")

	cmd := NewRootCmd()
	cmd.SetArgs(crawlArgs(srv.URL,
		"--save-dir", saveDir,
		"--db-dir", dbDir,
		"--report-format", "json",
		"--report-file", reportPath,
	))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	siteDir := filepath.Join(saveDir, u.Host)

	t.Run("mirror tree", func(t *testing.T) {
		for _, path := range []string{
			filepath.Join(siteDir, "index.html"),
			filepath.Join(siteDir, "about.html"),
			filepath.Join(siteDir, "team", "index.html"),
		} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("expected mirrored file %s: %v", path, err)
			}
		}

		content, err := os.ReadFile(filepath.Join(siteDir, "about.html"))
		if err != nil {
			t.Fatalf("failed to read mirrored file: %v", err)
		}
		if !strings.Contains(string(content), "About us.") {
			t.Errorf("mirrored body does not match served body: %q", content)
		}
	})

	t.Run("json report", func(t *testing.T) {
		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("failed to read report file: %v", err)
		}

		var wrapped jsonReport
		if err := json.Unmarshal(data, &wrapped); err != nil {
			t.Fatalf("report is not valid JSON: %v", err)
		}
		if wrapped.Report == nil {
			t.Fatal("expected report field in JSON output")
		}
		if wrapped.Report.PagesFetched != 3 {
			t.Errorf("expected 3 pages fetched, got %d", wrapped.Report.PagesFetched)
		}
		if wrapped.Report.FilesSaved != 3 {
			t.Errorf("expected 3 files saved, got %d", wrapped.Report.FilesSaved)
		}
		if wrapped.Report.FinishReason != model.FinishReasonFinished {
			t.Errorf("expected finish reason %q, got %q", model.FinishReasonFinished, wrapped.Report.FinishReason)
		}
		if len(wrapped.Report.Pages) != 3 {
			t.Errorf("expected 3 page records, got %d", len(wrapped.Report.Pages))
		}
	})

	t.Run("crawl ledger", func(t *testing.T) {
		db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open ledger: %v", err)
		}
		defer db.Close() //nolint:errcheck // read-only access

		ctx := context.Background()

		reports, err := db.GetCrawlHistory(ctx, "127.0.0.1")
		if err != nil {
			t.Fatalf("failed to get crawl history: %v", err)
		}
		if len(reports) != 1 {
			t.Fatalf("expected 1 recorded run, got %d", len(reports))
		}
		if reports[0].PagesFetched != 3 {
			t.Errorf("recorded run: expected 3 pages fetched, got %d", reports[0].PagesFetched)
		}

		records, err := db.ListCrawlRecords(ctx, "127.0.0.1", 0)
		if err != nil {
			t.Fatalf("failed to list page records: %v", err)
		}
		if len(records) != 3 {
			t.Errorf("expected 3 page records, got %d", len(records))
		}
	})
}

// TestCrawlLinksOnly checks that --only-links records visited URLs without
// writing any mirror files.
func TestCrawlLinksOnly(t *testing.T) {
	// Note: Not using t.Parallel() because the test changes the working directory
	srv, _, _ := newTestSite(t)

	workDir := t.TempDir()
	t.Chdir(workDir)

	cmd := NewRootCmd()
	cmd.SetArgs(crawlArgs(srv.URL, "--only-links", "--no-db"))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	// The links file is named after the seed host, in the working directory.
	linksPath := filepath.Join(workDir, "127.0.0.1-links.txt")
	data, err := os.ReadFile(linksPath)
	if err != nil {
		t.Fatalf("expected links file: %v", err)
	}

	lines := strings.Fields(strings.TrimSpace(string(data)))
	if len(lines) != 3 {
		t.Errorf("expected 3 recorded links, got %d: %q", len(lines), data)
	}
	if !strings.Contains(string(data), "/about.html") {
		t.Errorf("expected links file to contain /about.html, got %q", data)
	}

	// Links-only mode must not create a mirror directory.
	if _, err := os.Stat(filepath.Join(workDir, "127.0.0.1")); !os.IsNotExist(err) {
		t.Error("expected no mirror directory in links-only mode")
	}
}

// TestCrawlMaxPages checks that the page budget stops the crawl.
func TestCrawlMaxPages(t *testing.T) {
	// Note: Not using t.Parallel() because the crawl prints to os.Stdout
	srv, requests, _ := newTestSite(t)

	tmpDir := t.TempDir()
	reportPath := filepath.Join(tmpDir, "report.json")

	cmd := NewRootCmd()
	cmd.SetArgs(crawlArgs(srv.URL,
		"--save-dir", filepath.Join(tmpDir, "mirror"),
		"--no-db",
		"--max-pages", "1",
		"--report-format", "json",
		"--report-file", reportPath,
	))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("failed to read report file: %v", err)
	}
	var wrapped jsonReport
	if err := json.Unmarshal(data, &wrapped); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	if wrapped.Report.PagesFetched != 1 {
		t.Errorf("expected 1 page fetched, got %d", wrapped.Report.PagesFetched)
	}
	if wrapped.Report.FinishReason != model.FinishReasonPageLimit {
		t.Errorf("expected finish reason %q, got %q", model.FinishReasonPageLimit, wrapped.Report.FinishReason)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 request to the server, got %d", got)
	}
}

// TestCrawlOverride checks the keep/replace semantics of an existing mirror:
// a re-crawl keeps files by default and replaces them with --override.
func TestCrawlOverride(t *testing.T) {
	// Note: Not using t.Parallel() because the crawl prints to os.Stdout
	srv, _, changed := newTestSite(t)

	tmpDir := t.TempDir()
	saveDir := filepath.Join(tmpDir, "mirror")

	runCrawlOnce := func(extra ...string) *model.CrawlReport {
		t.Helper()

		reportPath := filepath.Join(t.TempDir(), "report.json")
		cmd := NewRootCmd()
		cmd.SetArgs(crawlArgs(srv.URL, append([]string{
			"--save-dir", saveDir,
			"--no-db",
			"--report-format", "json",
			"--report-file", reportPath,
		}, extra...)...))

		if err := cmd.Execute(); err != nil {
			t.Fatalf("crawl failed: %v", err)
		}

		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("failed to read report file: %v", err)
		}
		var wrapped jsonReport
		if err := json.Unmarshal(data, &wrapped); err != nil {
			t.Fatalf("report is not valid JSON: %v", err)
		}
		return wrapped.Report
	}

	first := runCrawlOnce()
	if first.FilesSaved != 3 {
		t.Fatalf("first run: expected 3 files saved, got %d", first.FilesSaved)
	}

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	indexPath := filepath.Join(saveDir, u.Host, "index.html")

	// The site changes; a default re-crawl must keep the old files.
	changed.Store(true)

	second := runCrawlOnce()
	if second.SkippedExisting != 3 {
		t.Errorf("second run: expected 3 kept files, got %d", second.SkippedExisting)
	}
	if second.FilesSaved != 0 {
		t.Errorf("second run: expected 0 files saved, got %d", second.FilesSaved)
	}
	content, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("failed to read mirrored file: %v", err)
	}
	if strings.Contains(string(content), "Home v2") {
		t.Error("re-crawl without --override must not replace existing files")
	}

	// With --override the new content replaces the mirror.
	third := runCrawlOnce("--override")
	if third.FilesSaved != 3 {
		t.Errorf("third run: expected 3 files saved, got %d", third.FilesSaved)
	}
	content, err = os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("failed to read mirrored file: %v", err)
	}
	if !strings.Contains(string(content), "Home v2") {
		t.Error("re-crawl with --override must replace existing files")
	}
}

// TestCrawlBatchMode checks seed-file crawling: seeds come from the file,
// comments are skipped, and each host mirrors into its own subdirectory.
func TestCrawlBatchMode(t *testing.T) {
	// Note: Not using t.Parallel() because the crawl prints to os.Stdout
	srv, _, _ := newTestSite(t)

	tmpDir := t.TempDir()
	saveDir := filepath.Join(tmpDir, "mirror")

	seedFile := filepath.Join(tmpDir, "seeds.txt")
	seeds := "# test seeds\n\n" + srv.URL + "\n"
	if err := os.WriteFile(seedFile, []byte(seeds), 0600); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	cmd := NewRootCmd()
	cmd.SetArgs([]string{
		"--seed-file", seedFile,
		"--allowed-domains", "127.0.0.1",
		"--delay", "0",
		"--randomize-delay=false",
		"--save-dir", saveDir,
		"--no-db",
		"--batch-concurrency", "1",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("batch crawl failed: %v", err)
	}

	// Batch mode nests each seed's mirror under its host name.
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	indexPath := filepath.Join(saveDir, "127.0.0.1", u.Host, "index.html")
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("expected mirrored file %s: %v", indexPath, err)
	}
}

// TestCrawlValidation checks configuration errors surfaced by the root command.
func TestCrawlValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{
			name: "no seed",
			args: []string{"--no-db"},
		},
		{
			name: "invalid scheme",
			args: []string{"--url", "ftp://example.com", "--no-db"},
		},
		{
			name: "negative delay",
			args: []string{"--url", "https://example.com", "--delay", "-1", "--no-db"},
		},
		{
			name: "invalid allow regex",
			args: []string{"--url", "https://example.com", "--regex-allowed-urls", "[invalid", "--no-db"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			cmd.SetArgs(tt.args)

			if err := cmd.Execute(); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}
