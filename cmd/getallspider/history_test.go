package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/webscrapy/getallspider/internal/database"
	"github.com/webscrapy/getallspider/internal/model"
)

// TestNewHistoryCmd tests the history command creation.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "history [host]" {
			t.Errorf("expected use 'history [host]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has urls flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("urls")
		if flag == nil {
			t.Fatal("expected urls flag")
		}
		if flag.Shorthand != "U" {
			t.Errorf("expected shorthand 'U', got %q", flag.Shorthand)
		}
	})

	t.Run("has limit flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("limit")
		if flag == nil {
			t.Fatal("expected limit flag")
		}
		if flag.DefValue != "0" {
			t.Errorf("expected default '0', got %q", flag.DefValue)
		}
	})

	t.Run("has list-hosts flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("list-hosts")
		if flag == nil {
			t.Fatal("expected list-hosts flag")
		}
		if flag.Shorthand != "L" {
			t.Errorf("expected shorthand 'L', got %q", flag.Shorthand)
		}
	})

	t.Run("has db-dir flag", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("db-dir") == nil {
			t.Fatal("expected db-dir flag")
		}
	})
}

// TestFormatRunSummary tests the one-line run summary formatting.
func TestFormatRunSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary map[string]int
		want    string
	}{
		{
			name:    "nil summary",
			summary: nil,
			want:    "N/A",
		},
		{
			name:    "zero counters",
			summary: map[string]int{},
			want:    "fetched:0 saved:0",
		},
		{
			name: "all counters",
			summary: map[string]int{
				"fetched":          10,
				"saved":            8,
				"links":            10,
				"skipped_existing": 2,
				"ignored":          1,
				"errors":           3,
			},
			want: "fetched:10 saved:8 links:10 kept:2 ignored:1 errors:3",
		},
		{
			name:    "zero optional counters hidden",
			summary: map[string]int{"fetched": 5, "saved": 5, "errors": 0},
			want:    "fetched:5 saved:5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := formatRunSummary(tt.summary)
			if got != tt.want {
				t.Errorf("formatRunSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

// captureStdout runs fn while redirecting os.Stdout, and returns what was
// printed. Tests using it must not run in parallel.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	w.Close()                                     //nolint:errcheck // pipe writer
	os.Stdout = oldStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("failed to read captured output: %v", err)
	}

	if fnErr != nil {
		t.Fatalf("unexpected error: %v", fnErr)
	}
	return buf.String()
}

// newTestLedger creates a ledger in a temp directory with two recorded
// runs and two page records for example.com.
func newTestLedger(t *testing.T) *database.CrawlDB {
	t.Helper()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	ctx := context.Background()

	previous := model.NewCrawlReport("https://example.com", "example.com")
	previous.PagesFetched = 2
	previous.FilesSaved = 2
	previous.BytesSaved = 100
	previous.Pages = []model.PageRecord{
		{URL: "https://example.com/", StatusCode: 200, Hash: "aaa", Size: 60},
		{URL: "https://example.com/old", StatusCode: 200, Hash: "bbb", Size: 40},
	}
	if err := db.SaveCrawlReport(ctx, previous); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	current := model.NewCrawlReport("https://example.com", "example.com")
	current.PagesFetched = 2
	current.FilesSaved = 2
	current.BytesSaved = 130
	current.Pages = []model.PageRecord{
		{URL: "https://example.com/", StatusCode: 200, Hash: "ccc", Size: 90},
		{URL: "https://example.com/new", StatusCode: 200, Hash: "ddd", Size: 40},
	}
	if err := db.SaveCrawlReport(ctx, current); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	for _, rec := range []*database.CrawlRecord{
		{URL: "https://example.com/", Host: "example.com", StatusCode: 200, Size: 90, Hash: "ccc"},
		{URL: "https://example.com/new", Host: "example.com", StatusCode: 200, Size: 40, Hash: "ddd"},
	} {
		if _, err := db.UpsertCrawlRecord(ctx, rec); err != nil {
			t.Fatalf("failed to upsert record: %v", err)
		}
	}

	return db
}

// TestListCrawledHosts tests the --list-hosts output.
func TestListCrawledHosts(t *testing.T) {
	// Note: Not using t.Parallel() because this test captures os.Stdout
	db := newTestLedger(t)

	output := captureStdout(t, func() error {
		return listCrawledHosts(context.Background(), db)
	})

	if !strings.Contains(output, "example.com") {
		t.Errorf("expected output to contain 'example.com', got %q", output)
	}
	if !strings.Contains(output, "Recorded hosts (1)") {
		t.Errorf("expected host count, got %q", output)
	}
}

// TestListCrawlRuns tests the run listing output.
func TestListCrawlRuns(t *testing.T) {
	// Note: Not using t.Parallel() because this test captures os.Stdout
	db := newTestLedger(t)

	t.Run("lists runs", func(t *testing.T) {
		output := captureStdout(t, func() error {
			return listCrawlRuns(context.Background(), db, "example.com", 0)
		})

		if !strings.Contains(output, "Crawl history for example.com (2 runs)") {
			t.Errorf("expected run count, got %q", output)
		}
		if !strings.Contains(output, "fetched:2") {
			t.Errorf("expected summary counters, got %q", output)
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		output := captureStdout(t, func() error {
			return listCrawlRuns(context.Background(), db, "example.com", 1)
		})

		if !strings.Contains(output, "(1 runs)") {
			t.Errorf("expected limited run count, got %q", output)
		}
	})

	t.Run("unknown host", func(t *testing.T) {
		output := captureStdout(t, func() error {
			return listCrawlRuns(context.Background(), db, "unknown.example", 0)
		})

		if !strings.Contains(output, "No crawl history found") {
			t.Errorf("expected empty history message, got %q", output)
		}
	})
}

// TestListPageRecords tests the --urls output.
func TestListPageRecords(t *testing.T) {
	// Note: Not using t.Parallel() because this test captures os.Stdout
	db := newTestLedger(t)

	output := captureStdout(t, func() error {
		return listPageRecords(context.Background(), db, "example.com", 0)
	})

	if !strings.Contains(output, "https://example.com/new") {
		t.Errorf("expected page URL in output, got %q", output)
	}
	if !strings.Contains(output, "Page records for example.com (2)") {
		t.Errorf("expected record count, got %q", output)
	}
}

// TestRunHistoryCmdErrors tests the history command's error paths.
func TestRunHistoryCmdErrors(t *testing.T) {
	t.Parallel()

	t.Run("host required", func(t *testing.T) {
		t.Parallel()

		cmd := NewHistoryCmd()
		cmd.SetArgs([]string{"--db-dir", t.TempDir()})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error when host is missing")
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		cmd := NewHistoryCmd()
		cmd.SetArgs([]string{"example.com", "--db-dir", t.TempDir()})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for missing database")
		}
	})
}
