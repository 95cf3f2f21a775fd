package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/database"
	"github.com/webscrapy/getallspider/internal/model"
)

// NewCompareCmd creates the compare command.
// This command diffs two recorded crawl runs of the same host.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [host]",
		Short: "Compare two recorded crawl runs of a host",
		Long: `Compare shows how a site changed between two recorded crawl runs.

It retrieves crawl reports from the crawl ledger and reports:
- URLs that appeared since the previous run
- URLs that disappeared
- Pages whose content hash changed
- Page-count and size deltas

The comparison requires at least two recorded runs for the host. Runs are
recorded automatically unless a crawl is started with --no-db.

Examples:
  # Compare the latest two runs of a host
  getallspider compare example.com

  # List the recorded runs of a host
  getallspider compare --list example.com

  # Compare the latest run with a specific run by ID
  getallspider compare --with-run-id 5 example.com

  # Compare with the first run after a date
  getallspider compare --since "2026-01-01" example.com

  # Output the comparison in JSON format
  getallspider compare --json example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flag
	cmd.Flags().BoolP("list", "l", false,
		"List recorded crawl runs for the host instead of comparing")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "S", "",
		"Compare with the first run after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the crawl ledger database")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("host is required (use 'getallspider history --list-hosts' to see recorded hosts)")
	}
	host := strings.ToLower(args[0])

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Compare only reads; never leave an empty ledger behind.
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only access

	ctx := context.Background()

	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listRuns {
		return listCrawlRuns(ctx, db, host, 0)
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	sinceDate, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}

	return runComparison(ctx, db, host, withRunID, sinceDate, jsonOutput, markdownOutput)
}

// runComparison performs the actual comparison between crawl reports.
func runComparison(ctx context.Context, db *database.CrawlDB, host string, withRunID int64, sinceDate string, jsonOutput, markdownOutput bool) error {
	reports, err := db.GetCrawlHistory(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}

	if len(reports) == 0 {
		return fmt.Errorf("no crawl history found for %s", host)
	}

	if len(reports) < 2 && withRunID == 0 && sinceDate == "" {
		return fmt.Errorf("at least 2 recorded runs are required for comparison (found %d)", len(reports))
	}

	// The latest run is always the current side of the diff.
	currentReport := reports[0]
	var previousReport *model.CrawlReport

	switch {
	case withRunID > 0:
		previousReport, err = db.GetCrawlReportByID(ctx, withRunID)
		if err != nil {
			return fmt.Errorf("failed to get run with ID %d: %w", withRunID, err)
		}
		if previousReport == nil {
			return fmt.Errorf("run with ID %d not found", withRunID)
		}
		if previousReport.Host != host {
			return fmt.Errorf("run ID %d belongs to %s, not %s", withRunID, previousReport.Host, host)
		}
	case sinceDate != "":
		parsedDate, err := time.Parse("2006-01-02", sinceDate)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Reports are sorted newest first; iterate in reverse to find the
		// oldest run at or after the date.
		for i := len(reports) - 1; i >= 0; i-- {
			r := reports[i]
			if !r.StartedAt.Before(parsedDate) {
				previousReport = r
				break
			}
		}
		if previousReport == nil {
			return fmt.Errorf("no runs found since %s", sinceDate)
		}
		if previousReport == currentReport {
			return fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", sinceDate)
		}
	default:
		previousReport = reports[1]
	}

	comparison := compareReports(previousReport, currentReport)

	if jsonOutput {
		return outputComparisonJSON(comparison)
	}
	if markdownOutput {
		return outputComparisonMarkdown(comparison)
	}
	return outputComparisonText(comparison)
}

// ComparisonResult holds the result of comparing two crawl runs.
type ComparisonResult struct {
	// Host is the compared host.
	Host string `json:"host"`

	// PreviousRun contains metadata about the previous run.
	PreviousRun RunMetadata `json:"previous_run"`

	// CurrentRun contains metadata about the current run.
	CurrentRun RunMetadata `json:"current_run"`

	// NewURLs lists URLs fetched in the current run but not the previous.
	NewURLs []string `json:"new_urls,omitempty"`

	// RemovedURLs lists URLs fetched in the previous run but not the current.
	RemovedURLs []string `json:"removed_urls,omitempty"`

	// ChangedPages lists URLs whose body hash changed between the runs.
	ChangedPages []PageChange `json:"changed_pages,omitempty"`

	// UnchangedCount is the number of URLs with identical content.
	UnchangedCount int `json:"unchanged_count"`

	// PageDelta is the change in fetched page count.
	PageDelta int `json:"page_delta"`

	// BytesDelta is the change in total mirrored bytes.
	BytesDelta int64 `json:"bytes_delta"`
}

// RunMetadata contains metadata about one crawl run for comparison display.
type RunMetadata struct {
	// Seed is the URL the run started from.
	Seed string `json:"seed"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// PagesFetched is the number of 2xx responses received.
	PagesFetched int `json:"pages_fetched"`

	// FilesSaved is the number of bodies written to the mirror.
	FilesSaved int `json:"files_saved"`

	// BytesSaved is the total size of all mirrored bodies.
	BytesSaved int64 `json:"bytes_saved"`
}

// PageChange describes one URL whose content changed between two runs.
type PageChange struct {
	// URL is the page location.
	URL string `json:"url"`

	// PreviousHash is the body hash in the previous run.
	PreviousHash string `json:"previous_hash"`

	// CurrentHash is the body hash in the current run.
	CurrentHash string `json:"current_hash"`

	// PreviousSize is the body size in the previous run, in bytes.
	PreviousSize int64 `json:"previous_size"`

	// CurrentSize is the body size in the current run, in bytes.
	CurrentSize int64 `json:"current_size"`
}

// compareReports diffs the page sets of two crawl reports.
func compareReports(previous, current *model.CrawlReport) *ComparisonResult {
	result := &ComparisonResult{
		Host:        current.Host,
		PreviousRun: runMetadata(previous),
		CurrentRun:  runMetadata(current),
	}

	previousPages := pagesByURL(previous)
	currentPages := pagesByURL(current)

	for url, page := range currentPages {
		prev, exists := previousPages[url]
		switch {
		case !exists:
			result.NewURLs = append(result.NewURLs, url)
		case prev.Hash != page.Hash:
			result.ChangedPages = append(result.ChangedPages, PageChange{
				URL:          url,
				PreviousHash: prev.Hash,
				CurrentHash:  page.Hash,
				PreviousSize: prev.Size,
				CurrentSize:  page.Size,
			})
		default:
			result.UnchangedCount++
		}
	}

	for url := range previousPages {
		if _, exists := currentPages[url]; !exists {
			result.RemovedURLs = append(result.RemovedURLs, url)
		}
	}

	// Map iteration order is random; sort for stable output.
	sort.Strings(result.NewURLs)
	sort.Strings(result.RemovedURLs)
	sort.Slice(result.ChangedPages, func(i, j int) bool {
		return result.ChangedPages[i].URL < result.ChangedPages[j].URL
	})

	result.PageDelta = result.CurrentRun.PagesFetched - result.PreviousRun.PagesFetched
	result.BytesDelta = result.CurrentRun.BytesSaved - result.PreviousRun.BytesSaved

	return result
}

// runMetadata extracts the comparison-relevant counters of one run.
func runMetadata(report *model.CrawlReport) RunMetadata {
	return RunMetadata{
		Seed:         report.Seed,
		StartedAt:    report.StartedAt,
		PagesFetched: report.PagesFetched,
		FilesSaved:   report.FilesSaved,
		BytesSaved:   report.BytesSaved,
	}
}

// pagesByURL indexes a report's page records by URL. A URL fetched twice
// in one run (it happens after redirects) keeps its last record.
func pagesByURL(report *model.CrawlReport) map[string]model.PageRecord {
	pages := make(map[string]model.PageRecord, len(report.Pages))
	for _, page := range report.Pages {
		pages[page.URL] = page
	}
	return pages
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(result *ComparisonResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(result *ComparisonResult) error {
	fmt.Printf("# Crawl Comparison: %s\n\n", result.Host)

	fmt.Println("## Summary")
	fmt.Println()
	fmt.Println("| Metric | Previous | Current | Change |")
	fmt.Println("|--------|----------|---------|--------|")
	fmt.Printf("| Date | %s | %s | - |\n",
		result.PreviousRun.StartedAt.Format("2006-01-02 15:04"),
		result.CurrentRun.StartedAt.Format("2006-01-02 15:04"))
	fmt.Printf("| Pages fetched | %d | %d | %s |\n",
		result.PreviousRun.PagesFetched,
		result.CurrentRun.PagesFetched,
		formatDelta(result.PageDelta))
	fmt.Printf("| Files saved | %d | %d | %s |\n",
		result.PreviousRun.FilesSaved,
		result.CurrentRun.FilesSaved,
		formatDelta(result.CurrentRun.FilesSaved-result.PreviousRun.FilesSaved))
	fmt.Printf("| Bytes saved | %d | %d | %s |\n",
		result.PreviousRun.BytesSaved,
		result.CurrentRun.BytesSaved,
		formatDelta64(result.BytesDelta))

	if len(result.NewURLs) > 0 {
		fmt.Printf("\n## New URLs (%d)\n\n", len(result.NewURLs))
		for _, url := range result.NewURLs {
			fmt.Printf("- %s\n", url)
		}
	}

	if len(result.RemovedURLs) > 0 {
		fmt.Printf("\n## Removed URLs (%d)\n\n", len(result.RemovedURLs))
		for _, url := range result.RemovedURLs {
			fmt.Printf("- ~~%s~~\n", url)
		}
	}

	if len(result.ChangedPages) > 0 {
		fmt.Printf("\n## Changed Pages (%d)\n\n", len(result.ChangedPages))
		for _, change := range result.ChangedPages {
			fmt.Printf("- %s (%d -> %d bytes)\n", change.URL, change.PreviousSize, change.CurrentSize)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Printf("\n---\n\n*%d pages unchanged*\n", result.UnchangedCount)
	}

	return nil
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(result *ComparisonResult) error {
	fmt.Printf("Crawl Comparison: %s\n", result.Host)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\nPrevious run: %s (seed %s)\n",
		result.PreviousRun.StartedAt.Format("2006-01-02 15:04:05"), result.PreviousRun.Seed)
	fmt.Printf("Current run:  %s (seed %s)\n",
		result.CurrentRun.StartedAt.Format("2006-01-02 15:04:05"), result.CurrentRun.Seed)

	fmt.Println("\nRun Summary:")
	fmt.Printf("  %-14s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Println("  " + strings.Repeat("-", 50))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Pages fetched",
		result.PreviousRun.PagesFetched, result.CurrentRun.PagesFetched,
		formatDelta(result.PageDelta))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Files saved",
		result.PreviousRun.FilesSaved, result.CurrentRun.FilesSaved,
		formatDelta(result.CurrentRun.FilesSaved-result.PreviousRun.FilesSaved))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Bytes saved",
		result.PreviousRun.BytesSaved, result.CurrentRun.BytesSaved,
		formatDelta64(result.BytesDelta))

	if len(result.NewURLs) > 0 {
		fmt.Printf("\nNew URLs (%d):\n", len(result.NewURLs))
		for _, url := range result.NewURLs {
			fmt.Printf("  [+] %s\n", url)
		}
	}

	if len(result.RemovedURLs) > 0 {
		fmt.Printf("\nRemoved URLs (%d):\n", len(result.RemovedURLs))
		for _, url := range result.RemovedURLs {
			fmt.Printf("  [-] %s\n", url)
		}
	}

	if len(result.ChangedPages) > 0 {
		fmt.Printf("\nChanged Pages (%d):\n", len(result.ChangedPages))
		for _, change := range result.ChangedPages {
			fmt.Printf("  [~] %s (%d -> %d bytes)\n", change.URL, change.PreviousSize, change.CurrentSize)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Printf("\nUnchanged: %d pages\n", result.UnchangedCount)
	}

	return nil
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}

// formatDelta64 formats a 64-bit delta with sign for display.
func formatDelta64(delta int64) string {
	if delta > 0 {
		return "+" + strconv.FormatInt(delta, 10)
	} else if delta < 0 {
		return strconv.FormatInt(delta, 10)
	}
	return "0"
}
