package report

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/webscrapy/getallspider/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no data are shown.
	showEmpty bool

	// verbose enables the per-page listing in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with the per-page listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format.
// It generates a SimpleReport from the CrawlReport if not already present.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	// Generate simple report if not already done
	simple := report.SimpleReport
	if simple == nil {
		simple = model.NewSimpleReport(report)
	}

	return w.write(simple, report)
}

// WriteSimple outputs the simple report in human-readable format.
func (w *SimpleWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	return w.write(report, nil)
}

// write renders the report sections. The full report is optional; only the
// verbose per-page listing needs it.
func (w *SimpleWriter) write(simple *model.SimpleReport, full *model.CrawlReport) (int, error) {
	var sb strings.Builder

	// Header
	w.writeHeader(&sb, simple)

	// Counters
	w.writeSummary(&sb, simple)

	// Response status breakdown
	w.writeStatusCodes(&sb, simple)

	// Content type breakdown
	w.writeContentTypes(&sb, simple)

	// Per-page listing (verbose only; the summary does not carry it)
	if w.verbose && full != nil {
		w.writePages(&sb, full)
	}

	// Footer
	w.writeFooter(&sb)

	// Write to output
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SimpleReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      GETALLSPIDER CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Seed URL:       %s\n", report.Seed))
	sb.WriteString(fmt.Sprintf("Host:           %s\n", report.Host))
	sb.WriteString(fmt.Sprintf("Crawl Date:     %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Elapsed:        %.1fs\n", report.ElapsedSeconds))
	sb.WriteString(fmt.Sprintf("Pages Fetched:  %d\n", report.PagesFetched))

	switch {
	case report.Error != "":
		sb.WriteString(fmt.Sprintf("Status:         ERROR - %s\n", report.Error))
	case report.FinishReason == model.FinishReasonCanceled:
		sb.WriteString("Status:         CANCELED (partial results)\n")
	case report.FinishReason == model.FinishReasonPageLimit:
		sb.WriteString("Status:         PAGE LIMIT REACHED (partial results)\n")
	default:
		sb.WriteString("Status:         Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the crawl counter section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.SimpleReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  FETCHED:  %d pages\n", report.PagesFetched))
	sb.WriteString(fmt.Sprintf("  SAVED:    %d files (%s)\n", report.FilesSaved, formatBytes(report.BytesSaved)))
	sb.WriteString(fmt.Sprintf("  LINKS:    %d recorded\n", report.LinksRecorded))
	sb.WriteString(fmt.Sprintf("  SKIPPED:  %d existing files kept\n", report.SkippedExisting))
	sb.WriteString(fmt.Sprintf("  OFFSITE:  %d filtered\n", report.OffsiteFiltered))
	sb.WriteString(fmt.Sprintf("  IGNORED:  %d non-success responses\n", report.IgnoredResponses))
	sb.WriteString(fmt.Sprintf("  ERRORS:   %d failed requests\n", report.RequestErrors))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  TOTAL:    %d responses\n", report.TotalResponses()))
	sb.WriteString("\n")
}

// writeStatusCodes writes the response status breakdown.
func (w *SimpleWriter) writeStatusCodes(sb *strings.Builder, report *model.SimpleReport) {
	if len(report.StatusCounts) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("RESPONSE STATUS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.StatusCounts) == 0 {
		sb.WriteString("  No responses received\n")
	} else {
		for _, code := range slices.Sorted(maps.Keys(report.StatusCounts)) {
			text := http.StatusText(code)
			if text == "" {
				text = "Unknown"
			}
			sb.WriteString(fmt.Sprintf("  [%d] %s: %d\n", code, text, report.StatusCounts[code]))
		}
	}
	sb.WriteString("\n")
}

// writeContentTypes writes the content type breakdown for fetched pages.
func (w *SimpleWriter) writeContentTypes(sb *strings.Builder, report *model.SimpleReport) {
	if len(report.ContentTypes) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CONTENT TYPES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.ContentTypes) == 0 {
		sb.WriteString("  No pages fetched\n")
	} else {
		for _, ct := range contentTypeCounts(report.ContentTypes) {
			sb.WriteString(fmt.Sprintf("  [+] %s: %d\n", ct.name, ct.count))
		}
	}
	sb.WriteString("\n")
}

// writePages writes the per-page listing from the full report.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Pages) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Pages) == 0 {
		sb.WriteString("  No pages fetched\n")
	}

	for _, page := range report.Pages {
		sb.WriteString(fmt.Sprintf("  * %s\n", page.URL))
		if page.Title != "" {
			sb.WriteString(fmt.Sprintf("    Title: %s\n", page.Title))
		}
		if page.SavedPath != "" {
			sb.WriteString(fmt.Sprintf("    Saved: %s\n", page.SavedPath))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by getallspider\n")
	sb.WriteString("https://github.com/webscrapy/getallspider\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// contentTypeCount pairs a media type with the number of pages of that type.
type contentTypeCount struct {
	name  string
	count int
}

// contentTypeCounts returns the content type breakdown sorted by page count
// (descending), then name. Pages without a Content-Type show as "(unknown)".
func contentTypeCounts(types map[string]int) []contentTypeCount {
	counts := make([]contentTypeCount, 0, len(types))
	for name, count := range types {
		if name == "" {
			name = "(unknown)"
		}
		counts = append(counts, contentTypeCount{name: name, count: count})
	}

	slices.SortFunc(counts, func(a, b contentTypeCount) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return strings.Compare(a.name, b.name)
	})

	return counts
}

// formatBytes renders a byte count in human-readable units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
