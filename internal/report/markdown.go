package report

import (
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/webscrapy/getallspider/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	simple := report.SimpleReport
	if simple == nil {
		simple = model.NewSimpleReport(report)
	}

	return w.WriteSimple(simple)
}

// WriteSimple outputs the simple report in Markdown format.
func (w *MarkdownWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	// Header
	w.writeHeader(md, report)

	// Summary
	w.writeSummary(md, report)

	// Response status breakdown
	w.writeStatusCodes(md, report)

	// Content type breakdown
	w.writeContentTypes(md, report)

	// Footer
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SimpleReport) {
	md.H1("getallspider Crawl Report")
	md.PlainText("")

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed URL", "`" + report.Seed + "`"},
			{"Host", "`" + report.Host + "`"},
			{"Crawl Date", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", strconv.FormatFloat(report.ElapsedSeconds, 'f', 1, 64) + "s"},
			{"Pages Fetched", strconv.Itoa(report.PagesFetched)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.SimpleReport) string {
	switch {
	case report.Error != "":
		return "❌ Error - " + report.Error
	case report.FinishReason == model.FinishReasonCanceled:
		return "⚠️ Canceled (partial results)"
	case report.FinishReason == model.FinishReasonPageLimit:
		return "⚠️ Page Limit Reached (partial results)"
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the crawl counter section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.SimpleReport) {
	md.H2("Crawl Summary")
	md.PlainText("")

	// Summary table
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Pages fetched", strconv.Itoa(report.PagesFetched)},
			{"Files saved", strconv.Itoa(report.FilesSaved)},
			{"Bytes saved", formatBytes(report.BytesSaved)},
			{"Links recorded", strconv.Itoa(report.LinksRecorded)},
			{"Skipped existing", strconv.Itoa(report.SkippedExisting)},
			{"Offsite filtered", strconv.Itoa(report.OffsiteFiltered)},
			{"Ignored responses", strconv.Itoa(report.IgnoredResponses)},
			{"Request errors", strconv.Itoa(report.RequestErrors)},
			{"**Total responses**", "**" + strconv.Itoa(report.TotalResponses()) + "**"},
		},
	})
	md.PlainText("")

	// Add pie chart if there are responses
	if report.TotalResponses() > 0 {
		w.writePieChart(md, report)
	}

	// Add alert based on crawl outcome
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart for the status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.SimpleReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Response Status Distribution"),
		piechart.WithShowData(true),
	)

	for _, code := range slices.Sorted(maps.Keys(report.StatusCounts)) {
		count := report.StatusCounts[code]
		if count > 0 {
			chart.LabelAndIntValue(strconv.Itoa(code), uint64(count))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the crawl outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.SimpleReport) {
	switch {
	case report.Error != "":
		md.Cautionf("The crawl failed: %s", report.Error)
	case report.FinishReason == model.FinishReasonCanceled:
		md.Warningf(
			"The crawl was interrupted. The mirror holds partial results for %d page(s).",
			report.PagesFetched,
		)
	case report.RequestErrors > 0:
		md.Importantf(
			"%d request(s) failed after all retries. The mirror may be missing pages.",
			report.RequestErrors,
		)
	case report.FinishReason == model.FinishReasonPageLimit:
		md.Note("The crawl stopped at the configured page limit.")
	default:
		md.Tip("The crawl completed without request errors.")
	}
	md.PlainText("")
}

// writeStatusCodes writes the response status breakdown.
func (w *MarkdownWriter) writeStatusCodes(md *markdown.Markdown, report *model.SimpleReport) {
	md.H2("Response Status")
	md.PlainText("")

	if len(report.StatusCounts) == 0 {
		md.PlainText("No responses received.")
		md.PlainText("")
		return
	}

	codes := slices.Sorted(maps.Keys(report.StatusCounts))
	rows := make([][]string, 0, len(codes))
	for _, code := range codes {
		text := http.StatusText(code)
		if text == "" {
			text = "Unknown"
		}
		rows = append(rows, []string{
			strconv.Itoa(code),
			text,
			strconv.Itoa(report.StatusCounts[code]),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Meaning", "Responses"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeContentTypes writes the content type breakdown for fetched pages.
func (w *MarkdownWriter) writeContentTypes(md *markdown.Markdown, report *model.SimpleReport) {
	md.H2("Content Types")
	md.PlainText("")

	if len(report.ContentTypes) == 0 {
		md.PlainText("No pages fetched.")
		md.PlainText("")
		return
	}

	counts := contentTypeCounts(report.ContentTypes)
	rows := make([][]string, len(counts))
	for i, ct := range counts {
		rows[i] = []string{
			"`" + truncateString(ct.name, 60) + "`",
			strconv.Itoa(ct.count),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Content Type", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [getallspider](https://github.com/webscrapy/getallspider)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
