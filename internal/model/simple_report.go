package model

import (
	"strings"
	"time"
)

// SimpleReport is a summarized, human-readable view of a crawl run.
//
// Design decision: We derive a separate summary rather than printing parts
// of CrawlReport because:
// 1. It gives the writers a stable, presentation-ready shape
// 2. It can be serialized to JSON for tools that want structured but small output
// 3. It separates presentation concerns from data collection
type SimpleReport struct {
	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// Host is the seed's hostname.
	Host string `json:"host"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// ElapsedSeconds is the crawl duration in seconds.
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	// FinishReason records how the crawl ended.
	FinishReason string `json:"finish_reason,omitempty"`

	// === Counters ===

	// PagesFetched is the number of 2xx responses received.
	PagesFetched int `json:"pages_fetched"`

	// FilesSaved is the number of bodies written to the mirror.
	FilesSaved int `json:"files_saved"`

	// LinksRecorded is the number of URLs appended to the links file.
	LinksRecorded int `json:"links_recorded"`

	// SkippedExisting counts fetches discarded because the file existed.
	SkippedExisting int `json:"skipped_existing"`

	// OffsiteFiltered counts URLs dropped by the allowed-domains filter.
	OffsiteFiltered int `json:"offsite_filtered"`

	// IgnoredResponses counts non-2xx responses.
	IgnoredResponses int `json:"ignored_responses"`

	// RequestErrors counts requests that failed after all retries.
	RequestErrors int `json:"request_errors"`

	// BytesSaved is the total size of all mirrored bodies.
	BytesSaved int64 `json:"bytes_saved"`

	// === Breakdowns ===

	// StatusCounts maps HTTP status codes to response counts.
	StatusCounts map[int]int `json:"status_counts,omitempty"`

	// ContentTypes maps media types (parameters stripped) to page counts.
	ContentTypes map[string]int `json:"content_types,omitempty"`

	// Error contains the run-level error message, if the crawl failed.
	Error string `json:"error,omitempty"`
}

// NewSimpleReport summarizes a crawl report.
func NewSimpleReport(report *CrawlReport) *SimpleReport {
	report.mu.Lock()
	defer report.mu.Unlock()

	simple := &SimpleReport{
		Seed:             report.Seed,
		Host:             report.Host,
		StartedAt:        report.StartedAt,
		FinishReason:     report.FinishReason,
		PagesFetched:     report.PagesFetched,
		FilesSaved:       report.FilesSaved,
		LinksRecorded:    report.LinksRecorded,
		SkippedExisting:  report.SkippedExisting,
		OffsiteFiltered:  report.OffsiteFiltered,
		IgnoredResponses: report.IgnoredResponses,
		RequestErrors:    report.RequestErrors,
		BytesSaved:       report.BytesSaved,
		Error:            report.ErrorMessage,
	}

	end := report.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	simple.ElapsedSeconds = end.Sub(report.StartedAt).Seconds()

	if len(report.Crawls) > 0 {
		simple.StatusCounts = make(map[int]int, 8)
		for _, status := range report.Crawls {
			simple.StatusCounts[status]++
		}
	}

	if len(report.Pages) > 0 {
		simple.ContentTypes = make(map[string]int, 8)
		for _, page := range report.Pages {
			simple.ContentTypes[mediaType(page.ContentType)]++
		}
	}

	return simple
}

// TotalResponses returns the number of completed responses of any status.
func (s *SimpleReport) TotalResponses() int {
	total := 0
	for _, n := range s.StatusCounts {
		total += n
	}
	return total
}

// mediaType strips Content-Type parameters such as charset.
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mt)
}
