package model

import (
	"sync"
	"time"
)

// Finish reasons recorded on a crawl report.
const (
	// FinishReasonFinished means the frontier drained normally.
	FinishReasonFinished = "finished"

	// FinishReasonCanceled means the crawl was interrupted (signal or
	// context cancellation).
	FinishReasonCanceled = "canceled"

	// FinishReasonPageLimit means the page budget was exhausted.
	FinishReasonPageLimit = "page-limit"
)

// CrawlReport is the accumulated result of one crawl run.
// It is updated concurrently by crawl workers, so all mutation goes
// through the Record* methods, which take the internal lock.
//
// Design decision: We use a single large struct rather than many small ones
// to simplify serialization and database storage. One report row per run is
// what the history and compare commands operate on.
type CrawlReport struct {
	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// Host is the seed's hostname. It keys the crawl ledger and names the
	// links file.
	Host string `json:"host"`

	// AllowedDomains is the offsite-filter domain list. Empty means the
	// crawl was not domain-restricted.
	AllowedDomains []string `json:"allowed_domains,omitempty"`

	// SaveDir is the directory the mirror was written to.
	SaveDir string `json:"save_dir,omitempty"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl ended.
	FinishedAt time.Time `json:"finished_at"`

	// FinishReason records how the crawl ended (finished, canceled, page-limit).
	FinishReason string `json:"finish_reason,omitempty"`

	// Crawls maps URLs to their HTTP status codes.
	// Every completed response is recorded here, including ignored non-2xx ones.
	Crawls map[string]int `json:"crawls,omitempty"`

	// Pages contains one record per successfully fetched page.
	Pages []PageRecord `json:"pages,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// === Counters ===

	// PagesFetched is the number of 2xx responses received.
	PagesFetched int `json:"pages_fetched"`

	// FilesSaved is the number of bodies written to the mirror.
	FilesSaved int `json:"files_saved"`

	// LinksRecorded is the number of URLs appended to the links file.
	LinksRecorded int `json:"links_recorded"`

	// SkippedExisting counts fetches discarded because the target file
	// already existed and override was off.
	SkippedExisting int `json:"skipped_existing"`

	// OffsiteFiltered counts requests dropped by the allowed-domains filter,
	// including offsite redirects.
	OffsiteFiltered int `json:"offsite_filtered"`

	// IgnoredResponses counts non-2xx responses that were logged and dropped.
	IgnoredResponses int `json:"ignored_responses"`

	// RequestErrors counts requests that failed after all retries.
	RequestErrors int `json:"request_errors"`

	// BytesSaved is the total size of all mirrored bodies.
	BytesSaved int64 `json:"bytes_saved"`

	// === Sub-Reports ===

	// SimpleReport contains the summarized counters for human-readable output.
	SimpleReport *SimpleReport `json:"simple_report,omitempty"`

	// Error contains the run-level error, if the crawl failed outright.
	Error error `json:"-"` // Excluded from JSON

	// ErrorMessage is the string representation of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`

	mu sync.Mutex
}

// PageRecord is the per-page entry kept in a crawl report.
// It carries everything the ledger and the compare command need,
// without the body bytes.
type PageRecord struct {
	// URL is the final URL of the page.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the response Content-Type.
	ContentType string `json:"content_type,omitempty"`

	// Title is the HTML title, when the page was HTML.
	Title string `json:"title,omitempty"`

	// Size is the body length in bytes.
	Size int64 `json:"size"`

	// Hash is the SHA-256 of the body.
	Hash string `json:"hash,omitempty"`

	// SavedPath is where the body was written, empty when nothing was saved
	// (links-only mode, or an existing file was kept).
	SavedPath string `json:"saved_path,omitempty"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// NewCrawlReport creates a report for a crawl of the given seed.
func NewCrawlReport(seed, host string) *CrawlReport {
	return &CrawlReport{
		Seed:      seed,
		Host:      host,
		StartedAt: time.Now(),
		Crawls:    make(map[string]int),
	}
}

// RecordPage records a successfully fetched (2xx) page.
// savedPath may be empty when the body was not written to disk.
func (r *CrawlReport) RecordPage(page *Page, savedPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Crawls[page.URL] = page.StatusCode
	r.PagesFetched++
	r.Pages = append(r.Pages, PageRecord{
		URL:         page.URL,
		StatusCode:  page.StatusCode,
		ContentType: page.ContentType,
		Title:       page.Title,
		Size:        page.Size(),
		Hash:        page.Hash,
		SavedPath:   savedPath,
		FetchedAt:   page.FetchedAt,
	})
}

// RecordIgnored records a completed response that was dropped for its status.
func (r *CrawlReport) RecordIgnored(url string, statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Crawls[url] = statusCode
	r.IgnoredResponses++
}

// AddRequestErrors adds n requests that failed after all retries.
// The spider counts failures on its side of the visit callback, so the
// total arrives in one call at crawl end.
func (r *CrawlReport) AddRequestErrors(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.RequestErrors += n
}

// AddOffsiteFiltered adds n URLs dropped by the allowed-domains filter.
func (r *CrawlReport) AddOffsiteFiltered(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.OffsiteFiltered += n
}

// RecordSaved counts a body written to the mirror.
func (r *CrawlReport) RecordSaved(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.FilesSaved++
	r.BytesSaved += bytes
}

// RecordSkippedExisting counts a fetch discarded because the file existed.
func (r *CrawlReport) RecordSkippedExisting() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.SkippedExisting++
}

// RecordLink counts a URL appended to the links file.
func (r *CrawlReport) RecordLink() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LinksRecorded++
}

// Finish stamps the end time and reason. Safe to call once at crawl end.
func (r *CrawlReport) Finish(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.FinishedAt = time.Now()
	r.FinishReason = reason
	if r.Error != nil {
		r.ErrorMessage = r.Error.Error()
	}
}

// Duration returns the elapsed crawl time.
// Zero FinishedAt (crawl still running) measures against the current time.
func (r *CrawlReport) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TotalResponses returns the number of completed responses of any status.
func (r *CrawlReport) TotalResponses() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Crawls)
}
