package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/crawler"
	"github.com/webscrapy/getallspider/internal/database"
	"github.com/webscrapy/getallspider/internal/fetch"
	"github.com/webscrapy/getallspider/internal/model"
	"github.com/webscrapy/getallspider/internal/storage"
)

// CrawlStep runs the crawl itself: it walks the site from the report's seed
// URL, mirrors fetched bodies, records visited URLs in the links file, and
// upserts every page into the crawl ledger.
//
// Design decision: The spider only fetches and follows links; everything
// that happens to a fetched page (mirror, links file, ledger, report
// counters) is wired here in the visit callback because:
//  1. The spider stays testable without disk or database fixtures
//  2. The save/record matrix (--only-links, --also-save-links) is pipeline
//     configuration, not crawl logic
//  3. Partial results survive cancellation: each page is persisted the
//     moment it arrives
type CrawlStep struct {
	// fetcher retrieves pages. Usually a fetch.Client configured with the
	// run's timeout, headers, and proxy.
	fetcher crawler.Fetcher

	// mirror stores fetched bodies. nil disables saving (links-only mode).
	mirror *storage.Mirror

	// linksPath is the links file location. Empty disables link recording.
	// The file is opened at the start of Do and closed when the crawl ends.
	linksPath string

	// ledger receives one upserted record per fetched page. nil disables
	// the database.
	ledger *database.CrawlDB

	// delay is the minimum interval between request starts to one host.
	delay time.Duration

	// randomizeDelay jitters each interval by a factor in [0.5, 1.5).
	randomizeDelay bool

	// requestsPerDomain caps concurrent requests per host.
	requestsPerDomain int

	// maxDepth limits the link distance from the seed. 0 means unlimited.
	maxDepth int

	// maxPages limits the number of fetched pages. 0 means unlimited.
	maxPages int

	// allowedDomains restricts the crawl to the listed domains and their
	// subdomains. Empty means no restriction.
	allowedDomains []string

	// allowPattern filters resolved URLs before they are followed.
	allowPattern *regexp.Regexp

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlMirror sets the mirror that stores fetched bodies.
// Without it, nothing is written to disk.
func WithCrawlMirror(mirror *storage.Mirror) CrawlStepOption {
	return func(s *CrawlStep) {
		s.mirror = mirror
	}
}

// WithCrawlLinksPath sets the links file path. The step opens the file in
// append mode when the crawl starts and closes it when the crawl ends.
func WithCrawlLinksPath(path string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.linksPath = path
	}
}

// WithCrawlLedger sets the crawl ledger that records fetched pages.
// Ledger failures are logged; they never stop a crawl.
func WithCrawlLedger(db *database.CrawlDB) CrawlStepOption {
	return func(s *CrawlStep) {
		s.ledger = db
	}
}

// WithCrawlDelay sets the politeness delay between requests to one host.
func WithCrawlDelay(d time.Duration) CrawlStepOption {
	return func(s *CrawlStep) {
		s.delay = d
	}
}

// WithCrawlRandomizedDelay controls delay jittering.
func WithCrawlRandomizedDelay(randomize bool) CrawlStepOption {
	return func(s *CrawlStep) {
		s.randomizeDelay = randomize
	}
}

// WithCrawlRequestsPerDomain caps concurrent requests per host.
func WithCrawlRequestsPerDomain(n int) CrawlStepOption {
	return func(s *CrawlStep) {
		if n >= 1 {
			s.requestsPerDomain = n
		}
	}
}

// WithCrawlMaxDepth sets the maximum crawl depth. 0 means unlimited.
func WithCrawlMaxDepth(depth int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxDepth = depth
	}
}

// WithCrawlMaxPages sets the maximum pages to fetch. 0 means unlimited.
func WithCrawlMaxPages(maxPages int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxPages = maxPages
	}
}

// WithCrawlAllowedDomains restricts the crawl to the given domains.
func WithCrawlAllowedDomains(domains []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.allowedDomains = domains
	}
}

// WithCrawlAllowPattern keeps only URLs matching pattern on the frontier.
func WithCrawlAllowPattern(pattern *regexp.Regexp) CrawlStepOption {
	return func(s *CrawlStep) {
		s.allowPattern = pattern
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCrawlStep creates a new crawl step fetching pages with fetcher.
//
// Defaults are conservative: one request per host, one second between
// request starts, jittered. Without WithCrawlMirror or WithCrawlLinksPath
// the crawl only counts pages.
func NewCrawlStep(fetcher crawler.Fetcher, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetcher:           fetcher,
		delay:             config.DefaultDelay,
		randomizeDelay:    true,
		requestsPerDomain: config.DefaultRequestsPerDomain,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. It always stamps the report's finish reason:
// finished, page-limit, or canceled. A canceled crawl is not an error here,
// because the partial results still flow into the report and the ledger.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	var links *storage.LinksFile
	if s.linksPath != "" {
		var err error
		links, err = storage.OpenLinksFile(s.linksPath)
		if err != nil {
			return fmt.Errorf("failed to open links file: %w", err)
		}
		defer links.Close() //nolint:errcheck // append-only file, every line already flushed
	}

	spider := crawler.NewSpider(s.fetcher,
		crawler.WithDelay(s.delay),
		crawler.WithRandomizedDelay(s.randomizeDelay),
		crawler.WithRequestsPerDomain(s.requestsPerDomain),
		crawler.WithMaxDepth(s.maxDepth),
		crawler.WithMaxPages(s.maxPages),
		crawler.WithAllowedDomains(s.allowedDomains),
		crawler.WithAllowPattern(s.allowPattern),
		crawler.WithSpiderLogger(s.logger),
	)

	visit := func(ctx context.Context, page *model.Page) error {
		if !page.IsSuccess() {
			report.RecordIgnored(page.URL, page.StatusCode)
			s.logger.Info("ignoring response",
				"url", page.URL,
				"status", page.StatusCode,
			)
			return nil
		}

		if links != nil {
			if err := links.Add(page.URL); err != nil {
				s.logger.Warn("failed to record link", "url", page.URL, "error", err)
			} else {
				report.RecordLink()
			}
		}

		savedPath := ""
		if s.mirror != nil {
			path, err := s.mirror.Save(page.URL, page.ContentType, page.Body)
			switch {
			case errors.Is(err, storage.ErrFileExists):
				report.RecordSkippedExisting()
				s.logger.Debug("keeping existing file", "url", page.URL, "path", path)
			case err != nil:
				s.logger.Warn("failed to save page", "url", page.URL, "error", err)
			default:
				savedPath = path
				report.RecordSaved(page.Size())
				s.logger.Debug("saved page",
					"url", page.URL,
					"path", path,
					"bytes", page.Size(),
				)
			}
		}

		report.RecordPage(page, savedPath)
		s.recordInLedger(ctx, page, savedPath)
		return nil
	}

	stats, err := spider.Crawl(ctx, report.Seed, visit)

	// Failure and offsite counts accumulate on the spider's side of the
	// visit callback; transfer them once the crawl settles.
	report.AddRequestErrors(stats.PagesFailed)
	report.AddOffsiteFiltered(stats.OffsiteFiltered)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("crawl interrupted",
				"seed", report.Seed,
				"pages_fetched", report.PagesFetched,
				"reason", err,
			)
			report.Finish(model.FinishReasonCanceled)
			return nil
		}
		return fmt.Errorf("crawl failed: %w", err)
	}

	if stats.StoppedAtLimit {
		report.Finish(model.FinishReasonPageLimit)
	} else {
		report.Finish(model.FinishReasonFinished)
	}

	s.logger.Info("crawl completed",
		"seed", report.Seed,
		"pages_visited", stats.PagesVisited,
		"urls_queued", stats.URLsQueued,
	)

	return nil
}

// recordInLedger upserts one fetched page into the crawl ledger.
// Ledger problems are logged and swallowed: the mirror on disk is the
// primary output and must not depend on the database.
func (s *CrawlStep) recordInLedger(ctx context.Context, page *model.Page, savedPath string) {
	if s.ledger == nil {
		return
	}

	record := &database.CrawlRecord{
		URL:         page.URL,
		Host:        hostOf(page.URL),
		StatusCode:  page.StatusCode,
		ContentType: page.ContentType,
		Title:       page.Title,
		Depth:       page.Depth,
		Size:        page.Size(),
		Hash:        page.Hash,
		SavedPath:   savedPath,
		Headers:     page.Headers,
	}
	if _, err := s.ledger.UpsertCrawlRecord(ctx, record); err != nil {
		s.logger.Warn("failed to record page in ledger", "url", page.URL, "error", err)
	}
}

// StatsStep logs the report's final counters, one summary line at the end
// of the run. This is the log-side complement of the report writers.
type StatsStep struct {
	// logger for structured logging.
	logger *slog.Logger
}

// StatsStepOption configures a StatsStep.
type StatsStepOption func(*StatsStep)

// WithStatsLogger sets a custom logger for the stats step.
func WithStatsLogger(logger *slog.Logger) StatsStepOption {
	return func(s *StatsStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStatsStep creates a new stats step.
func NewStatsStep(opts ...StatsStepOption) *StatsStep {
	s := &StatsStep{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *StatsStep) Name() string {
	return "stats"
}

// Do logs the final crawl counters.
func (s *StatsStep) Do(_ context.Context, report *model.CrawlReport) error {
	s.logger.Info("crawl stats",
		"seed", report.Seed,
		"elapsed", report.Duration().Round(time.Millisecond),
		"finish_reason", report.FinishReason,
		"pages_fetched", report.PagesFetched,
		"files_saved", report.FilesSaved,
		"bytes_saved", report.BytesSaved,
		"links_recorded", report.LinksRecorded,
		"skipped_existing", report.SkippedExisting,
		"offsite_filtered", report.OffsiteFiltered,
		"ignored_responses", report.IgnoredResponses,
		"request_errors", report.RequestErrors,
	)
	return nil
}

// LedgerStep persists the finished crawl report to the crawl ledger, where
// the history and compare commands find it.
//
// Design decision: Report persistence is its own step rather than part of
// the crawl step because:
//  1. The saved report should carry the final counters and finish reason,
//     which exist only after the crawl step returns
//  2. A disabled ledger (--no-db) removes persistence without touching the
//     crawl wiring
type LedgerStep struct {
	// db is the crawl ledger. nil disables the step.
	db *database.CrawlDB

	// logger for structured logging.
	logger *slog.Logger
}

// LedgerStepOption configures a LedgerStep.
type LedgerStepOption func(*LedgerStep)

// WithLedgerLogger sets a custom logger for the ledger step.
func WithLedgerLogger(logger *slog.Logger) LedgerStepOption {
	return func(s *LedgerStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLedgerStep creates a new ledger step. db may be nil when the ledger
// is disabled; the step then does nothing.
func NewLedgerStep(db *database.CrawlDB, opts ...LedgerStepOption) *LedgerStep {
	s := &LedgerStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *LedgerStep) Name() string {
	return "ledger"
}

// Do saves the crawl report. Ledger failures are logged and swallowed;
// the crawl result on disk is already complete at this point.
func (s *LedgerStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if s.db == nil {
		s.logger.Debug("ledger disabled, skipping")
		return nil
	}

	if err := s.db.SaveCrawlReport(ctx, report); err != nil {
		s.logger.Warn("failed to save crawl report to ledger",
			"host", report.Host,
			"error", err,
		)
		return nil
	}

	s.logger.Debug("crawl report saved to ledger", "host", report.Host)
	return nil
}

// DefaultPipeline assembles the standard pipeline for one crawl from a
// validated configuration: the crawl itself, the final stats line, and
// ledger persistence. db may be nil when the ledger is disabled.
//
// Design decision: We provide a config-driven factory because:
//  1. The CLI and batch mode build identical pipelines from different seeds
//  2. The save/record matrix lives in one place instead of two
func DefaultPipeline(cfg *config.Config, db *database.CrawlDB, opts ...Option) (*Pipeline, error) {
	p := New(opts...)

	allowPattern, err := cfg.AllowURLRegexp()
	if err != nil {
		return nil, fmt.Errorf("invalid allow regex: %w", err)
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithRetryWait(cfg.Delay),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithAllowedDomains(cfg.AllowedDomains),
		fetch.WithLogger(p.logger),
	}
	if cfg.Cookie != "" {
		fetchOpts = append(fetchOpts, fetch.WithCookie(cfg.Cookie))
	}
	if len(cfg.Headers) > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHeaders(cfg.Headers))
	}
	if cfg.Socks5Proxy != "" {
		fetchOpts = append(fetchOpts, fetch.WithSocks5Proxy(cfg.Socks5Proxy))
	}

	client, err := fetch.NewClient(fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	crawlOpts := []CrawlStepOption{
		WithCrawlDelay(cfg.Delay),
		WithCrawlRandomizedDelay(cfg.RandomizeDelay),
		WithCrawlRequestsPerDomain(cfg.RequestsPerDomain),
		WithCrawlMaxDepth(cfg.MaxDepth),
		WithCrawlMaxPages(cfg.MaxPages),
		WithCrawlAllowedDomains(cfg.AllowedDomains),
		WithCrawlAllowPattern(allowPattern),
		WithCrawlLogger(p.logger),
	}

	// The save dir is created only when bodies are actually saved.
	if cfg.SaveFiles() {
		mirror, err := storage.NewMirror(cfg.SaveDir, cfg.Override)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare save directory: %w", err)
		}
		crawlOpts = append(crawlOpts, WithCrawlMirror(mirror))
	}
	if cfg.RecordLinks() {
		crawlOpts = append(crawlOpts, WithCrawlLinksPath(cfg.LinksFileName()))
	}
	if db != nil {
		crawlOpts = append(crawlOpts, WithCrawlLedger(db))
	}

	p.AddSteps(
		NewCrawlStep(client, crawlOpts...),
		NewStatsStep(WithStatsLogger(p.logger)),
		NewLedgerStep(db, WithLedgerLogger(p.logger)),
	)

	return p, nil
}

// hostOf returns the lowercased hostname of a URL, or "" when the URL is
// unparseable.
func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
