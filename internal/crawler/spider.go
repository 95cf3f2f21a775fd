package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/webscrapy/getallspider/internal/fetch"
	"github.com/webscrapy/getallspider/internal/model"
)

// ignoredRef matches raw references that can never become crawlable URLs:
// mail, script and telephony schemes, bare fragments, and empty strings.
// It is applied to attribute values before resolution, so fragment-only
// references are dropped without ever hitting the frontier.
var ignoredRef = regexp.MustCompile(`^((mailto|javascript|xmpp|urn|tel):|#$|#[^/]+$|$)`)

// Fetcher retrieves a single page. It is implemented by fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*model.Page, error)
}

// VisitFunc receives every fetched page, including non-2xx responses.
// It is called concurrently from crawl workers, so implementations must be
// safe for concurrent use. Returning an error does not stop the crawl; the
// error is logged and the page's links are still followed.
type VisitFunc func(ctx context.Context, page *model.Page) error

// Spider crawls a website breadth-first from a seed URL.
// It manages the URL frontier and enforces politeness and crawl limits.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
type Spider struct {
	// fetcher retrieves pages. It handles retries, redirects, and body
	// limits itself; the spider only decides what to fetch and when.
	fetcher Fetcher

	// logger records crawl progress.
	logger *slog.Logger

	// delay is the minimum interval between request starts to the same
	// host. 0 disables pacing.
	delay time.Duration

	// randomizeDelay scales every interval by a random factor in
	// [0.5, 1.5) so the request rhythm is not mechanical.
	randomizeDelay bool

	// perHost caps concurrent requests to one host. The worker pool is
	// twice this size, so crawls spanning several hosts overlap.
	perHost int

	// maxDepth limits the link distance from the seed. The seed is depth
	// 0. 0 or less means unlimited.
	maxDepth int

	// maxPages limits how many responses are fetched. 0 or less means
	// unlimited.
	maxPages int

	// allowedDomains restricts the crawl to hosts equal to a listed
	// domain or ending in ".domain". Empty means no restriction.
	allowedDomains []string

	// allowPattern filters resolved URLs before they are scheduled.
	// nil means every URL is allowed.
	allowPattern *regexp.Regexp

	// mu protects the fields below. The coordinator goroutine mutates
	// them; Stats may be called from any goroutine.
	mu              sync.Mutex
	visited         map[string]bool
	pacers          map[string]*hostPacer
	slots           map[string]chan struct{}
	pagesVisited    int
	pagesFailed     int
	offsiteFiltered int
	stoppedAtLimit  bool
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithDelay sets the minimum interval between request starts to the same
// host. 0 disables pacing.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithRandomizedDelay controls whether the per-host interval is jittered
// by a random factor in [0.5, 1.5).
func WithRandomizedDelay(randomize bool) SpiderOption {
	return func(s *Spider) {
		s.randomizeDelay = randomize
	}
}

// WithRequestsPerDomain caps concurrent requests to a single host.
// Values below 1 are ignored.
func WithRequestsPerDomain(n int) SpiderOption {
	return func(s *Spider) {
		if n >= 1 {
			s.perHost = n
		}
	}
}

// WithMaxDepth limits the link distance from the seed URL.
// 0 or less means unlimited.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages limits the total number of fetched pages.
// 0 or less means unlimited.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithAllowedDomains restricts the crawl to the given domains and their
// subdomains. Empty means the crawl may wander anywhere the allow pattern
// permits.
func WithAllowedDomains(domains []string) SpiderOption {
	return func(s *Spider) {
		s.allowedDomains = domains
	}
}

// WithAllowPattern keeps only resolved URLs matching pattern on the
// frontier. The pattern is matched at the start of the URL.
func WithAllowPattern(pattern *regexp.Regexp) SpiderOption {
	return func(s *Spider) {
		s.allowPattern = pattern
	}
}

// WithSpiderLogger sets the logger for crawl progress.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches pages with the given fetcher.
//
// Design decision: We require an external fetcher because:
//  1. Proxy, retry, and redirect policy belong to the fetch package
//  2. Tests can substitute a fake without a network
func NewSpider(fetcher Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:        fetcher,
		logger:         slog.Default(),
		delay:          1 * time.Second,
		randomizeDelay: true,
		perHost:        1,
		visited:        make(map[string]bool),
		pacers:         make(map[string]*hostPacer),
		slots:          make(map[string]chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// queueItem is one frontier entry.
type queueItem struct {
	pageURL string
	depth   int
}

// crawlResult is what a worker reports back for one frontier entry.
type crawlResult struct {
	pageURL string
	depth   int
	links   []string
	err     error
}

// Crawl walks the site breadth-first from seedURL and calls visit for every
// fetched page. It returns when the frontier is exhausted, a crawl limit is
// reached, or ctx is canceled.
//
// Design decision: Pages stream to the visit function instead of being
// returned as a slice because bodies are large and the mirror writes them
// out as they arrive. Nothing needs to stay in memory after visit returns.
func (s *Spider) Crawl(ctx context.Context, seedURL string, visit VisitFunc) (Stats, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return s.Stats(), fmt.Errorf("invalid seed URL: %w", err)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		seed.Scheme = "http"
	}
	seed.Fragment = ""
	// A bare host means the root document.
	if seed.Path == "" {
		seed.Path = "/"
	}

	// The seed passes through the same offsite filter as discovered links;
	// a seed outside the allowed domains is never fetched.
	if !fetch.HostAllowed(seed.Hostname(), s.allowedDomains) {
		s.mu.Lock()
		s.offsiteFiltered++
		s.mu.Unlock()
		s.logger.Warn("seed is outside the allowed domains, nothing to crawl",
			"seed", seed.String(),
			"allowedDomains", s.allowedDomains,
		)
		return s.Stats(), nil
	}

	if visit == nil {
		visit = func(context.Context, *model.Page) error { return nil }
	}

	jobs := make(chan queueItem)
	results := make(chan crawlResult)

	var wg sync.WaitGroup
	for i := 0; i < 2*s.perHost; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- s.crawlPage(ctx, item, visit)
			}
		}()
	}

	s.markVisited(seed.String())
	queue := []queueItem{{pageURL: seed.String(), depth: 0}}
	inFlight := 0

	var crawlErr error
loop:
	for len(queue) > 0 || inFlight > 0 {
		// Dispatch only while the page budget allows it. A nil channel
		// makes that select case inert.
		var dispatch chan queueItem
		var next queueItem
		if len(queue) > 0 && !s.pageLimitReached() {
			dispatch = jobs
			next = queue[0]
		}
		if dispatch == nil && inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			crawlErr = ctx.Err()
			break loop
		case dispatch <- next:
			queue = queue[1:]
			inFlight++
		case res := <-results:
			inFlight--
			queue = s.absorb(res, queue)
		}
	}

	if len(queue) > 0 && crawlErr == nil && s.pageLimitReached() {
		s.mu.Lock()
		s.stoppedAtLimit = true
		s.mu.Unlock()
	}

	close(jobs)
	for inFlight > 0 {
		res := <-results
		inFlight--
		s.absorb(res, nil)
	}
	wg.Wait()

	return s.Stats(), crawlErr
}

// crawlPage fetches one frontier entry, hands the page to visit, and
// extracts follow-up links. Politeness gates run first: a per-host
// concurrency slot, then the paced request start.
func (s *Spider) crawlPage(ctx context.Context, item queueItem, visit VisitFunc) crawlResult {
	res := crawlResult{pageURL: item.pageURL, depth: item.depth}

	host := hostOf(item.pageURL)
	release, err := s.acquireSlot(ctx, host)
	if err != nil {
		res.err = err
		return res
	}
	defer release()

	if err := s.pace(ctx, host); err != nil {
		res.err = err
		return res
	}

	s.logger.Debug("fetching page", "url", item.pageURL, "depth", item.depth)
	page, err := s.fetcher.Fetch(ctx, item.pageURL)
	if err != nil {
		s.logger.Debug("fetch failed", "url", item.pageURL, "error", err)
		res.err = err
		return res
	}
	page.Depth = item.depth

	if page.IsSuccess() && page.IsHTML() {
		title, links, err := s.extractLinks(page)
		if err != nil {
			s.logger.Debug("failed to parse page", "url", page.URL, "error", err)
		} else {
			page.Title = title
			res.links = links
		}
	}

	if err := visit(ctx, page); err != nil {
		s.logger.Warn("failed to process page", "url", page.URL, "error", err)
	}

	res.pageURL = page.URL
	return res
}

// extractLinks parses the page body and returns its title and the resolved
// references that pass the raw-reference filter and the allow pattern.
func (s *Spider) extractLinks(page *model.Page) (string, []string, error) {
	parser, err := NewParser(page.URL)
	if err != nil {
		return "", nil, err
	}

	result, err := parser.Parse(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		return "", nil, err
	}

	links := make([]string, 0, len(result.Refs))
	for _, ref := range result.Refs {
		if ignoredRef.MatchString(ref) {
			continue
		}
		resolved := parser.Resolve(ref)
		if resolved == "" {
			continue
		}
		if s.allowPattern != nil && !s.allowPattern.MatchString(resolved) {
			continue
		}
		links = append(links, resolved)
	}

	return result.Title, links, nil
}

// absorb folds one worker result into the crawl state and schedules the
// page's links. Links are dropped when they leave the allowed domains,
// exceed the depth limit, or were already scheduled. Only the coordinator
// calls absorb with a live queue; the drain after cancellation passes nil.
func (s *Spider) absorb(res crawlResult, queue []queueItem) []queueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.err != nil {
		// A redirect that left the allowed domains is an offsite drop,
		// not a request failure.
		if errors.Is(res.err, fetch.ErrOffsiteRedirect) {
			s.offsiteFiltered++
		} else {
			s.pagesFailed++
		}
		return queue
	}
	s.pagesVisited++

	// Redirects land on a URL the frontier never saw. Mark it visited so
	// a direct link to the same place is not fetched twice.
	if res.pageURL != "" {
		s.visited[normalizeURL(res.pageURL)] = true
	}

	if s.maxDepth > 0 && res.depth+1 > s.maxDepth {
		return queue
	}

	for _, link := range res.links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if !fetch.HostAllowed(u.Hostname(), s.allowedDomains) {
			s.offsiteFiltered++
			continue
		}
		// Fragments never reach the server, so they are stripped before
		// the URL is scheduled.
		u.Fragment = ""
		target := u.String()

		key := normalizeURL(target)
		if s.visited[key] {
			continue
		}
		s.visited[key] = true
		queue = append(queue, queueItem{pageURL: target, depth: res.depth + 1})
	}

	return queue
}

// pageLimitReached reports whether the page budget is exhausted.
func (s *Spider) pageLimitReached() bool {
	if s.maxPages <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesVisited >= s.maxPages
}

// markVisited records a URL as scheduled.
func (s *Spider) markVisited(pageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[normalizeURL(pageURL)] = true
}

// acquireSlot takes a per-host concurrency slot, blocking while the host
// already has the maximum number of requests in flight. The returned
// function releases the slot.
func (s *Spider) acquireSlot(ctx context.Context, host string) (func(), error) {
	s.mu.Lock()
	slot, ok := s.slots[host]
	if !ok {
		slot = make(chan struct{}, s.perHost)
		s.slots[host] = slot
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case slot <- struct{}{}:
	}
	return func() { <-slot }, nil
}

// pace blocks until the host's next request start is due and books the one
// after it. Request starts to one host are spaced by the configured delay
// even when several workers fetch from it concurrently.
func (s *Spider) pace(ctx context.Context, host string) error {
	if s.delay <= 0 {
		return nil
	}

	s.mu.Lock()
	pacer, ok := s.pacers[host]
	if !ok {
		pacer = &hostPacer{}
		s.pacers[host] = pacer
	}
	s.mu.Unlock()

	wait := pacer.reserve(time.Now(), s.nextDelay())
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// nextDelay returns the interval to the next request start, jittered when
// randomized delays are on.
func (s *Spider) nextDelay() time.Duration {
	if !s.randomizeDelay {
		return s.delay
	}
	return time.Duration(float64(s.delay) * (0.5 + rand.Float64()))
}

// hostPacer tracks when the next request to one host may start.
type hostPacer struct {
	mu   sync.Mutex
	next time.Time
}

// reserve books the next request start and returns how long the caller
// must wait for it.
func (p *hostPacer) reserve(now time.Time, delay time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.next
	if start.Before(now) {
		start = now
	}
	p.next = start.Add(delay)
	return start.Sub(now)
}

// Reset clears the spider's state, allowing it to be reused for another
// seed.
func (s *Spider) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = make(map[string]bool)
	s.pacers = make(map[string]*hostPacer)
	s.slots = make(map[string]chan struct{})
	s.pagesVisited = 0
	s.pagesFailed = 0
	s.offsiteFiltered = 0
	s.stoppedAtLimit = false
}

// Stats returns a snapshot of the crawl counters.
func (s *Spider) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		PagesVisited:    s.pagesVisited,
		PagesFailed:     s.pagesFailed,
		URLsQueued:      len(s.visited),
		OffsiteFiltered: s.offsiteFiltered,
		StoppedAtLimit:  s.stoppedAtLimit,
	}
}

// Stats contains crawl counters.
type Stats struct {
	// PagesVisited is the number of responses received, whatever their
	// status code.
	PagesVisited int

	// PagesFailed is the number of requests that failed after retries.
	PagesFailed int

	// URLsQueued is the number of unique URLs scheduled, including those
	// still on the frontier when the crawl stopped.
	URLsQueued int

	// OffsiteFiltered is the number of links dropped by the
	// allowed-domains filter.
	OffsiteFiltered int

	// StoppedAtLimit is true when the page budget ended the crawl.
	StoppedAtLimit bool
}

// normalizeURL normalizes a URL for frontier deduplication.
//
// Design decision: We normalize URLs because:
//  1. Same page can have different URL representations
//  2. Fragment (#anchor) doesn't change content
//  3. An empty path and "/" are the same location
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// hostOf returns the lowercased hostname of a URL, or "" when the URL is
// unparseable. Pacers and slots are keyed by it.
func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
