package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/webscrapy/getallspider/internal/model"
)

// Default client settings. Retry and redirect limits follow the values the
// crawler has always shipped with; sites that need different pacing override
// them per run.
const (
	defaultRetryTimes   = 5
	defaultMaxRedirects = 15
	defaultTimeout      = 180 * time.Second

	// defaultUserAgent imitates a desktop Firefox so servers that block
	// obvious bot agents serve the crawler normal documents.
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// defaultHeaders are sent with every request unless overridden by
// site-specific headers. They mirror what a desktop Firefox sends for a
// top-level navigation, so servers that vary on fetch metadata return the
// same documents they would return to a browser.
//
// Accept-Encoding and Connection are deliberately absent: with
// Accept-Encoding unset the transport negotiates gzip itself and hands back
// a decompressed body, and the transport manages keep-alive on its own.
var defaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "*",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
}

// retryStatusCodes are response statuses that indicate a transient server
// problem worth retrying. After the retries are exhausted, the last
// response is returned as-is and the caller decides what to do with it.
var retryStatusCodes = map[int]bool{
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
	522:                            true, // Cloudflare: connection timed out
	524:                            true, // Cloudflare: a timeout occurred
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
}

// Client downloads pages over HTTP.
// It owns an http.Client configured with the crawl's transport policy:
// timeouts, redirect limits, cookies, and an optional SOCKS5 proxy.
//
// A Client is safe for use by multiple goroutines.
type Client struct {
	// httpClient performs the actual requests.
	httpClient *http.Client

	// userAgent is the User-Agent header to send.
	userAgent string

	// cookie is a raw cookie string appended to every request
	// (e.g., "session_id=abc123").
	cookie string

	// headers are extra request headers, typically from a site config.
	headers map[string]string

	// retryTimes is how many times a failed request is retried before the
	// last error or response is accepted.
	retryTimes int

	// retryWait is how long to wait between attempts. The politeness delay
	// is a good value: a retry is still a request to the same host.
	retryWait time.Duration

	// maxBodySize caps response body reads. 0 means unlimited.
	maxBodySize int64

	// maxRedirects caps the length of a redirect chain.
	maxRedirects int

	// allowedDomains restricts redirects: a redirect to a host outside the
	// list aborts the fetch. Empty means redirects may go anywhere.
	allowedDomains []string

	// timeout is the per-request timeout.
	timeout time.Duration

	// proxyAddress is an optional SOCKS5 proxy in "host:port" format.
	proxyAddress string

	// logger records retries and transport problems.
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCookie sets a raw cookie string sent with every request.
// Format: "name=value" or "name1=value1; name2=value2".
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders sets extra request headers. They override the default
// headers on name collisions.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithRetryTimes sets how many times a failed request is retried.
func WithRetryTimes(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryTimes = n
		}
	}
}

// WithRetryWait sets the wait between retry attempts.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		c.retryWait = d
	}
}

// WithMaxBodySize caps response body reads. 0 means unlimited.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		c.maxBodySize = size
	}
}

// WithMaxRedirects caps the length of a redirect chain.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRedirects = n
		}
	}
}

// WithAllowedDomains restricts redirects to the listed domains and their
// subdomains. An empty list leaves redirects unrestricted.
func WithAllowedDomains(domains []string) Option {
	return func(c *Client) {
		c.allowedDomains = domains
	}
}

// WithSocks5Proxy routes all connections through a SOCKS5 proxy.
// The address must be in "host:port" format (e.g., "127.0.0.1:9050").
func WithSocks5Proxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithLogger sets the logger for retry and transport diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new Client.
//
// This function validates the proxy address format but does not verify that
// the proxy is actually reachable; that surfaces on the first fetch.
//
// Design decision: We don't dial anything in the constructor because:
//  1. It separates object creation from network operations
//  2. It allows for better testing with local test servers
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		userAgent:    defaultUserAgent,
		retryTimes:   defaultRetryTimes,
		maxRedirects: defaultMaxRedirects,
		timeout:      defaultTimeout,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		// Standard environment proxy support (http_proxy, https_proxy)
		Proxy: http.ProxyFromEnvironment,
		// Connection pool settings
		// Modest values: the crawler talks to one or a few hosts with
		// low per-host concurrency, so a large pool buys nothing.
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	if c.proxyAddress != "" {
		if !isValidProxyAddress(c.proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}

		// We use nil for auth because SOCKS5 endpoints used for crawling
		// (Tor, ssh -D) typically don't require it
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}

		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	// Create cookie jar for session management
	// This keeps sessions alive across redirects and subsequent requests
	// when a site hands out cookies during the crawl
	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= c.maxRedirects {
				return ErrTooManyRedirects
			}
			if !HostAllowed(req.URL.Hostname(), c.allowedDomains) {
				return ErrOffsiteRedirect
			}
			return nil
		},
	}

	return c, nil
}

// HostAllowed reports whether host is one of the given domains or a
// subdomain of one. An empty domain list allows every host.
func HostAllowed(host string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}

	host = strings.ToLower(host)
	for _, domain := range domains {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Fetch downloads a single URL and returns it as a model.Page.
//
// Transient failures (network errors, 5xx-style statuses) are retried up to
// the configured retry count, waiting retryWait between attempts. When the
// retries are exhausted on a retryable status, the last response is returned
// as a page rather than an error: the caller can still record that the URL
// answered, it just answered badly.
//
// Redirect policy violations and oversized bodies fail immediately.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	if _, err := url.Parse(pageURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	attempts := c.retryTimes + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.waitRetry(ctx); err != nil {
				return nil, err
			}
		}

		page, err := c.fetchOnce(ctx, pageURL)
		switch {
		case err != nil:
			lastErr = err
			if !c.isRetryable(ctx, err) {
				return nil, err
			}
			c.logger.Debug("retrying after error",
				"url", pageURL,
				"attempt", attempt,
				"error", err)

		case retryStatusCodes[page.StatusCode] && attempt < attempts:
			lastErr = fmt.Errorf("server answered %d", page.StatusCode)
			c.logger.Debug("retrying after status",
				"url", pageURL,
				"attempt", attempt,
				"status", page.StatusCode)

		default:
			return page, nil
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// fetchOnce performs a single request attempt.
func (c *Client) fetchOnce(ctx context.Context, pageURL string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body []byte
	if c.maxBodySize > 0 {
		// Read one byte past the limit to distinguish "exactly at the
		// limit" from "over it"
		body, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
		if err == nil && int64(len(body)) > c.maxBodySize {
			return nil, fmt.Errorf("%s: %w", pageURL, ErrBodyTooLarge)
		}
	} else {
		body, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	page := &model.Page{
		// resp.Request.URL is the final URL after redirects. Mirrored
		// files and link resolution use it, not the requested URL.
		URL:         resp.Request.URL.String(),
		RequestURL:  pageURL,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now(),
		Body:        body,
	}
	page.ComputeHash()

	return page, nil
}

// setHeaders applies the default, configured, and cookie headers to a request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)

	for key, value := range defaultHeaders {
		req.Header.Set(key, value)
	}

	// Site-specific headers win over the defaults
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	if c.cookie != "" {
		// Append to existing Cookie header or set new one
		if existing := req.Header.Get("Cookie"); existing != "" {
			req.Header.Set("Cookie", existing+"; "+c.cookie)
		} else {
			req.Header.Set("Cookie", c.cookie)
		}
	}
}

// isRetryable reports whether an attempt error is worth retrying.
// Policy violations have a definitive answer and the caller's context may
// already be dead; everything else is treated as transient.
func (c *Client) isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrTooManyRedirects) || errors.Is(err, ErrOffsiteRedirect) {
		return false
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	return true
}

// waitRetry waits the configured retry interval, honoring cancellation.
func (c *Client) waitRetry(ctx context.Context) error {
	if c.retryWait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryWait):
		return nil
	}
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
// We use a simple check rather than a full URL parser because the format
// is very specific (no scheme, no path, just host and port).
func isValidProxyAddress(address string) bool {
	// Must contain exactly one colon separating host and port
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return false
	}

	host := parts[0]
	port := parts[1]

	// Host must not be empty
	if host == "" {
		return false
	}

	// Port must be a valid number between 1 and 65535
	if port == "" {
		return false
	}

	// Validate port is a number in valid range
	portNum := 0
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
		portNum = portNum*10 + int(c-'0')
		// Early exit if port is too large
		if portNum > 65535 {
			return false
		}
	}

	// Port must be at least 1
	return portNum >= 1
}
