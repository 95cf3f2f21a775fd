package config

import (
	"net/url"
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Where a default mirrors a Scrapy setting of the original tool, the
// setting name is noted so behavior stays comparable.
const (
	// DefaultDelay is the politeness delay between requests to the same
	// host (DOWNLOAD_DELAY). 1 second is conservative and respectful of
	// server resources.
	DefaultDelay = 1 * time.Second

	// DefaultTimeout is the per-request timeout (DOWNLOAD_TIMEOUT).
	// Generous because the spider is often pointed at slow or distant hosts.
	DefaultTimeout = 180 * time.Second

	// DefaultRequestsPerDomain is the number of concurrent requests per host
	// (CONCURRENT_REQUESTS_PER_DOMAIN). The global in-flight cap is twice
	// this value (CONCURRENT_REQUESTS).
	DefaultRequestsPerDomain = 1

	// DefaultRetryTimes is how many times a failed request is retried
	// (RETRY_TIMES) before its error or status is accepted.
	DefaultRetryTimes = 5

	// DefaultRedirectMaxTimes caps redirect chains (REDIRECT_MAX_TIMES).
	DefaultRedirectMaxTimes = 15

	// DefaultRegexAllowedURLs matches every URL. The allow regex is applied
	// to absolute URLs, anchored at the start.
	DefaultRegexAllowedURLs = ".*"

	// DefaultUserAgent imitates a desktop Firefox. Many sites serve reduced
	// or blocked content to obvious bot agents; a mirror wants what a
	// browser would get.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

	// DefaultBatchConcurrency is the number of seeds crawled at once in
	// seed-file mode. Crawls are I/O heavy; two keeps load modest.
	DefaultBatchConcurrency = 2

	// AppName is the application name used for XDG directory paths.
	AppName = "getallspider"
)

// Report output formats accepted by --report-format.
const (
	// ReportFormatSimple is the human-readable text summary (default).
	ReportFormatSimple = "simple"

	// ReportFormatJSON is the machine-readable JSON report.
	ReportFormatJSON = "json"

	// ReportFormatMarkdown is the GitHub Flavored Markdown report.
	ReportFormatMarkdown = "markdown"
)

// Config holds all options for a crawl run.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// URL is the seed URL the crawl starts from.
	URL string

	// SeedFile is a file with one seed URL per line. When set, each seed is
	// crawled with per-host derived defaults (batch mode).
	SeedFile string

	// AllowedDomains restricts the crawl to hosts equal to a listed domain
	// or ending in ".domain". Empty means no restriction.
	AllowedDomains []string

	// RegexAllowedURLs filters absolute URLs before they are followed.
	// Matched at the start of the URL, like Python's re.match.
	RegexAllowedURLs string

	// Delay is the minimum interval between request starts to the same host.
	Delay time.Duration

	// RandomizeDelay scales each interval by a random factor in [0.5, 1.5)
	// (RANDOMIZE_DOWNLOAD_DELAY).
	RandomizeDelay bool

	// RequestsPerDomain is the per-host concurrency limit.
	RequestsPerDomain int

	// SaveDir is the mirror output directory. Empty means "./<seed host>".
	SaveDir string

	// Override replaces files that already exist in the save dir. When
	// false, existing files are kept and the fetched body is discarded.
	Override bool

	// OnlyLinks records visited URLs to the links file instead of saving
	// bodies.
	OnlyLinks bool

	// AlsoSaveLinks records visited URLs to the links file in addition to
	// saving bodies.
	AlsoSaveLinks bool

	// EnableLogFile sends the log to a file instead of stderr.
	EnableLogFile bool

	// LogFilename is the log file path. Empty means "./<seed host>.log".
	// The file is appended to, never truncated.
	LogFilename string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxDepth limits the link distance from the seed. 0 means unlimited.
	MaxDepth int

	// MaxPages limits the number of fetched pages. 0 means unlimited.
	MaxPages int

	// MaxBodySize caps response body bytes. 0 means unlimited
	// (DOWNLOAD_MAXSIZE=0).
	MaxBodySize int64

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Headers are extra request headers, typically from the site config.
	Headers map[string]string

	// Cookie is a static Cookie header value for the seed site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string

	// Socks5Proxy is a "host:port" SOCKS5 endpoint to dial through.
	// Empty means direct connections.
	Socks5Proxy string

	// DBDir is the directory of the crawl ledger database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB controls whether crawl results are recorded in the ledger.
	// Ledger failures never abort a crawl.
	SaveToDB bool

	// ReportFormat selects the final report output (simple, json, markdown).
	ReportFormat string

	// ReportFile writes the report to a file instead of stdout when set.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// BatchConcurrency is the number of concurrent crawls in seed-file mode.
	BatchConcurrency int

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .getallspider in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds per-site configurations loaded from the config file.
	SiteConfigs *File

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (delay, timeout, regex).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		RegexAllowedURLs:  DefaultRegexAllowedURLs,
		Delay:             DefaultDelay,
		RandomizeDelay:    true,
		RequestsPerDomain: DefaultRequestsPerDomain,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		ReportFormat:      ReportFormatSimple,
		BatchConcurrency:  DefaultBatchConcurrency,
	}
}

// XDGDataDir returns the XDG data directory for getallspider.
// On Linux: ~/.local/share/getallspider
// On macOS: ~/Library/Application Support/getallspider
// On Windows: %LOCALAPPDATA%\getallspider
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Host returns the hostname of the seed URL, or empty when the URL is
// missing or unparseable. The host keys derived defaults, the links file
// name, and the crawl ledger.
func (c *Config) Host() string {
	if c.URL == "" {
		return ""
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// SaveFiles reports whether fetched bodies are written to the mirror.
func (c *Config) SaveFiles() bool {
	return !c.OnlyLinks || c.AlsoSaveLinks
}

// RecordLinks reports whether visited URLs are appended to the links file.
func (c *Config) RecordLinks() bool {
	return c.OnlyLinks || c.AlsoSaveLinks
}

// LinksFileName returns the links file path, "<seed host>-links.txt"
// relative to the working directory.
func (c *Config) LinksFileName() string {
	return c.Host() + "-links.txt"
}

// ApplyURLDefaults fills the host-derived defaults (save dir, log filename)
// after URL is set. Explicitly configured values are left alone.
func (c *Config) ApplyURLDefaults() {
	host := c.Host()
	if host == "" {
		return
	}
	if c.SaveDir == "" {
		c.SaveDir = "./" + host
	}
	if c.EnableLogFile && c.LogFilename == "" {
		c.LogFilename = "./" + host + ".log"
	}
}

// CloneForSeed derives a per-seed config in batch mode. The seed URL
// replaces the original, and host-derived paths are recomputed: an
// explicitly set save dir becomes the base directory with one subdirectory
// per host so seeds cannot overwrite each other.
func (c *Config) CloneForSeed(seed string) *Config {
	clone := *c
	clone.URL = seed
	clone.SeedFile = ""

	host := clone.Host()
	if c.SaveDir != "" && host != "" {
		clone.SaveDir = filepath.Join(c.SaveDir, host)
	} else {
		clone.SaveDir = ""
	}
	if c.LogFilename == "" {
		clone.LogFilename = ""
	}
	clone.ApplyURLDefaults()
	return &clone
}

// AllowURLRegexp compiles the allow regex anchored at the start of the URL,
// matching the original tool's re.match semantics.
func (c *Config) AllowURLRegexp() (*regexp.Regexp, error) {
	pattern := c.RegexAllowedURLs
	if pattern == "" {
		pattern = DefaultRegexAllowedURLs
	}
	return regexp.Compile(`\A(?:` + pattern + `)`)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	// A crawl needs a seed, either directly or from a seed file
	if c.URL == "" && c.SeedFile == "" {
		return ErrNoSeed
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Hostname() == "" {
			return ErrInvalidSeedURL
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return ErrInvalidSeedURL
		}
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	// Delay must be non-negative; zero means full speed
	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	// At least one request per host must be allowed
	if c.RequestsPerDomain <= 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.BatchConcurrency <= 0 {
		return ErrInvalidBatchConcurrency
	}

	if _, err := c.AllowURLRegexp(); err != nil {
		return ErrInvalidAllowRegex
	}

	switch c.ReportFormat {
	case ReportFormatSimple, ReportFormatJSON, ReportFormatMarkdown:
	default:
		return ErrInvalidReportFormat
	}

	return nil
}
