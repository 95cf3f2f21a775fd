package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSeed is returned when neither --url nor --seed-file provides a
	// starting point for the crawl.
	ErrNoSeed = errors.New("no seed specified: provide --url or --seed-file")

	// ErrInvalidSeedURL is returned when the seed URL cannot be parsed or
	// is not an http(s) URL with a host.
	ErrInvalidSeedURL = errors.New("invalid seed URL: must be an absolute http or https URL")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the download delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidConcurrency is returned when requests-per-domain is not
	// positive. Zero concurrent requests would stop the crawl entirely.
	ErrInvalidConcurrency = errors.New("invalid requests-per-domain: must be positive")

	// ErrInvalidMaxDepth is returned when the depth limit is negative.
	// Use 0 for unlimited depth.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	// Use 0 for an unlimited crawl.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for unlimited body size.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidBatchConcurrency is returned when the seed-file concurrency
	// is not positive.
	ErrInvalidBatchConcurrency = errors.New("invalid batch concurrency: must be positive")

	// ErrInvalidAllowRegex is returned when --regex-allowed-urls does not
	// compile.
	ErrInvalidAllowRegex = errors.New("invalid regex-allowed-urls: pattern does not compile")

	// ErrInvalidReportFormat is returned for report formats other than
	// simple, json, or markdown.
	ErrInvalidReportFormat = errors.New("invalid report format: must be simple, json, or markdown")
)
