// Package log provides logging with automatic masking of credentials,
// built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic masking of credential values (cookies, tokens, auth headers)
//   - Configurable log levels with verbose mode support
//   - A rotating file sink for long crawls
//
// # Why masking matters here
//
// Site configurations may carry session cookies and Authorization headers
// for authenticated crawls, and crawl log files are exactly the thing users
// attach to bug reports. The RedactHandler masks credential values in log
// output even in debug mode:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, Proxy-Authorization)
//   - Secret values detected by pattern matching (JWT, Bearer, Basic auth)
//   - Session identifiers and API keys
//
// # Usage
//
//	// Create a logger writing to stderr
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//
//	// Use as a standard slog.Logger
//	logger.Info("request sent",
//	    "cookie", "session=abc123",  // Will be masked
//	    "url", "http://example.com",
//	)
//
//	// Set as default logger
//	slog.SetDefault(logger)
//
// # File logging
//
// NewFileLogger writes to an append-only rotating file, so repeated crawls
// of the same site extend one log instead of truncating it:
//
//	logger, closer := log.NewFileLogger("./example.com.log")
//	defer closer.Close()
package log
