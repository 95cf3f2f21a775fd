package fetch

import "errors"

// Fetch errors.
//
// Design decision: We define specific error types rather than wrapping all
// errors generically. The retry loop needs to distinguish failures that a
// retry cannot fix (redirect policy violations, oversized bodies) from
// transient network problems.
var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the
	// configured limit. Usually a redirect loop.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrOffsiteRedirect is returned when a redirect points outside the
	// allowed domains. The fetch is abandoned rather than followed.
	ErrOffsiteRedirect = errors.New("redirect left the allowed domains")

	// ErrBodyTooLarge is returned when a response body exceeds the
	// configured maximum size. The partial body is discarded.
	ErrBodyTooLarge = errors.New("response body exceeds the size limit")

	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address
	// format is invalid. Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)
