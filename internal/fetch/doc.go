// Package fetch provides the HTTP download layer for the crawler.
//
// The Client wraps net/http with the behaviors a polite mirror needs:
//   - browser-like default request headers
//   - a retry policy for transient server and network failures
//   - a redirect cap and an abort when a redirect leaves the allowed domains
//   - per-request body size limits
//   - optional SOCKS5 proxying
//
// Responses are returned as model.Page values regardless of status code.
// The caller decides what to do with non-2xx responses; the client only
// fails a fetch for transport-level problems.
package fetch
