package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Page represents a single fetched HTTP response.
// It holds the raw body bytes alongside response metadata.
//
// Design decision: We keep the body as raw bytes rather than decoded text
// because the mirror must write exactly what the server sent. Decoding to
// UTF-8 happens only transiently, when the body is parsed for references.
type Page struct {
	// URL is the final URL of the response, after any redirects.
	// Files are mirrored under this URL, not the requested one.
	URL string `json:"url"`

	// RequestURL is the URL that was originally requested.
	// Equal to URL unless the server redirected.
	RequestURL string `json:"request_url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains all HTTP response headers.
	// Keys are header names (canonicalized), values are slices of header values.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the raw Content-Type header value, parameters included
	// (e.g. "text/html; charset=utf-8").
	ContentType string `json:"content_type"`

	// Title is the page title extracted from the <title> tag.
	// Empty for non-HTML content.
	Title string `json:"title,omitempty"`

	// Depth is the link distance from the seed URL. The seed is depth 0.
	Depth int `json:"depth"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`

	// Body contains the raw response body bytes.
	Body []byte `json:"-"` // Excluded from JSON to keep reports small

	// Hash is the SHA-256 hash of the body.
	// Used for change detection between crawl runs.
	Hash string `json:"hash,omitempty"`
}

// ComputeHash calculates and sets the SHA-256 hash of the page body.
// This should be called after setting the Body field.
func (p *Page) ComputeHash() {
	if len(p.Body) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(p.Body)
	p.Hash = hex.EncodeToString(hash[:])
}

// GetHeader returns the first value of the specified header.
// Returns empty string if the header is not present.
// Go's http package canonicalizes header names, so lookups use canonical form.
func (p *Page) GetHeader(name string) string {
	if values, ok := p.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// IsHTML returns true if the Content-Type indicates an HTML document.
// The check is a case-insensitive substring match so parameterized values
// such as "text/html; charset=ISO-8859-1" qualify.
func (p *Page) IsHTML() bool {
	return strings.Contains(strings.ToLower(p.ContentType), "text/html")
}

// IsSuccess returns true for 2xx status codes.
// Only successful responses are saved and parsed.
func (p *Page) IsSuccess() bool {
	return p.StatusCode >= 200 && p.StatusCode <= 299
}

// Size returns the body length in bytes.
func (p *Page) Size() int64 {
	return int64(len(p.Body))
}
