// Package storage writes crawl output to disk.
//
// The Mirror maps URLs onto a directory tree that mimics the site's path
// structure and saves raw response bodies into it. URLs that do not name a
// file (no extension, no query string) become directories holding an index
// file, so "http://example.com/docs" is saved as
// "<save dir>/example.com/docs/index.html".
//
// The LinksFile is the flat append-only record of visited URLs used by the
// links-only crawl modes. It lives next to where the tool was started,
// named "<host>-links.txt", and grows across runs.
package storage
