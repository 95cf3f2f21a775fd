package storage

import (
	"fmt"
	"os"
	"sync"
)

// LinksFile records every visited URL, one per line, in an append-only
// text file. The file is opened once per crawl and appended to across
// runs, so repeated crawls of the same host accumulate in one place.
type LinksFile struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenLinksFile opens the links file at path for appending, creating it if
// it does not exist.
func OpenLinksFile(path string) (*LinksFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // the path comes from the crawl configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open links file: %w", err)
	}
	return &LinksFile{f: f, path: path}, nil
}

// Path returns the location of the links file.
func (l *LinksFile) Path() string {
	return l.path
}

// Add appends one URL to the file. It is safe for concurrent use by the
// crawl workers.
func (l *LinksFile) Add(pageURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintln(l.f, pageURL); err != nil {
		return fmt.Errorf("failed to append to links file: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *LinksFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("failed to close links file: %w", err)
	}
	return nil
}
