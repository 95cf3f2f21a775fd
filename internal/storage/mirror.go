package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// schemePrefix matches the scheme part of an absolute URL. The mirror
	// layout drops it so http and https versions of a page land on the
	// same file.
	schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

	// fileLikePath matches URL paths that already name a file, i.e. end
	// with a short alphanumeric extension such as ".html" or ".tar.gz".
	fileLikePath = regexp.MustCompile(`^/.+\.[a-zA-Z0-9]{2,10}$`)
)

// preferredExtensions pins the extension used for index files of common
// content types, so the mirror layout does not depend on the host OS mime
// registry.
var preferredExtensions = map[string]string{
	"text/html":              ".html",
	"application/xhtml+xml":  ".xhtml",
	"text/plain":             ".txt",
	"text/css":               ".css",
	"text/csv":               ".csv",
	"text/javascript":        ".js",
	"application/javascript": ".js",
	"application/json":       ".json",
	"application/xml":        ".xml",
	"text/xml":               ".xml",
	"application/pdf":        ".pdf",
	"application/zip":        ".zip",
	"image/jpeg":             ".jpg",
	"image/png":              ".png",
	"image/gif":              ".gif",
	"image/svg+xml":          ".svg",
	"image/webp":             ".webp",
	"image/avif":             ".avif",
	"image/x-icon":           ".ico",
}

// Mirror saves fetched pages into a directory tree that mimics the crawled
// site's URL structure. All methods are safe for concurrent use by the
// crawl workers.
type Mirror struct {
	dir      string
	override bool
}

// NewMirror creates the save directory if needed and returns a Mirror
// writing into it. When override is true existing files are replaced on
// save, otherwise they are kept and Save reports ErrFileExists.
func NewMirror(dir string, override bool) (*Mirror, error) {
	if dir == "" {
		return nil, errors.New("save directory is empty")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	return &Mirror{dir: dir, override: override}, nil
}

// Dir returns the base directory pages are saved under.
func (m *Mirror) Dir() string {
	return m.dir
}

// Segments splits a URL into the path segments that locate it in the
// mirror, starting with the host. The scheme and a single trailing slash
// are dropped, everything else including the query string is kept
// verbatim.
func Segments(pageURL string) []string {
	s := schemePrefix.ReplaceAllString(pageURL, "")
	s = strings.TrimSuffix(s, "/")
	return strings.Split(s, "/")
}

// PhysicalPath maps a URL to the file its body is saved as. A URL whose
// path names a file, or that carries a query string, maps to a file of
// that name inside its parent directory. Everything else is treated as a
// directory and maps to an index file inside it, with the extension chosen
// from the content type.
//
// Design decision: the query string stays part of the file name, so
// "/search?q=a" and "/search?q=b" are stored as two distinct files instead
// of overwriting each other.
func (m *Mirror) PhysicalPath(pageURL, contentType string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse page url: %w", err)
	}

	segs := Segments(pageURL)
	if len(segs) == 1 && segs[0] == "" {
		return "", ErrEmptyURL
	}

	var path string
	if !fileLikePath.MatchString(u.Path) && u.RawQuery == "" {
		name := "index" + ExtensionForType(contentType)
		path = filepath.Join(m.dir, filepath.Join(segs...), name)
	} else {
		name := sanitizeFilename(segs[len(segs)-1])
		path = filepath.Join(m.dir, filepath.Join(segs[:len(segs)-1]...), name)
	}

	// filepath.Join resolves ".." segments, so a crafted URL could climb
	// out of the save directory. Refuse anything that does.
	base := filepath.Clean(m.dir)
	if !strings.HasPrefix(path, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, pageURL)
	}
	return path, nil
}

// Save writes the raw page body to the file PhysicalPath maps the URL to,
// creating parent directories as needed, and returns the path written.
// With overriding disabled an existing file is left untouched and
// ErrFileExists is returned together with its path.
func (m *Mirror) Save(pageURL, contentType string, body []byte) (string, error) {
	path, err := m.PhysicalPath(pageURL, contentType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("failed to create page directory: %w", err)
	}

	if m.override {
		if err := os.WriteFile(path, body, 0600); err != nil {
			return "", fmt.Errorf("failed to write page file: %w", err)
		}
		return path, nil
	}

	// O_EXCL makes the existence check atomic, so two workers mapping to
	// the same path cannot clobber each other's copy.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) //nolint:gosec // path is confined to the save directory above
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, fmt.Errorf("%s: %w", path, ErrFileExists)
		}
		return "", fmt.Errorf("failed to create page file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close() //nolint:errcheck // the write error is the one worth reporting
		return "", fmt.Errorf("failed to write page file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close page file: %w", err)
	}
	return path, nil
}

// ExtensionForType returns the file extension for a Content-Type header
// value, including any ";charset=..." parameters, or "" when the type is
// unknown.
func ExtensionForType(contentType string) string {
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// sanitizeFilename strips NUL bytes and truncates the name to the 255 byte
// limit most filesystems place on a single path component, without
// splitting a multi-byte rune.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	const maxFilenameBytes = 255
	if len(name) <= maxFilenameBytes {
		return name
	}
	cut := maxFilenameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
