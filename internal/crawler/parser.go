package crawler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Parser extracts the title and outgoing references from one HTML page.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
//  4. Standard library extension, well-maintained
type Parser struct {
	// pageURL is the URL of the page being parsed.
	pageURL *url.URL

	// base is the URL relative references resolve against. It starts as
	// pageURL and is replaced when the document carries a <base href>.
	base *url.URL

	// baseSet records that the first usable <base href> has been applied.
	baseSet bool
}

// ParseResult contains what one parsing pass extracted from a page.
type ParseResult struct {
	// Title is the text of the first <title> element.
	Title string

	// Refs are the raw reference attribute values in document order,
	// before resolution: href of <a>, <link>, <base> and <area>, and src
	// of <script> and <img>.
	Refs []string

	// BaseHref is the href of the first <base> element, empty when the
	// document has none.
	BaseHref string
}

// NewParser creates a parser for the page at pageURL. The URL anchors
// relative reference resolution.
func NewParser(pageURL string) (*Parser, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	return &Parser{pageURL: u, base: u}, nil
}

// Parse reads HTML content and collects the title and every reference
// attribute in document order. The encoding comes from the content type
// or the first kilobyte of the document; bodies in legacy encodings are
// decoded to UTF-8 for parsing, while the caller keeps the original bytes.
func (p *Parser) Parse(content io.Reader, contentType string) (*ParseResult, error) {
	br := bufio.NewReader(content)
	peek, err := br.Peek(1024)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read document prefix: %w", err)
	}

	// DetermineEncoding always yields a usable encoding; windows-1252 is
	// the fallback of last resort, as in browsers.
	enc, _, _ := charset.DetermineEncoding(peek, contentType)

	doc, err := html.Parse(transform.NewReader(br, enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	result := &ParseResult{Refs: make([]string, 0)}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// processElement collects references and the title from one element node.
func (p *Parser) processElement(n *html.Node, result *ParseResult) {
	switch n.Data {
	case "title":
		if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "a", "link", "area":
		if href, ok := getAttr(n, "href"); ok {
			result.Refs = append(result.Refs, strings.TrimSpace(href))
		}

	case "base":
		if href, ok := getAttr(n, "href"); ok {
			trimmed := strings.TrimSpace(href)
			result.Refs = append(result.Refs, trimmed)
			// Only the first <base href> counts, and it applies to every
			// reference on the page regardless of position.
			if !p.baseSet {
				if u, err := url.Parse(trimmed); err == nil {
					p.base = p.pageURL.ResolveReference(u)
					p.baseSet = true
					result.BaseHref = trimmed
				}
			}
		}

	case "script", "img":
		if src, ok := getAttr(n, "src"); ok {
			result.Refs = append(result.Refs, strings.TrimSpace(src))
		}
	}
}

// Resolve makes a reference absolute against the page's base URL. It
// returns "" when the reference cannot be parsed. Already absolute
// references pass through unchanged, and scheme-relative references
// ("//host/path") take the page's scheme.
func (p *Parser) Resolve(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return p.base.ResolveReference(u).String()
}

// getAttr retrieves an attribute value from an HTML node. The second
// return value reports whether the attribute is present at all, so an
// empty href can be told apart from a missing one.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
