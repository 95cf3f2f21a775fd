// Package main provides the entry point for the getallspider CLI.
//
// getallspider recursively mirrors a website starting from a seed URL.
// It follows links that stay inside the allowed domains and writes every
// fetched page to a local directory tree that mirrors the URL structure.
//
// Usage:
//
//	getallspider --url=https://example.com --allowed-domains=example.com --save-dir=./example.com
//	getallspider --url=https://example.com --only-links
//
// See --help for all available options.
package main

// main is the entry point for getallspider.
func main() {
	Execute()
}
