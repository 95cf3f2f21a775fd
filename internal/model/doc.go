// Package model defines the core data structures used throughout getallspider.
//
// This package contains the following main types:
//   - Page: A single fetched HTTP response with its raw body
//   - CrawlReport: The accumulated result of one crawl run
//   - SimpleReport: A summarized, human-readable view of a crawl
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (crawler, pipeline, storage, report) need to
// use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
