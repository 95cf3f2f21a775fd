// Package database provides SQLite-based storage for the crawl ledger.
//
// This package implements the CrawlDB, which stores:
//   - One record per crawled page with status, hash, and mirror location
//   - One report per crawl run for historical analysis and comparison
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
//  1. No external dependencies - the database is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. Sufficient performance for our use case
//  4. WAL mode provides good concurrent read performance
//
// The ledger is an optional side channel: crawls never fail because the
// ledger is unavailable, they just lose history and the compare command.
package database
