// Package pipeline orchestrates the stages of a crawl run.
//
// A run flows through the stages over one shared report: the crawl itself,
// a final stats line, and persistence to the crawl ledger. Each stage is
// implemented as a Step that receives the current report and can modify it.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls because:
//  1. It allows easy addition/removal of stages without modifying core logic
//  2. It provides consistent error handling and logging across stages
//  3. It supports cancellation via context between stages
//
// The pipeline supports both single crawls and batch processing of a seed
// list with concurrency control using errgroup.
package pipeline
