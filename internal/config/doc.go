// Package config provides configuration structures and utilities for
// getallspider. It defines the crawl options populated from CLI flags,
// the YAML configuration file with per-site overrides, and validation.
package config
