// Package media audits mirrored files for privacy-sensitive metadata.
//
// A crawl mirrors a site's published images to disk, and those images may
// carry EXIF metadata the publisher never meant to share: GPS coordinates,
// camera serial numbers, author names, editing software, and timestamps.
// The auditor walks a mirror directory and reports every such tag it finds,
// so site owners and archivists can review what a site discloses.
//
// Design decision: The audit runs offline against the saved mirror rather
// than during the crawl because:
// 1. It keeps the crawl loop free of CPU-bound image parsing
// 2. It can be re-run against old mirrors without re-fetching anything
// 3. A failed parse never costs a page
package media
