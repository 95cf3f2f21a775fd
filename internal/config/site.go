package config

import "strings"

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing crawl behavior per site, typically for sites
// that need authentication cookies or gentler pacing.
type SiteConfig struct {
	// UserAgent overrides the User-Agent header for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is an HTTP cookie to send when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Delay overrides the download delay for this site, in seconds.
	// Fractions are allowed. If zero, the global delay is used.
	Delay float64 `yaml:"delay,omitempty"`

	// RequestsPerDomain overrides the per-host concurrency for this site.
	// If zero, the global value is used.
	RequestsPerDomain int `yaml:"requestsPerDomain,omitempty"`

	// RegexAllowedURLs overrides the URL allow pattern for this site.
	RegexAllowedURLs string `yaml:"regexAllowedUrls,omitempty"`
}

// File represents the structure of the .getallspider configuration file.
type File struct {
	// Sites maps hostnames to their site-specific configurations.
	// Keys are bare hostnames (e.g., "example.com"); a key also applies to
	// its subdomains.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host.
// It merges the best matching site entry over the defaults. A site entry
// matches when its key equals the host or the host is a subdomain of the
// key; the longest matching key wins.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	// Start with defaults
	result := cf.Defaults

	key := cf.bestMatch(host)
	if key == "" {
		return result
	}

	// Override with site-specific configuration
	siteConfig := cf.Sites[key]
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range siteConfig.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if siteConfig.Delay != 0 {
		result.Delay = siteConfig.Delay
	}
	if siteConfig.RequestsPerDomain != 0 {
		result.RequestsPerDomain = siteConfig.RequestsPerDomain
	}
	if siteConfig.RegexAllowedURLs != "" {
		result.RegexAllowedURLs = siteConfig.RegexAllowedURLs
	}

	return result
}

// bestMatch finds the most specific Sites key covering host.
func (cf *File) bestMatch(host string) string {
	host = strings.ToLower(host)
	best := ""
	for key := range cf.Sites {
		k := strings.ToLower(key)
		if host != k && !strings.HasSuffix(host, "."+k) {
			continue
		}
		if len(k) > len(best) {
			best = key
		}
	}
	return best
}
