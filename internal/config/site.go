package config

import "maps"

// SiteConfig holds per-broker settings from the config file.
type SiteConfig struct {
	// BrokerID selects a fixed-fact extractor for this site.
	BrokerID string `yaml:"broker,omitempty"`

	// Seeds are extra starting URLs, typically legal or regulation pages
	// the candidate generator would not guess.
	Seeds []string `yaml:"seeds,omitempty"`

	// Cookie is an HTTP cookie to send to this site, e.g. a consent cookie.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxPages overrides the global page budget. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty"`

	// MaxDepth overrides the global crawl depth. Zero keeps the global value.
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// IgnorePatterns are URL path patterns to skip during crawling.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path patterns to follow during crawling.
	// If specified, only discovered URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .brokersafety.yaml configuration file.
type File struct {
	// Sites maps hosts to their site-specific configurations.
	// Keys are lower-case hosts without "www.", e.g. "admirals.com".
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
// Headers are merged key by key; every other non-zero site field replaces
// the default.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}
	if siteConfig.BrokerID != "" {
		result.BrokerID = siteConfig.BrokerID
	}
	if len(siteConfig.Seeds) > 0 {
		result.Seeds = siteConfig.Seeds
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.MaxDepth != 0 {
		result.MaxDepth = siteConfig.MaxDepth
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}
