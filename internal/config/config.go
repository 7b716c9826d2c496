package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/brokersafety/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "brokersafety"

	// DefaultTimeout bounds a single fetch. Broker sites sit behind CDNs and
	// bot walls that answer slowly, so this is generous.
	DefaultTimeout = model.DefaultTimeout

	// DefaultDeadline bounds one whole extraction.
	DefaultDeadline = model.DefaultDeadline

	// DefaultMaxPages is the page budget per broker.
	DefaultMaxPages = model.DefaultMaxPages

	// DefaultMaxDepth is the link depth from the seed layer.
	DefaultMaxDepth = model.DefaultMaxDepth

	// DefaultWorkers is the number of concurrent fetches within one crawl.
	DefaultWorkers = 4

	// DefaultBatchSize is the number of brokers extracted concurrently.
	DefaultBatchSize = 4

	// DefaultCrawlDelay is the minimum spacing between two requests to the
	// same host.
	DefaultCrawlDelay = 250 * time.Millisecond

	// DefaultUserAgent identifies brokersafety in HTTP requests so that site
	// operators can recognise the traffic in their logs.
	DefaultUserAgent = "brokersafety/1.0 (+https://github.com/nao1215/brokersafety; safety facts crawler)"

	// DefaultAcceptLanguage prefers English pages, which carry the licence
	// footers most consistently.
	DefaultAcceptLanguage = "en-GB,en-US;q=0.9,en;q=0.8"

	// DefaultMaxBodySize limits the response body size to read. Legal PDFs
	// are larger than HTML pages, hence 10MB.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultDocumentText is the number of PDF documents whose text is read.
	// PDFs are only linked unless --pdf-text asks for more.
	DefaultDocumentText = 0

	// DefaultCacheTTL is how long cached fetches stay fresh in the history
	// database.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for brokersafety.
// It is populated from CLI flags and the config file and passed down
// explicitly rather than kept in global state.
type Config struct {
	// Targets are the broker homepages to extract.
	Targets []string

	// Seeds are extra starting URLs applied to every target. A run with seeds
	// but no target extracts from the seeds alone.
	Seeds []string

	// BrokerID forces a fixed-fact extractor. Only meaningful with a single
	// target.
	BrokerID string

	// Timeout bounds a single fetch.
	Timeout time.Duration

	// Deadline bounds one extraction. Zero disables it.
	Deadline time.Duration

	// MaxPages is the page budget per broker.
	MaxPages int

	// MaxDepth is the link depth from the seed layer. 0 fetches only seeds
	// and generated candidates.
	MaxDepth int

	// Workers is the number of concurrent fetches within one crawl.
	Workers int

	// BatchSize is the number of brokers extracted concurrently.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// Debug adds a crawl summary hint to records and makes text output verbose.
	Debug bool

	// ConfigFilePath is the path to the configuration file. If empty,
	// .brokersafety.yaml is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds per-site settings loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// RecordOnly writes only the normalized record, without run metadata.
	RecordOnly bool

	// ReportFile is the output file path. Empty means stdout.
	ReportFile string

	// ProxyAddress is a SOCKS5 proxy in "host:port" form. Empty means direct
	// connections.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes every fetch through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// DBDir is the directory of the history database.
	// Defaults to the XDG data directory (~/.local/share/brokersafety on Linux).
	DBDir string

	// SaveToDB stores every report in the history database.
	SaveToDB bool

	// CacheTTL is how long fetches are served from the history database.
	// Zero disables the fetch cache.
	CacheTTL time.Duration

	// CrawlDelay is the minimum spacing between requests to one host.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// AcceptLanguage is the Accept-Language header sent with HTTP requests.
	AcceptLanguage string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64

	// RespectRobots filters generated candidates through robots.txt.
	RespectRobots bool

	// Sitemaps enables sitemap discovery.
	Sitemaps bool

	// DocumentText is the number of PDF documents whose text is read.
	DocumentText int

	// ValidateLinks checks fixed-fact links over the network.
	ValidateLinks bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		Deadline:          DefaultDeadline,
		MaxPages:          DefaultMaxPages,
		MaxDepth:          DefaultMaxDepth,
		Workers:           DefaultWorkers,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		CacheTTL:          DefaultCacheTTL,
		CrawlDelay:        DefaultCrawlDelay,
		UserAgent:         DefaultUserAgent,
		AcceptLanguage:    DefaultAcceptLanguage,
		MaxBodySize:       DefaultMaxBodySize,
		RespectRobots:     true,
		Sitemaps:          true,
		DocumentText:      DefaultDocumentText,
	}
}

// XDGDataDir returns the XDG data directory for brokersafety.
// On Linux: ~/.local/share/brokersafety
// On macOS: ~/Library/Application Support/brokersafety
// On Windows: %LOCALAPPDATA%\brokersafety
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for brokersafety.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for brokersafety.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 && len(c.Seeds) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Deadline < 0 {
		return ErrInvalidDeadline
	}
	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.CacheTTL < 0 {
		return ErrInvalidCacheTTL
	}
	if c.BrokerID != "" && len(c.Targets) > 1 {
		return ErrBrokerIDWithManyTargets
	}
	return nil
}

// SiteFor returns the merged site configuration for a homepage. Without a
// loaded config file it returns the zero SiteConfig.
func (c *Config) SiteFor(homepage string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(HostKey(homepage))
}

// Requests builds one crawl request per target, applying global budgets
// first and per-site overrides second. When only seeds are configured a
// single seed-only request is returned.
func (c *Config) Requests() []model.CrawlRequest {
	targets := c.Targets
	if len(targets) == 0 {
		targets = []string{""}
	}

	requests := make([]model.CrawlRequest, 0, len(targets))
	for _, target := range targets {
		req := model.NewCrawlRequest(target, c.Seeds...)
		req.MaxPages = c.MaxPages
		req.MaxDepth = c.MaxDepth
		req.Timeout = c.Timeout
		req.Deadline = c.Deadline
		req.BrokerID = c.BrokerID
		req.Debug = c.Debug

		site := c.SiteFor(target)
		if site.BrokerID != "" && req.BrokerID == "" {
			req.BrokerID = site.BrokerID
		}
		if len(site.Seeds) > 0 {
			req.Seeds = append(append([]string(nil), req.Seeds...), site.Seeds...)
		}
		if site.MaxPages > 0 {
			req.MaxPages = site.MaxPages
		}
		if site.MaxDepth > 0 {
			req.MaxDepth = site.MaxDepth
		}
		requests = append(requests, req)
	}
	return requests
}

// HostKey returns the lower-cased host of a homepage without a leading
// "www.", the key used in the sites section of the config file.
func HostKey(homepage string) string {
	s := strings.TrimSpace(homepage)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
