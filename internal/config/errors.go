package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when neither a homepage nor a seed is given.
	ErrNoTarget = errors.New("no target specified: provide a broker homepage or use --seed")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDeadline is returned when the extraction deadline is negative.
	// Use 0 to disable the deadline.
	ErrInvalidDeadline = errors.New("invalid deadline: must be non-negative")

	// ErrInvalidMaxPages is returned when the page budget is below 1.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")

	// ErrInvalidMaxDepth is returned when the crawl depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidWorkers is returned when the per-crawl worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxy is returned when --tor and --proxy are both given.
	ErrConflictingProxy = errors.New("conflicting egress: --tor and --proxy cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidCacheTTL is returned when the cache TTL is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be non-negative")

	// ErrBrokerIDWithManyTargets is returned when --broker is combined with
	// more than one homepage.
	ErrBrokerIDWithManyTargets = errors.New("--broker selects facts for a single homepage")
)
