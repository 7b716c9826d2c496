package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default crawl budgets.
const (
	// DefaultMaxPages is the page budget used when none is given.
	DefaultMaxPages = 48

	// DefaultMaxDepth is the link depth used by the CLI when none is given.
	DefaultMaxDepth = 3

	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 25 * time.Second

	// DefaultDeadline bounds one whole extraction.
	DefaultDeadline = 3 * time.Minute
)

// Request validation errors.
var (
	// ErrNoTarget is returned when neither homepage nor seeds are present.
	ErrNoTarget = errors.New("crawl request needs a homepage or at least one seed")

	// ErrInvalidMaxPages is returned when MaxPages is below 1.
	ErrInvalidMaxPages = errors.New("max pages must be at least 1")

	// ErrInvalidMaxDepth is returned when MaxDepth is negative.
	ErrInvalidMaxDepth = errors.New("max depth must not be negative")

	// ErrInvalidTimeout is returned for a negative fetch timeout or deadline.
	ErrInvalidTimeout = errors.New("timeout must not be negative")
)

// CrawlRequest describes one extraction. It is constructed once per
// invocation and treated as read-only afterwards.
type CrawlRequest struct {
	// Homepage is the broker's public site, e.g. "https://broker.example".
	Homepage string `json:"homepage,omitempty"`

	// Seeds are explicit starting URLs, typically legal or regulation pages.
	Seeds []string `json:"seeds,omitempty"`

	// MaxPages bounds the number of fetched pages.
	MaxPages int `json:"max_pages" validate:"gte=1"`

	// MaxDepth bounds link depth from the seed layer. 0 means only seeds and
	// generated candidates are fetched, never discovered anchors.
	MaxDepth int `json:"max_depth" validate:"gte=0"`

	// Timeout bounds a single fetch.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`

	// Deadline bounds the whole extraction. Zero disables it.
	Deadline time.Duration `json:"deadline" validate:"gte=0"`

	// AllowDocumentLinks records PDF and similar links as sources.
	AllowDocumentLinks bool `json:"allow_document_links"`

	// BrokerID selects a fixed-fact extractor when one exists.
	BrokerID string `json:"broker_id,omitempty"`

	// Debug adds a crawl summary to the record hints.
	Debug bool `json:"debug,omitempty"`
}

// NewCrawlRequest returns a request for homepage with default budgets.
func NewCrawlRequest(homepage string, seeds ...string) CrawlRequest {
	return CrawlRequest{
		Homepage:           homepage,
		Seeds:              seeds,
		MaxPages:           DefaultMaxPages,
		MaxDepth:           DefaultMaxDepth,
		Timeout:            DefaultTimeout,
		Deadline:           DefaultDeadline,
		AllowDocumentLinks: true,
	}
}

// HasTarget reports whether the request names a homepage or a seed.
func (r CrawlRequest) HasTarget() bool {
	if strings.TrimSpace(r.Homepage) != "" {
		return true
	}
	for _, s := range r.Seeds {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// WithDefaults fills zero budgets with the package defaults. MaxDepth is left
// untouched because zero is a meaningful depth.
func (r CrawlRequest) WithDefaults() CrawlRequest {
	if r.MaxPages == 0 {
		r.MaxPages = DefaultMaxPages
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultTimeout
	}
	return r
}

var requestValidator = validator.New()

// Validate checks the request invariants.
func (r CrawlRequest) Validate() error {
	if !r.HasTarget() {
		return ErrNoTarget
	}
	if err := requestValidator.Struct(r); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return fmt.Errorf("invalid crawl request: %w", err)
		}
		for _, ve := range ves {
			switch ve.Field() {
			case "MaxPages":
				return fmt.Errorf("%w: got %d", ErrInvalidMaxPages, r.MaxPages)
			case "MaxDepth":
				return fmt.Errorf("%w: got %d", ErrInvalidMaxDepth, r.MaxDepth)
			case "Timeout", "Deadline":
				return fmt.Errorf("%w: %s failed %s", ErrInvalidTimeout, ve.Field(), ve.Tag())
			}
		}
		return fmt.Errorf("invalid crawl request: %w", err)
	}
	return nil
}
