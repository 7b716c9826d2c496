package safety

import (
	"context"
	"net/url"
	"strings"

	"github.com/nao1215/brokersafety/internal/model"
)

// Extractor produces the safety report of one request.
type Extractor interface {
	// Name identifies the strategy in reports and logs.
	Name() string

	// Extract runs the strategy. The returned report is never nil, even
	// when an error is returned alongside it.
	Extract(ctx context.Context, req model.CrawlRequest) (*model.SafetyReport, error)
}

// NormalizeHomepage trims s, prefixes https:// when no scheme is present and
// strips trailing slashes. A blank input yields "".
func NormalizeHomepage(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	trimmed := strings.TrimRight(s, "/")
	if strings.HasSuffix(trimmed, ":") {
		return s
	}
	return trimmed
}

// hostOf returns the lowercased host of raw without a leading "www.".
func hostOf(raw string) string {
	u, err := url.Parse(NormalizeHomepage(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// resolve returns ref resolved against base. Absolute refs are returned
// unchanged and an unparsable base leaves ref as is.
func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ref
	}
	return b.ResolveReference(r).String()
}
