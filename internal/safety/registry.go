package safety

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nao1215/brokersafety/internal/model"
)

// Registry selects the extractor for a request.
type Registry struct {
	fixed    []*FixedFactExtractor
	fallback Extractor
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithFixedFacts registers fixed-fact extractors. Earlier registrations win
// when two claim the same host.
func WithFixedFacts(extractors ...*FixedFactExtractor) RegistryOption {
	return func(r *Registry) {
		r.fixed = append(r.fixed, extractors...)
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns a registry that falls back to fallback when no
// fixed-fact extractor matches.
func NewRegistry(fallback Extractor, opts ...RegistryOption) *Registry {
	r := &Registry{fallback: fallback}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Select returns the fixed-fact extractor whose broker id equals brokerID,
// else the one whose hosts contain the homepage host, else the fallback.
func (r *Registry) Select(brokerID, homepage string) Extractor {
	if id := strings.ToLower(strings.TrimSpace(brokerID)); id != "" {
		for _, e := range r.fixed {
			if strings.EqualFold(e.BrokerID(), id) {
				return e
			}
		}
		r.logger.Debug("no fixed facts for broker id", "broker", brokerID)
	}
	if host := hostOf(homepage); host != "" {
		for _, e := range r.fixed {
			if e.Matches(host) {
				return e
			}
		}
	}
	return r.fallback
}

// Extract runs the selected extractor for req. Its signature matches
// pipeline.RunFunc.
func (r *Registry) Extract(ctx context.Context, req model.CrawlRequest) (*model.SafetyReport, error) {
	x := r.Select(req.BrokerID, req.Homepage)
	r.logger.Debug("extractor selected", "extractor", x.Name(), "homepage", req.Homepage)
	return x.Extract(ctx, req)
}

// BrokerIDs returns the broker ids of the registered fixed-fact extractors.
func (r *Registry) BrokerIDs() []string {
	ids := make([]string, 0, len(r.fixed))
	for _, e := range r.fixed {
		ids = append(ids, e.BrokerID())
	}
	return ids
}
