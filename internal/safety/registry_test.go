package safety

import (
	"context"
	"slices"
	"testing"

	"github.com/nao1215/brokersafety/internal/model"
)

func testRegistry(t *testing.T, fallback Extractor) *Registry {
	t.Helper()

	fixed, err := LoadFixedFactExtractors()
	if err != nil {
		t.Fatalf("failed to load fact sheets: %v", err)
	}
	return NewRegistry(fallback, WithFixedFacts(fixed...), WithRegistryLogger(nil))
}

func TestRegistrySelect(t *testing.T) {
	t.Parallel()

	fallback := &stubExtractor{name: HeuristicName}
	r := testRegistry(t, fallback)

	tests := []struct {
		name     string
		brokerID string
		homepage string
		want     string
	}{
		{name: "broker id", brokerID: "admirals", want: "fixed:admirals"},
		{name: "broker id is case insensitive", brokerID: "EToro", homepage: "https://broker.example", want: "fixed:etoro"},
		{name: "host", homepage: "https://www.admiralmarkets.com/", want: "fixed:admirals"},
		{name: "host without scheme", homepage: "etoro.com", want: "fixed:etoro"},
		{name: "subdomain", homepage: "https://eu.admirals.com", want: "fixed:admirals"},
		{name: "unknown host", homepage: "https://broker.example", want: HeuristicName},
		{name: "unknown broker id falls back to host", brokerID: "nobody", homepage: "https://etoro.com", want: "fixed:etoro"},
		{name: "nothing", want: HeuristicName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Select(tt.brokerID, tt.homepage).Name(); got != tt.want {
				t.Errorf("Select(%q, %q) = %s, want %s", tt.brokerID, tt.homepage, got, tt.want)
			}
		})
	}
}

func TestRegistryExtract(t *testing.T) {
	t.Parallel()

	fallback := &stubExtractor{name: HeuristicName}
	r := testRegistry(t, fallback)

	report, err := r.Extract(context.Background(), model.NewCrawlRequest("https://broker.example"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Extractor != HeuristicName || fallback.calls.Load() != 1 {
		t.Errorf("expected fallback run, got %s with %d calls", report.Extractor, fallback.calls.Load())
	}

	report, err = r.Extract(context.Background(), model.NewCrawlRequest("https://admiralmarkets.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Extractor != "fixed:admirals" {
		t.Errorf("expected fixed facts, got %s", report.Extractor)
	}
	if fallback.calls.Load() != 1 {
		t.Errorf("fallback must not run for known brokers, got %d calls", fallback.calls.Load())
	}

	if !slices.Equal(r.BrokerIDs(), []string{"admirals", "etoro"}) {
		t.Errorf("unexpected broker ids %v", r.BrokerIDs())
	}
}
