package safety

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/nao1215/brokersafety/internal/model"
)

func TestBrokerIDs(t *testing.T) {
	t.Parallel()

	got := BrokerIDs()
	if !slices.Equal(got, []string{"admirals", "etoro"}) {
		t.Errorf("expected [admirals etoro], got %v", got)
	}
}

func TestParseFactSheets(t *testing.T) {
	t.Parallel()

	t.Run("invalid tier", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"facts/x.yaml": {Data: []byte(`
broker_id: x
entities:
  - name: X Ltd
    regulator: FCA
    tier: Tier-9
`)}}
		if _, err := parseFactSheets(fsys); !errors.Is(err, ErrInvalidFactSheet) {
			t.Errorf("expected ErrInvalidFactSheet, got %v", err)
		}
	})

	t.Run("missing entities", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"facts/x.yaml": {Data: []byte("broker_id: x\n")}}
		if _, err := parseFactSheets(fsys); !errors.Is(err, ErrInvalidFactSheet) {
			t.Errorf("expected ErrInvalidFactSheet, got %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"facts/x.yaml": {Data: []byte("broker_id: [x\n")}}
		if _, err := parseFactSheets(fsys); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("keys are lowercased", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"facts/x.yaml": {Data: []byte(`
broker_id: Example
entities:
  - name: Example Ltd
    regulator: FCA
`)}}
		got, err := parseFactSheets(fsys)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := got["example"]; !ok {
			t.Errorf("expected key example, got %v", got)
		}
	})
}

func TestNewFixedFactExtractor(t *testing.T) {
	t.Parallel()

	if _, err := NewFixedFactExtractor("nobody"); !errors.Is(err, ErrUnknownBroker) {
		t.Errorf("expected ErrUnknownBroker, got %v", err)
	}

	x, err := NewFixedFactExtractor(" Admirals ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.Name() != "fixed:admirals" {
		t.Errorf("unexpected name %q", x.Name())
	}
	if x.workers != defaultValidationWorkers {
		t.Errorf("expected %d workers, got %d", defaultValidationWorkers, x.workers)
	}

	all, err := LoadFixedFactExtractors()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].BrokerID() != "admirals" || all[1].BrokerID() != "etoro" {
		t.Errorf("unexpected extractors %v", all)
	}
}

func TestFixedFactExtractorMatches(t *testing.T) {
	t.Parallel()

	x, err := NewFixedFactExtractor("admirals")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := map[string]bool{
		"admiralmarkets.com":     true,
		"www.admiralmarkets.com": true,
		"eu.admirals.com":        true,
		"notadmirals.com":        false,
		"admirals.com.evil":      false,
		"":                       false,
	}
	for host, want := range tests {
		if got := x.Matches(host); got != want {
			t.Errorf("Matches(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestFixedFactExtractorAdmirals(t *testing.T) {
	t.Parallel()

	t.Run("offline facts", func(t *testing.T) {
		t.Parallel()

		x, err := NewFixedFactExtractor("admirals")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, err := x.Extract(context.Background(), model.CrawlRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Homepage != "https://admiralmarkets.com" {
			t.Errorf("expected base homepage, got %s", report.Homepage)
		}
		if report.BrokerID != "admirals" || report.Extractor != "fixed:admirals" {
			t.Errorf("unexpected metadata %+v", report)
		}

		rec := report.Record
		if len(rec.Entities) != 7 {
			t.Fatalf("expected 7 entities, got %d", len(rec.Entities))
		}
		uk := rec.Entities[0]
		if uk.EntityName != "Admiral Markets UK Ltd" || uk.RegulatorAbbr != "FCA" {
			t.Errorf("unexpected first entity %+v", uk)
		}
		if uk.Regulator != "Financial Conduct Authority" || uk.Jurisdiction == "" {
			t.Errorf("expected catalog fields, got %+v", uk)
		}
		if uk.InvestorProtection != "FSCS up to £85,000" {
			t.Errorf("unexpected protection %q", uk.InvestorProtection)
		}
		if !slices.Equal(uk.ServeCountries, []string{"GB"}) {
			t.Errorf("unexpected serve countries %v", uk.ServeCountries)
		}
		wantTerms := "https://admiralmarkets.com/utils/pdf/start-trading/documents/terms-of-securities-trading.pdf?regulator=fca"
		if rec.TermsURL != wantTerms {
			t.Errorf("expected terms %s, got %s", wantTerms, rec.TermsURL)
		}
		if uk.Documents == nil || uk.Documents.Terms != wantTerms {
			t.Errorf("expected entity documents, got %+v", uk.Documents)
		}
		if rec.OpenAccountURL != "https://admiralmarkets.com/start-trading" {
			t.Errorf("unexpected open account %q", rec.OpenAccountURL)
		}

		// Without a fetcher the Belgium restriction always applies.
		for _, ent := range rec.Entities {
			excluded := slices.Contains(ent.ExcludeCountries, "BE")
			want := ent.RegulatorAbbr == "FCA" || ent.RegulatorAbbr == "CySEC"
			if excluded != want {
				t.Errorf("%s: BE excluded = %v, want %v", ent.EntityName, excluded, want)
			}
		}
		if len(rec.Warnings) != 2 {
			t.Errorf("expected 2 warnings, got %v", rec.Warnings)
		}
		if !strings.Contains(rec.IsRegulated, "FRN 595450") {
			t.Errorf("unexpected is_regulated %q", rec.IsRegulated)
		}
		if len(rec.Hints) != 0 {
			t.Errorf("expected no hints, got %v", rec.Hints)
		}
	})

	t.Run("footer probe lifts restriction", func(t *testing.T) {
		t.Parallel()

		server := site(t, map[string]string{
			"/start-trading/documents": `<html><body><main>Belgium</main><footer>Risk warning.</footer></body></html>`,
		})
		x, err := NewFixedFactExtractor("admirals", WithFactFetcher(testFetcher()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, err := x.Extract(context.Background(), model.CrawlRequest{Homepage: server.URL})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, ent := range report.Record.Entities {
			if len(ent.ExcludeCountries) != 0 {
				t.Errorf("%s: expected no exclusions, got %v", ent.EntityName, ent.ExcludeCountries)
			}
		}
		if !strings.HasPrefix(report.Record.TermsURL, server.URL) {
			t.Errorf("expected links resolved against homepage, got %s", report.Record.TermsURL)
		}
	})

	t.Run("footer mentioning belgium keeps restriction", func(t *testing.T) {
		t.Parallel()

		server := site(t, map[string]string{
			"/start-trading/documents": `<html><body><footer>Not available to residents of Belgium.</footer></body></html>`,
		})
		x, err := NewFixedFactExtractor("admirals", WithFactFetcher(testFetcher()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, _ := x.Extract(context.Background(), model.CrawlRequest{Homepage: server.URL})
		if !slices.Contains(report.Record.Entities[0].ExcludeCountries, "BE") {
			t.Errorf("expected BE exclusion, got %v", report.Record.Entities[0].ExcludeCountries)
		}
	})

	t.Run("validation hints never blank links", func(t *testing.T) {
		t.Parallel()

		server := site(t, map[string]string{
			"/start-trading/documents": `<html><body><footer>Legal.</footer></body></html>`,
			"/start-trading":           `<html><body>Open account</body></html>`,
		})
		x, err := NewFixedFactExtractor("admirals",
			WithFactFetcher(testFetcher()),
			WithLinkValidation(true),
			WithValidationWorkers(2),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, err := x.Extract(context.Background(), model.CrawlRequest{Homepage: server.URL})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rec := report.Record
		if rec.TermsURL == "" || rec.RiskDisclosureURL == "" {
			t.Error("links must never be blanked")
		}
		if !slices.ContainsFunc(rec.Hints, func(h string) bool { return strings.HasSuffix(h, rec.TermsURL) }) {
			t.Errorf("expected hint for unreachable terms, got %v", rec.Hints)
		}
		for _, h := range rec.Hints {
			if strings.HasSuffix(h, server.URL+"/start-trading") {
				t.Errorf("reachable link flagged: %s", h)
			}
		}
	})
}

func TestFixedFactExtractorEtoro(t *testing.T) {
	t.Parallel()

	t.Run("without discovery", func(t *testing.T) {
		t.Parallel()

		x, err := NewFixedFactExtractor("etoro")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, err := x.Extract(context.Background(), model.NewCrawlRequest("etoro.com"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rec := report.Record
		if len(rec.Entities) != 4 {
			t.Fatalf("expected 4 entities, got %d", len(rec.Entities))
		}
		if rec.HasDocuments() {
			t.Errorf("expected no document links, got %+v", rec)
		}
		want := []string{"CySEC", "FCA", "ASIC", "FSA"}
		if !slices.Equal(rec.Regulators(), want) {
			t.Errorf("expected %v, got %v", want, rec.Regulators())
		}
	})

	t.Run("discovery fills empty slots", func(t *testing.T) {
		t.Parallel()

		found := model.NewNormalizedSafetyRecord()
		found.TermsURL = "https://www.etoro.com/customer-service/terms-and-conditions/"
		found.RiskDisclosureURL = "https://www.etoro.com/customer-service/general-risk-disclosure/"
		found.Sources = []string{"https://www.etoro.com/customer-service/regulation-license/"}
		stub := &stubExtractor{name: HeuristicName, rec: found}

		x, err := NewFixedFactExtractor("etoro", WithLinkDiscovery(stub))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		report, err := x.Extract(context.Background(), model.NewCrawlRequest("https://www.etoro.com"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stub.calls.Load() != 1 {
			t.Errorf("expected one discovery run, got %d", stub.calls.Load())
		}
		rec := report.Record
		if rec.TermsURL != found.TermsURL || rec.RiskDisclosureURL != found.RiskDisclosureURL {
			t.Errorf("expected discovered links, got %q %q", rec.TermsURL, rec.RiskDisclosureURL)
		}
		if !slices.Contains(rec.Sources, found.Sources[0]) {
			t.Errorf("expected discovered source, got %v", rec.Sources)
		}
		if report.PagesFetched != 3 {
			t.Errorf("expected pages from discovery, got %d", report.PagesFetched)
		}
		if len(rec.Entities) != 4 {
			t.Errorf("discovery must not change entities, got %d", len(rec.Entities))
		}
	})

	t.Run("admirals ignores discovery", func(t *testing.T) {
		t.Parallel()

		stub := &stubExtractor{name: HeuristicName}
		x, err := NewFixedFactExtractor("admirals", WithLinkDiscovery(stub))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := x.Extract(context.Background(), model.CrawlRequest{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stub.calls.Load() != 0 {
			t.Errorf("expected no discovery run, got %d", stub.calls.Load())
		}
	})
}

func TestFillEmpty(t *testing.T) {
	t.Parallel()

	slot := "https://broker.example/terms"
	fillEmpty(&slot, "https://broker.example/other")
	if slot != "https://broker.example/terms" {
		t.Errorf("filled slot overwritten: %s", slot)
	}

	var empty string
	fillEmpty(&empty, "https://broker.example/risk")
	if empty != "https://broker.example/risk" {
		t.Errorf("expected empty slot filled, got %q", empty)
	}
}
