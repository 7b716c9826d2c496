package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/brokersafety/internal/crawler"
	"github.com/nao1215/brokersafety/internal/detect"
	"github.com/nao1215/brokersafety/internal/fetch"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/normalize"
)

// site serves pages by path and 404 for everything else.
func site(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".pdf") {
			w.Header().Set("Content-Type", "application/pdf")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testFetcher() *fetch.Client {
	return fetch.New(fetch.WithTimeout(5 * time.Second))
}

// TestNewCrawlStep tests the CrawlStep constructor.
func TestNewCrawlStep(t *testing.T) {
	t.Parallel()

	step := NewCrawlStep(crawler.NewSpider(testFetcher()), WithCrawlLogger(nil))
	if step.Name() != StepCrawl {
		t.Errorf("expected name %q, got %q", StepCrawl, step.Name())
	}
	if step.spider == nil {
		t.Error("expected spider")
	}
	if _, ok := Step(step).(Finalizer); ok {
		t.Error("crawl step must not be a finalizer")
	}
}

// TestCrawlStepDo tests copying the crawl result into the scan.
func TestCrawlStepDo(t *testing.T) {
	t.Parallel()

	t.Run("copies crawl result", func(t *testing.T) {
		t.Parallel()

		server := site(t, map[string]string{
			"/":           `<html><body><a href="/regulation">Regulation</a></body></html>`,
			"/regulation": `<html><body>Regulated by the FCA.</body></html>`,
		})

		scan := model.NewSafetyScan(model.NewCrawlRequest(server.URL))
		step := NewCrawlStep(crawler.NewSpider(testFetcher(), crawler.WithSitemaps(false)))
		if err := step.Do(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if scan.Origin != server.URL {
			t.Errorf("expected origin %s, got %s", server.URL, scan.Origin)
		}
		if len(scan.Pages) < 2 {
			t.Errorf("expected homepage and regulation page, got %d pages", len(scan.Pages))
		}
		if len(scan.TriedPaths) == 0 || len(scan.Candidates) == 0 {
			t.Error("expected tried paths and candidates")
		}
		if len(scan.Anchors) == 0 {
			t.Error("expected anchors")
		}
	})

	t.Run("request without origin fails", func(t *testing.T) {
		t.Parallel()

		req := model.NewCrawlRequest("")
		req.Seeds = []string{"ftp://broker.example/legal"}
		scan := model.NewSafetyScan(req)

		err := NewCrawlStep(crawler.NewSpider(testFetcher())).Do(context.Background(), scan)
		if !errors.Is(err, crawler.ErrNoOrigin) {
			t.Errorf("expected ErrNoOrigin, got %v", err)
		}
	})
}

// TestFinalSteps tests the steps that run after the crawl.
func TestFinalSteps(t *testing.T) {
	t.Parallel()

	t.Run("detect", func(t *testing.T) {
		t.Parallel()

		scan := newScan()
		scan.Pages = []*model.FetchedPage{{URL: "https://broker.example/legal", RawText: "Licensed by ASIC."}}

		step := NewDetectStep(nil)
		if !step.Final() || step.Name() != StepDetect {
			t.Errorf("unexpected step %s final=%v", step.Name(), step.Final())
		}
		if err := step.Do(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := scan.Detection.Abbreviations(); !slices.Equal(got, []string{"ASIC"}) {
			t.Errorf("expected ASIC, got %v", got)
		}
	})

	t.Run("classify includes label-less documents", func(t *testing.T) {
		t.Parallel()

		scan := newScan()
		scan.Anchors = []model.Anchor{{URL: "https://broker.example/start", Label: "Open Account"}}
		scan.Documents = []string{"https://broker.example/files/client-agreement.pdf"}

		step := NewClassifyLinksStep(nil)
		if !step.Final() || step.Name() != StepClassify {
			t.Errorf("unexpected step %s final=%v", step.Name(), step.Final())
		}
		if err := step.Do(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if scan.Links.OpenAccount != "https://broker.example/start" {
			t.Errorf("unexpected open account %q", scan.Links.OpenAccount)
		}
		if scan.Links.ClientAgreement != "https://broker.example/files/client-agreement.pdf" {
			t.Errorf("unexpected client agreement %q", scan.Links.ClientAgreement)
		}
	})

	t.Run("normalize", func(t *testing.T) {
		t.Parallel()

		scan := newScan()
		step := NewNormalizeStep(nil)
		if !step.Final() || step.Name() != StepNormalize {
			t.Errorf("unexpected step %s final=%v", step.Name(), step.Final())
		}
		if err := step.Do(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if scan.Record == nil {
			t.Fatal("expected record")
		}
		if !slices.Contains(scan.Record.Hints, normalize.HintNoPages) {
			t.Errorf("expected no-pages hint, got %v", scan.Record.Hints)
		}
	})
}

// TestDefaultPipeline tests the assembled pipeline against a fixture site.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("step order", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(testFetcher(), nil)
		expected := []string{StepCrawl, StepDetect, StepClassify, StepNormalize}
		if !slices.Equal(p.StepNames(), expected) {
			t.Errorf("expected %v, got %v", expected, p.StepNames())
		}
	})

	t.Run("regulator and risk document", func(t *testing.T) {
		t.Parallel()

		server := site(t, map[string]string{
			"/": `<html><body>
				<p>Broker UK Ltd is authorised and regulated by the FCA.</p>
				<p>Negative balance protection for retail clients.</p>
				<a href="/docs/risk.pdf">Risk Disclosure</a>
			</body></html>`,
			"/docs/risk.pdf": "%PDF-1.4\n%%EOF",
		})

		p := DefaultPipeline(testFetcher(), nil,
			WithPipelineSitemaps(false),
			WithPipelineWindow(detect.DefaultWindow),
		)
		scan := model.NewSafetyScan(model.NewCrawlRequest(server.URL))
		if err := p.Execute(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec := scan.Record
		if rec == nil {
			t.Fatal("expected record")
		}
		if !strings.Contains(rec.IsRegulated, "FCA") {
			t.Errorf("expected FCA, got %q", rec.IsRegulated)
		}
		if rec.RiskDisclosureURL != server.URL+"/docs/risk.pdf" {
			t.Errorf("expected risk disclosure %s, got %q", server.URL+"/docs/risk.pdf", rec.RiskDisclosureURL)
		}
		if len(rec.Entities) != 1 || rec.Entities[0].EntityName != "Broker UK Ltd" {
			t.Errorf("unexpected entities %+v", rec.Entities)
		}
		if !slices.Contains(rec.Highlights, normalize.HighlightNBP) {
			t.Errorf("expected nbp highlight, got %v", rec.Highlights)
		}
		for _, src := range rec.Sources {
			if !strings.HasPrefix(src, server.URL) {
				t.Errorf("source %s is not same-site", src)
			}
		}
		if len(rec.TriedPaths) > scan.Request.MaxPages {
			t.Errorf("tried %d paths with budget %d", len(rec.TriedPaths), scan.Request.MaxPages)
		}
	})

	t.Run("all fetches fail", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(server.Close)

		req := model.NewCrawlRequest(server.URL)
		req.MaxPages = 8
		scan := model.NewSafetyScan(req)
		if err := DefaultPipeline(testFetcher(), nil).Execute(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec := scan.Record
		if rec == nil {
			t.Fatal("expected record")
		}
		if len(rec.Entities) != 0 || len(rec.Sources) != 0 || rec.HasDocuments() || rec.OpenAccountURL != "" {
			t.Errorf("expected empty record, got %+v", rec)
		}
		if !slices.ContainsFunc(rec.Caveats, func(c string) bool {
			return strings.Contains(c, "could not be conclusively resolved")
		}) {
			t.Errorf("expected unresolved caveat, got %v", rec.Caveats)
		}
		if len(rec.Hints) == 0 {
			t.Error("expected hints")
		}
		if scan.FetchFailures == 0 {
			t.Error("expected fetch failures")
		}
	})

	t.Run("deadline still yields a record", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		scan := model.NewSafetyScan(model.NewCrawlRequest(server.URL))
		err := DefaultPipeline(testFetcher(), nil).Execute(ctx, scan)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if scan.Record == nil {
			t.Fatal("expected record")
		}
		if !scan.TimedOut {
			t.Error("expected timed out scan")
		}
		if !slices.Contains(scan.Record.Caveats, normalize.CaveatTimedOut) {
			t.Errorf("expected timeout caveat, got %v", scan.Record.Caveats)
		}
	})
}

func TestDefaultPipelineRobots(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /regulation\n",
		"/":           `<html><body><a href="/regulation">Regulation</a></body></html>`,
		"/regulation": `<html><body><p>Broker UK Ltd is authorised and regulated by the FCA.</p></body></html>`,
	}

	tests := []struct {
		name    string
		opts    []DefaultPipelineOption
		wantFCA bool
	}{
		{"advisory by default", nil, true},
		{"filtered when enabled", []DefaultPipelineOption{WithPipelineRobots(true)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := site(t, pages)
			opts := append([]DefaultPipelineOption{WithPipelineSitemaps(false)}, tt.opts...)
			scan := model.NewSafetyScan(model.NewCrawlRequest(server.URL))
			if err := DefaultPipeline(testFetcher(), nil, opts...).Execute(context.Background(), scan); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if scan.Record == nil {
				t.Fatal("expected record")
			}
			if got := strings.Contains(scan.Record.IsRegulated, "FCA"); got != tt.wantFCA {
				t.Errorf("FCA found = %v, want %v (is_regulated %q)", got, tt.wantFCA, scan.Record.IsRegulated)
			}
		})
	}
}
