package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/brokersafety/internal/config"
	"github.com/nao1215/brokersafety/internal/database"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/report"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokerSite serves a minimal broker website.
func brokerSite(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/": `<html><body>
			<p>Example Markets UK Ltd is authorised and regulated by the FCA.</p>
			<a href="/legal/terms">Terms and Conditions</a>
			<a href="/legal/risk">Risk Disclosure</a>
		</body></html>`,
		"/legal/terms": `<html><body>Client terms.</body></html>`,
		"/legal/risk":  `<html><body>CFDs are complex instruments.</body></html>`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// testCrawlConfig returns a config that stays on the loopback site.
func testCrawlConfig(t *testing.T, targets ...string) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Targets = targets
	cfg.Timeout = 5 * time.Second
	cfg.Deadline = 30 * time.Second
	cfg.CrawlDelay = 0
	cfg.Sitemaps = false
	cfg.CacheTTL = 0
	cfg.SaveToDB = false
	cfg.DBDir = t.TempDir()
	cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	return cfg
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if !strings.HasPrefix(cmd.Use, "crawl") {
			t.Errorf("expected use to start with 'crawl', got %q", cmd.Use)
		}
	})

	t.Run("has flags with defaults", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name      string
			shorthand string
			defValue  string
		}{
			{name: "seed", shorthand: "s"},
			{name: "broker", shorthand: "b", defValue: ""},
			{name: "max-pages", shorthand: "p", defValue: "48"},
			{name: "depth", shorthand: "d", defValue: "3"},
			{name: "timeout", shorthand: "t", defValue: "25s"},
			{name: "deadline", shorthand: "D", defValue: "3m0s"},
			{name: "workers", shorthand: "w", defValue: "4"},
			{name: "json", shorthand: "j", defValue: "false"},
			{name: "markdown", shorthand: "m", defValue: "false"},
			{name: "output", shorthand: "o", defValue: ""},
			{name: "config", shorthand: "c", defValue: ""},
			{name: "cache-ttl", defValue: "24h0m0s"},
			{name: "no-save", defValue: "false"},
			{name: "tor", defValue: "false"},
		}
		for _, tt := range tests {
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected %s flag", tt.name)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("%s: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
			}
			if tt.defValue != "" && flag.DefValue != tt.defValue {
				t.Errorf("%s: expected default %q, got %q", tt.name, tt.defValue, flag.DefValue)
			}
		}
	})
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("reads flags and config file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "sites:\n  broker.example:\n    cookie: \"consent=yes\"\n"
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		err := cmd.ParseFlags([]string{
			"-c", configPath,
			"-s", "https://broker.example/legal",
			"-p", "10",
			"--no-robots",
			"--no-save",
			"--json",
			"--record-only",
			"--crawl-delay", "1s",
		})
		if err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"https://broker.example"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "https://broker.example" {
			t.Errorf("unexpected targets %v", cfg.Targets)
		}
		if len(cfg.Seeds) != 1 {
			t.Errorf("expected one seed, got %v", cfg.Seeds)
		}
		if cfg.MaxPages != 10 {
			t.Errorf("expected max pages 10, got %d", cfg.MaxPages)
		}
		if cfg.RespectRobots {
			t.Error("expected robots to be disabled")
		}
		if !cfg.Sitemaps {
			t.Error("expected sitemaps to stay enabled")
		}
		if cfg.SaveToDB {
			t.Error("expected SaveToDB to be false")
		}
		if !cfg.JSONReport || !cfg.RecordOnly {
			t.Error("expected JSON record-only output")
		}
		if cfg.CrawlDelay != time.Second {
			t.Errorf("expected crawl delay 1s, got %v", cfg.CrawlDelay)
		}
		if got := cfg.SiteFor("https://www.broker.example").Cookie; got != "consent=yes" {
			t.Errorf("expected site cookie from config file, got %q", got)
		}
	})

	t.Run("explicit missing config file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}

		_, err := buildConfig(cmd, []string{"https://broker.example"})
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected 'not found' error, got %v", err)
		}
	})

	t.Run("invalid config file is an error", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(configPath, []byte("sites: [unclosed"), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", configPath}); err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}
		if _, err := buildConfig(cmd, nil); err == nil {
			t.Error("expected error for invalid config file")
		}
	})
}

func TestRunCrawlCmdValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no target", args: []string{"--no-save"}, want: "no target"},
		{name: "conflicting formats", args: []string{"--json", "--markdown", "https://broker.example"}, want: "conflicting report formats"},
		{name: "tor and proxy", args: []string{"--tor", "--proxy", "127.0.0.1:9050", "https://broker.example"}, want: "conflicting egress"},
		{name: "broker with many targets", args: []string{"-b", "admirals", "a.example", "b.example"}, want: "configuration error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configPath := filepath.Join(t.TempDir(), "empty.yaml")
			if err := os.WriteFile(configPath, []byte("sites: {}\n"), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cmd := NewCrawlCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			args := append([]string{"-c", configPath}, tt.args...)
			cmd.SetArgs(args)

			err := cmd.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*config.Config)
		check func(report.Writer) bool
	}{
		{
			name:  "simple by default",
			setup: func(*config.Config) {},
			check: func(w report.Writer) bool { _, ok := w.(*report.SimpleWriter); return ok },
		},
		{
			name:  "full json",
			setup: func(c *config.Config) { c.JSONReport = true },
			check: func(w report.Writer) bool { _, ok := w.(*report.FullJSONWriter); return ok },
		},
		{
			name:  "record only json",
			setup: func(c *config.Config) { c.JSONReport = true; c.RecordOnly = true },
			check: func(w report.Writer) bool { _, ok := w.(*report.JSONWriter); return ok },
		},
		{
			name:  "markdown",
			setup: func(c *config.Config) { c.MarkdownReport = true },
			check: func(w report.Writer) bool { _, ok := w.(*report.MarkdownWriter); return ok },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			tt.setup(cfg)
			w := newReportWriter(cfg, &bytes.Buffer{})
			if !tt.check(w) {
				t.Errorf("unexpected writer type %T", w)
			}
		})
	}
}

func testReport(homepage string) *model.SafetyReport {
	return &model.SafetyReport{
		ID:          "report-1",
		Homepage:    homepage,
		Extractor:   "heuristic",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Record: &model.NormalizedSafetyRecord{
			Description: "Regulated by FCA.",
			IsRegulated: "FCA",
			TermsURL:    homepage + "/terms",
		},
	}
}

func TestOutputReports(t *testing.T) {
	t.Parallel()

	t.Run("writes to file and skips nil reports", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.RecordOnly = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "out", "report.json")

		var stdout bytes.Buffer
		reports := []*model.SafetyReport{testReport("https://broker.example"), nil}
		if err := outputReports(cfg, &stdout, reports); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", stdout.String())
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var record model.NormalizedSafetyRecord
		if err := json.Unmarshal(data, &record); err != nil {
			t.Fatalf("expected a single JSON record, got %v: %s", err, data)
		}
		if record.IsRegulated != "FCA" {
			t.Errorf("expected FCA, got %q", record.IsRegulated)
		}
	})

	t.Run("full json carries version", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true

		var stdout bytes.Buffer
		if err := outputReports(cfg, &stdout, []*model.SafetyReport{testReport("https://broker.example")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var full report.JSONReport
		if err := json.Unmarshal(stdout.Bytes(), &full); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if full.Version == "" {
			t.Error("expected version in full report")
		}
		if full.Report == nil || full.Report.Homepage != "https://broker.example" {
			t.Errorf("unexpected report %+v", full.Report)
		}
	})
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("extracts site and saves report", func(t *testing.T) {
		t.Parallel()

		server := brokerSite(t)
		cfg := testCrawlConfig(t, server.URL)
		cfg.SaveToDB = true
		cfg.JSONReport = true
		cfg.RecordOnly = true

		var stdout, stderr bytes.Buffer
		if err := runCrawl(context.Background(), cfg, &stdout, &stderr, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var record model.NormalizedSafetyRecord
		if err := json.Unmarshal(stdout.Bytes(), &record); err != nil {
			t.Fatalf("invalid JSON on stdout: %v: %s", err, stdout.String())
		}
		if !strings.Contains(record.IsRegulated, "FCA") {
			t.Errorf("expected FCA, got %q", record.IsRegulated)
		}
		if record.TermsURL != server.URL+"/legal/terms" {
			t.Errorf("expected terms link, got %q", record.TermsURL)
		}
		if !strings.Contains(stderr.String(), "Extracting 1 broker(s)") {
			t.Errorf("expected progress on stderr, got %q", stderr.String())
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		saved, err := db.GetLatestReport(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("expected saved report: %v", err)
		}
		if !strings.Contains(saved.Record.IsRegulated, "FCA") {
			t.Errorf("expected FCA in saved report, got %q", saved.Record.IsRegulated)
		}
	})

	t.Run("no-save leaves no database", func(t *testing.T) {
		t.Parallel()

		server := brokerSite(t)
		cfg := testCrawlConfig(t, server.URL)

		var stdout bytes.Buffer
		if err := runCrawl(context.Background(), cfg, &stdout, io.Discard, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), "FCA") {
			t.Errorf("expected FCA in text report, got %q", stdout.String())
		}

		entries, err := os.ReadDir(cfg.DBDir)
		if err != nil {
			t.Fatalf("failed to read db dir: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty db dir, got %d entries", len(entries))
		}
	})

	t.Run("reports keep request order", func(t *testing.T) {
		t.Parallel()

		first := brokerSite(t)
		second := brokerSite(t)
		cfg := testCrawlConfig(t, first.URL, second.URL)
		cfg.JSONReport = true
		cfg.BatchSize = 2

		var stdout bytes.Buffer
		if err := runCrawl(context.Background(), cfg, &stdout, io.Discard, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		decoder := json.NewDecoder(&stdout)
		var homepages []string
		for decoder.More() {
			var full report.JSONReport
			if err := decoder.Decode(&full); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			homepages = append(homepages, full.Report.Homepage)
		}
		if len(homepages) != 2 || homepages[0] != first.URL || homepages[1] != second.URL {
			t.Errorf("expected [%s %s], got %v", first.URL, second.URL, homepages)
		}
	})
}

func TestRunnerClientSiteHeaders(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		cookies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(server.Close)

	cfg := testCrawlConfig(t, server.URL)
	cfg.SiteConfigs.Sites[config.HostKey(server.URL)] = config.SiteConfig{Cookie: "consent=accepted"}
	r := newRunner(cfg, nil, nil, discardLogger())

	if _, err := r.client(cfg.SiteFor(server.URL)).Get(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.client(config.SiteConfig{}).Get(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(cookies))
	}
	if cookies[0] != "consent=accepted" {
		t.Errorf("expected site cookie, got %q", cookies[0])
	}
	if cookies[1] != "" {
		t.Errorf("expected no cookie for other sites, got %q", cookies[1])
	}
}

func TestSaveReportNilDB(t *testing.T) {
	t.Parallel()

	if err := saveReport(context.Background(), nil, testReport("https://broker.example"), discardLogger()); err != nil {
		t.Errorf("expected nil error for nil database, got %v", err)
	}
}

func TestSetupEgressDirect(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	transport, shutdown, err := setupEgress(context.Background(), cfg, io.Discard, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown()
	if transport != nil {
		t.Errorf("expected direct connections, got %T", transport)
	}
}
