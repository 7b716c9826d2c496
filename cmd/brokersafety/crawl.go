package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/brokersafety/internal/config"
	"github.com/nao1215/brokersafety/internal/database"
	"github.com/nao1215/brokersafety/internal/fetch"
	brlog "github.com/nao1215/brokersafety/internal/log"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/pipeline"
	"github.com/nao1215/brokersafety/internal/report"
	"github.com/nao1215/brokersafety/internal/safety"
	"github.com/nao1215/brokersafety/internal/tor"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [homepage...]",
		Short: "Extract regulatory safety facts from broker websites",
		Long: `Crawl extracts regulatory safety facts from one or more broker homepages.

For every homepage it reports:
- The regulators licensing the broker and their tier
- The legal entities behind the brand, with investor protection
- Links to terms, risk disclosure, client agreement and account opening

Known brokers (see 'brokersafety regulators --brokers') are answered from
curated fact sheets. Any other homepage is crawled within the page budget.

Examples:
  # Extract one broker
  brokersafety crawl https://broker.example

  # Several brokers, four at a time, as JSON
  brokersafety crawl --json --batch 4 broker-a.example broker-b.example

  # Add seed pages the crawler would not guess
  brokersafety crawl --seed https://broker.example/legal/licences broker.example

  # Only the normalized record, for downstream import
  brokersafety crawl --json --record-only broker.example

  # Route through an existing SOCKS5 proxy, or an embedded Tor daemon
  brokersafety crawl --proxy 127.0.0.1:9050 broker.example
  brokersafety crawl --tor broker.example`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Target flags
	cmd.Flags().StringSliceP("seed", "s", nil,
		"Extra starting URL (repeatable); seeds alone are enough without a homepage")
	cmd.Flags().StringP("broker", "b", "",
		"Use the fact sheet of this broker id for a single homepage")

	// Crawl budget flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch per broker")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the seed layer")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().DurationP("deadline", "D", config.DefaultDeadline,
		"Overall time limit per broker (0 disables it)")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Concurrent fetches within one crawl")
	cmd.Flags().Int("batch", config.DefaultBatchSize,
		"Number of brokers extracted concurrently")

	// Politeness and fetch flags
	cmd.Flags().Duration("crawl-delay", config.DefaultCrawlDelay,
		"Minimum delay between requests to the same host")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header for HTTP requests")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().Bool("no-robots", false,
		"Do not filter generated candidates through robots.txt")
	cmd.Flags().Bool("no-sitemaps", false,
		"Do not read sitemaps")
	cmd.Flags().Int("pdf-text", config.DefaultDocumentText,
		"Number of PDF documents whose text is searched for regulators")
	cmd.Flags().Bool("validate-links", false,
		"Check fact sheet links over the network and report unreachable ones")

	// Egress flags
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// History flags
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"Serve fetches younger than this from the history database (0 disables)")
	cmd.Flags().Bool("no-save", false,
		"Do not store reports in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .brokersafety.yaml in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().Bool("record-only", false,
		"Output only the normalized record without run metadata")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("debug", false,
		"Include diagnostics (tried paths, sources, errors) in the report")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := brlog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the config file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Seeds, err = flags.GetStringSlice("seed"); err != nil {
		return nil, err
	}
	if cfg.BrokerID, err = flags.GetString("broker"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Deadline, err = flags.GetDuration("deadline"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("crawl-delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	noRobots, err := flags.GetBool("no-robots")
	if err != nil {
		return nil, err
	}
	cfg.RespectRobots = !noRobots
	noSitemaps, err := flags.GetBool("no-sitemaps")
	if err != nil {
		return nil, err
	}
	cfg.Sitemaps = !noSitemaps
	if cfg.DocumentText, err = flags.GetInt("pdf-text"); err != nil {
		return nil, err
	}
	if cfg.ValidateLinks, err = flags.GetBool("validate-links"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = flags.GetDuration("cache-ttl"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.RecordOnly, err = flags.GetBool("record-only"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Debug, err = flags.GetBool("debug"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// A missing file is only an error when the user named it.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	cfg.Targets = args
	return cfg, nil
}

// runCrawl extracts every configured broker and writes the reports in
// request order.
func runCrawl(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"targets", cfg.Targets,
		"seeds", cfg.Seeds,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.HistoryDB
	if cfg.SaveToDB || cfg.CacheTTL > 0 {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	transport, shutdown, err := setupEgress(ctx, cfg, stderr, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	var cache fetch.Cache
	if db != nil && cfg.CacheTTL > 0 {
		fc := db.FetchCache(cfg.CacheTTL)
		if n, err := fc.Prune(ctx); err != nil {
			logger.Warn("failed to prune fetch cache", "error", err)
		} else if n > 0 {
			logger.Info("pruned fetch cache", "entries", n)
		}
		cache = fc
	}

	r := newRunner(cfg, transport, cache, logger)
	requests := cfg.Requests()

	fmt.Fprintf(stderr, "Extracting %d broker(s) (concurrency: %d)...\n", len(requests), cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(r.extract,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)
	reports, batchErr := bp.ProcessBatch(ctx, requests)

	fmt.Fprintf(stderr, "Extraction completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	if err := outputReports(cfg, stdout, reports); err != nil {
		return err
	}

	if db != nil && cfg.SaveToDB {
		for _, rep := range reports {
			if err := saveReport(ctx, db, rep, logger); err != nil {
				logger.Error("failed to save report", "homepage", rep.Homepage, "error", err)
			}
		}
	}

	if batchErr != nil && !errors.Is(batchErr, context.Canceled) {
		return batchErr
	}
	return nil
}

// setupEgress returns the transport every fetch uses and a shutdown func.
// A nil transport means direct connections.
func setupEgress(ctx context.Context, cfg *config.Config, stderr io.Writer, logger *slog.Logger) (http.RoundTripper, func(), error) {
	noop := func() {}

	switch {
	case cfg.ProxyAddress != "":
		p, err := tor.NewProxy(cfg.ProxyAddress)
		if err != nil {
			return nil, noop, err
		}
		if status := p.Check(ctx); status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s): %w",
				status, cfg.ProxyAddress, status.Error())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return p.Transport(), noop, nil

	case cfg.UseTor:
		return startEmbeddedTor(ctx, cfg, stderr, logger)

	default:
		return nil, noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon through tornago and
// returns a transport bound to its SOCKS port.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, stderr io.Writer, logger *slog.Logger) (http.RoundTripper, func(), error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, func() {}, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stopTor := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)

	p, err := embeddedTor.Proxy()
	if err != nil {
		stopTor()
		return nil, func() {}, fmt.Errorf("failed to create Tor proxy: %w", err)
	}
	if status := p.Check(ctx); status != tor.ProxyStatusOK {
		stopTor()
		return nil, func() {}, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
	}
	return p.Transport(), stopTor, nil
}

// runner builds a per-request extractor stack. Every request gets its own
// fetch client so that per-site cookies and headers never leak between
// brokers; the transport and the cache are shared.
type runner struct {
	cfg       *config.Config
	transport http.RoundTripper
	cache     fetch.Cache
	logger    *slog.Logger
}

func newRunner(cfg *config.Config, transport http.RoundTripper, cache fetch.Cache, logger *slog.Logger) *runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &runner{cfg: cfg, transport: transport, cache: cache, logger: logger}
}

// client returns a fetch client carrying the site's cookie and headers.
func (r *runner) client(site config.SiteConfig) *fetch.Client {
	opts := []fetch.Option{
		fetch.WithTimeout(r.cfg.Timeout),
		fetch.WithUserAgent(r.cfg.UserAgent),
		fetch.WithMaxBodySize(r.cfg.MaxBodySize),
		fetch.WithRateLimit(r.cfg.CrawlDelay),
		fetch.WithLogger(r.logger),
	}
	if r.cfg.AcceptLanguage != "" {
		opts = append(opts, fetch.WithAcceptLanguage(r.cfg.AcceptLanguage))
	}
	if r.transport != nil {
		opts = append(opts, fetch.WithTransport(r.transport))
	}
	if r.cache != nil {
		opts = append(opts, fetch.WithCache(r.cache))
	}
	if site.Cookie != "" {
		opts = append(opts, fetch.WithCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		opts = append(opts, fetch.WithHeaders(site.Headers))
	}
	return fetch.New(opts...)
}

// registry assembles the heuristic fallback and the fact sheets over client.
func (r *runner) registry(client *fetch.Client, site config.SiteConfig) (*safety.Registry, error) {
	heuristic := safety.NewHeuristicCrawlExtractor(client,
		safety.WithHeuristicLogger(r.logger),
		safety.WithPipelineConfig(
			pipeline.WithPipelineWorkers(r.cfg.Workers),
			pipeline.WithPipelineRobots(r.cfg.RespectRobots),
			pipeline.WithPipelineSitemaps(r.cfg.Sitemaps),
			pipeline.WithPipelineDocumentText(r.cfg.DocumentText),
			pipeline.WithPipelineIgnorePatterns(site.IgnorePatterns),
			pipeline.WithPipelineFollowPatterns(site.FollowPatterns),
		),
	)

	fixed, err := safety.LoadFixedFactExtractors(
		safety.WithFactFetcher(client),
		safety.WithLinkValidation(r.cfg.ValidateLinks),
		safety.WithLinkDiscovery(heuristic),
		safety.WithFactLogger(r.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load fact sheets: %w", err)
	}

	return safety.NewRegistry(heuristic,
		safety.WithFixedFacts(fixed...),
		safety.WithRegistryLogger(r.logger),
	), nil
}

// extract runs one request. It matches pipeline.RunFunc.
func (r *runner) extract(ctx context.Context, req model.CrawlRequest) (*model.SafetyReport, error) {
	site := r.cfg.SiteFor(req.Homepage)
	reg, err := r.registry(r.client(site), site)
	if err != nil {
		return nil, err
	}
	return reg.Extract(ctx, req)
}

// outputReports writes reports in the configured format to the report
// file, or to stdout when none is set.
func outputReports(cfg *config.Config, stdout io.Writer, reports []*model.SafetyReport) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	w := newReportWriter(cfg, output)
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		var err error
		if cfg.RecordOnly {
			_, err = w.WriteRecord(rep.Record)
		} else {
			_, err = w.Write(rep)
		}
		if err != nil {
			return fmt.Errorf("failed to write report for %s: %w", rep.Homepage, err)
		}
	}
	return nil
}

func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport && cfg.RecordOnly:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Debug))
	}
}

// saveReport stores the report in the history database. A nil db is a no-op.
func saveReport(ctx context.Context, db *database.HistoryDB, rep *model.SafetyReport, logger *slog.Logger) error {
	if db == nil || rep == nil {
		return nil
	}
	// The run context may already be cancelled; a partial report is still
	// worth keeping.
	if err := db.SaveReport(context.WithoutCancel(ctx), rep); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	logger.Info("report saved to database", "homepage", rep.Homepage, "id", rep.ID)
	return nil
}
