package safety

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/brokersafety/internal/crawler"
	"github.com/nao1215/brokersafety/internal/fetch"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/regulator"
)

//go:embed facts/*.yaml
var factFiles embed.FS

// FixedNamePrefix prefixes the name of every fixed-fact extractor.
const FixedNamePrefix = "fixed:"

// defaultValidationWorkers bounds concurrent link checks.
const defaultValidationWorkers = 4

// factSheet is the YAML form of a broker's curated facts.
type factSheet struct {
	BrokerID      string        `yaml:"broker_id"`
	Name          string        `yaml:"name"`
	Base          string        `yaml:"base"`
	Hosts         []string      `yaml:"hosts"`
	Description   string        `yaml:"description"`
	IsRegulated   string        `yaml:"is_regulated"`
	Highlights    []string      `yaml:"highlights"`
	Caveats       []string      `yaml:"caveats"`
	Restrictions  []restriction `yaml:"restrictions"`
	DiscoverLinks bool          `yaml:"discover_links"`
	Entities      []factEntity  `yaml:"entities"`
	Warnings      []factWarning `yaml:"warnings"`
}

// restriction excludes Country from the entities of Regulators when the
// footer of Probe names FooterPhrase, or when Probe cannot be fetched.
type restriction struct {
	Country      string   `yaml:"country"`
	Probe        string   `yaml:"probe"`
	FooterPhrase string   `yaml:"footer_phrase"`
	Regulators   []string `yaml:"regulators"`
}

type factEntity struct {
	Name       string         `yaml:"name"`
	Clients    string         `yaml:"clients"`
	Regulator  string         `yaml:"regulator"`
	Tier       regulator.Tier `yaml:"tier"`
	Protection string         `yaml:"protection"`
	NBP        string         `yaml:"nbp"`
	Scope      string         `yaml:"scope"`
	Serve      []string       `yaml:"serve"`
	Regions    []string       `yaml:"regions"`
	ServiceURL string         `yaml:"service_url"`
	Documents  *factDocuments `yaml:"documents"`
}

type factDocuments struct {
	Terms           string `yaml:"terms"`
	Risk            string `yaml:"risk"`
	ClientAgreement string `yaml:"client_agreement"`
	OpenAccount     string `yaml:"open_account"`
}

type factWarning struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

func (s *factSheet) validate() error {
	if s.BrokerID == "" {
		return fmt.Errorf("%w: broker_id is empty", ErrInvalidFactSheet)
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("%w: %s has no entities", ErrInvalidFactSheet, s.BrokerID)
	}
	for _, e := range s.Entities {
		if e.Name == "" || e.Regulator == "" {
			return fmt.Errorf("%w: %s has an entity without name or regulator", ErrInvalidFactSheet, s.BrokerID)
		}
		if e.Tier != "" && !e.Tier.Valid() {
			return fmt.Errorf("%w: %s: %s has tier %q", ErrInvalidFactSheet, s.BrokerID, e.Name, e.Tier)
		}
	}
	return nil
}

var (
	sheetsOnce sync.Once
	sheets     map[string]*factSheet
	sheetsErr  error
)

// loadFactSheets parses the embedded fact sheets once.
func loadFactSheets() (map[string]*factSheet, error) {
	sheetsOnce.Do(func() {
		sheets, sheetsErr = parseFactSheets(factFiles)
	})
	return sheets, sheetsErr
}

func parseFactSheets(fsys fs.FS) (map[string]*factSheet, error) {
	files, err := fs.Glob(fsys, "facts/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to list fact sheets: %w", err)
	}
	out := make(map[string]*factSheet, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read fact sheet %s: %w", name, err)
		}
		var sheet factSheet
		if err := yaml.Unmarshal(data, &sheet); err != nil {
			return nil, fmt.Errorf("failed to parse fact sheet %s: %w", path.Base(name), err)
		}
		if err := sheet.validate(); err != nil {
			return nil, err
		}
		out[strings.ToLower(sheet.BrokerID)] = &sheet
	}
	return out, nil
}

// BrokerIDs returns the ids of all embedded fact sheets, sorted.
func BrokerIDs() []string {
	all, err := loadFactSheets()
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FixedFactExtractor returns curated facts for one broker.
type FixedFactExtractor struct {
	sheet    *factSheet
	catalog  *regulator.Catalog
	fetcher  crawler.Fetcher
	validate bool
	workers  int
	discover Extractor
	logger   *slog.Logger
}

// FactOption configures a FixedFactExtractor.
type FactOption func(*FixedFactExtractor)

// WithFactFetcher sets the fetcher used for restriction probes and link
// validation. Without one, restrictions are applied unconditionally and
// links are not validated.
func WithFactFetcher(f crawler.Fetcher) FactOption {
	return func(e *FixedFactExtractor) {
		e.fetcher = f
	}
}

// WithLinkValidation enables soft validation of the record's links.
func WithLinkValidation(enabled bool) FactOption {
	return func(e *FixedFactExtractor) {
		e.validate = enabled
	}
}

// WithValidationWorkers bounds concurrent link checks.
func WithValidationWorkers(n int) FactOption {
	return func(e *FixedFactExtractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLinkDiscovery sets the extractor used to fill document links the fact
// sheet leaves to discovery.
func WithLinkDiscovery(x Extractor) FactOption {
	return func(e *FixedFactExtractor) {
		e.discover = x
	}
}

// WithFactCatalog sets the catalog used to resolve regulator names.
func WithFactCatalog(c *regulator.Catalog) FactOption {
	return func(e *FixedFactExtractor) {
		e.catalog = c
	}
}

// WithFactLogger sets the logger.
func WithFactLogger(logger *slog.Logger) FactOption {
	return func(e *FixedFactExtractor) {
		e.logger = logger
	}
}

// NewFixedFactExtractor returns the extractor for brokerID. It returns
// ErrUnknownBroker when no fact sheet exists.
func NewFixedFactExtractor(brokerID string, opts ...FactOption) (*FixedFactExtractor, error) {
	all, err := loadFactSheets()
	if err != nil {
		return nil, err
	}
	sheet, ok := all[strings.ToLower(strings.TrimSpace(brokerID))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, brokerID)
	}

	e := &FixedFactExtractor{sheet: sheet, workers: defaultValidationWorkers}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = regulator.Default()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// LoadFixedFactExtractors returns one extractor per embedded fact sheet,
// sorted by broker id, all configured with opts.
func LoadFixedFactExtractors(opts ...FactOption) ([]*FixedFactExtractor, error) {
	if _, err := loadFactSheets(); err != nil {
		return nil, err
	}
	ids := BrokerIDs()
	out := make([]*FixedFactExtractor, 0, len(ids))
	for _, id := range ids {
		e, err := NewFixedFactExtractor(id, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Name returns "fixed:<broker id>".
func (e *FixedFactExtractor) Name() string {
	return FixedNamePrefix + e.sheet.BrokerID
}

// BrokerID returns the broker id of the fact sheet.
func (e *FixedFactExtractor) BrokerID() string {
	return e.sheet.BrokerID
}

// Matches reports whether host, or a subdomain of it, belongs to the broker.
func (e *FixedFactExtractor) Matches(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return false
	}
	for _, h := range e.sheet.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Extract returns the curated record. A request without homepage uses the
// fact sheet's base URL; relative links resolve against the homepage.
func (e *FixedFactExtractor) Extract(ctx context.Context, req model.CrawlRequest) (*model.SafetyReport, error) {
	start := time.Now()
	homepage := NormalizeHomepage(req.Homepage)
	if homepage == "" {
		homepage = NormalizeHomepage(e.sheet.Base)
	}

	report := model.NewSafetyReport(homepage, e.Name())
	report.BrokerID = e.sheet.BrokerID
	rec := e.record(homepage)

	if e.sheet.DiscoverLinks && e.discover != nil {
		req.Homepage = homepage
		e.fillFromDiscovery(ctx, req, report, rec)
	}

	e.applyRestrictions(ctx, homepage, rec)

	if e.validate && e.fetcher != nil {
		for _, hint := range e.validateLinks(ctx, rec) {
			rec.AddHint(hint)
		}
	}

	report.Record = rec
	report.Duration = time.Since(start)
	e.logger.Info("fixed facts returned",
		"broker", e.sheet.BrokerID,
		"homepage", homepage,
		"entities", len(rec.Entities),
		"hints", len(rec.Hints),
	)
	return report, nil
}

// record builds the record from the fact sheet.
func (e *FixedFactExtractor) record(homepage string) *model.NormalizedSafetyRecord {
	s := e.sheet
	rec := model.NewNormalizedSafetyRecord()
	rec.Description = strings.TrimSpace(s.Description)
	rec.IsRegulated = s.IsRegulated
	rec.Highlights = append(rec.Highlights, s.Highlights...)
	rec.Caveats = append(rec.Caveats, s.Caveats...)
	for _, w := range s.Warnings {
		rec.Warnings = append(rec.Warnings, model.Warning{Title: w.Title, URL: w.URL})
	}

	for _, fe := range s.Entities {
		ent := model.DetectedEntity{
			EntityName:                fe.Name,
			RegulatorAbbr:             fe.Regulator,
			Tier:                      fe.Tier,
			InvestorProtection:        fe.Protection,
			NegativeBalanceProtection: fe.NBP,
			Clients:                   fe.Clients,
			ServiceScope:              fe.Scope,
			RegionTokens:              append([]string(nil), fe.Regions...),
			ServeCountries:            append([]string(nil), fe.Serve...),
			ServiceURL:                resolve(homepage, fe.ServiceURL),
		}
		if r, ok := e.catalog.Lookup(fe.Regulator); ok {
			ent.RegulatorAbbr = r.Abbreviation
			ent.Regulator = r.DisplayName
			ent.Jurisdiction = r.Jurisdiction()
			if ent.Tier == "" {
				ent.Tier = r.Tier
			}
			if len(ent.RegionTokens) == 0 {
				ent.RegionTokens = append([]string(nil), r.JurisdictionTokens...)
			}
		}
		if ent.ServiceURL != "" {
			ent.SourceURLs = []string{ent.ServiceURL}
			if !slices.Contains(rec.Sources, ent.ServiceURL) {
				rec.Sources = append(rec.Sources, ent.ServiceURL)
			}
		}
		if d := fe.Documents; d != nil {
			ent.Documents = &model.DocumentLinks{
				Terms:           resolve(homepage, d.Terms),
				Risk:            resolve(homepage, d.Risk),
				ClientAgreement: resolve(homepage, d.ClientAgreement),
				OpenAccount:     resolve(homepage, d.OpenAccount),
			}
			// The first entity publishing documents supplies the record slots.
			fillEmpty(&rec.TermsURL, ent.Documents.Terms)
			fillEmpty(&rec.RiskDisclosureURL, ent.Documents.Risk)
			fillEmpty(&rec.ClientAgreementURL, ent.Documents.ClientAgreement)
			fillEmpty(&rec.OpenAccountURL, ent.Documents.OpenAccount)
		}
		rec.Entities = append(rec.Entities, ent)
	}
	return rec
}

// fillFromDiscovery runs the discovery extractor and fills the record's
// empty link slots. Filled slots are never overwritten.
func (e *FixedFactExtractor) fillFromDiscovery(ctx context.Context, req model.CrawlRequest, report *model.SafetyReport, rec *model.NormalizedSafetyRecord) {
	found, err := e.discover.Extract(ctx, req)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("link discovery: %v", err))
	}
	if found == nil || found.Record == nil {
		return
	}
	d := found.Record
	fillEmpty(&rec.TermsURL, d.TermsURL)
	fillEmpty(&rec.RiskDisclosureURL, d.RiskDisclosureURL)
	fillEmpty(&rec.ClientAgreementURL, d.ClientAgreementURL)
	fillEmpty(&rec.OpenAccountURL, d.OpenAccountURL)
	fillEmpty(&rec.PrivacyURL, d.PrivacyURL)
	for _, src := range d.Sources {
		if !slices.Contains(rec.Sources, src) {
			rec.Sources = append(rec.Sources, src)
		}
	}
	rec.TriedPaths = append(rec.TriedPaths, d.TriedPaths...)
	if d.TermsURL == "" && d.RiskDisclosureURL == "" && d.ClientAgreementURL == "" {
		rec.AddHint("Document links could not be discovered; check the broker's legal pages manually.")
	}

	report.PagesFetched = found.PagesFetched
	report.TimedOut = found.TimedOut
	report.Errors = append(report.Errors, found.Errors...)
}

// applyRestrictions excludes countries from entities. The exclusion holds
// unless the probe page was fetched and its footer does not name the phrase.
func (e *FixedFactExtractor) applyRestrictions(ctx context.Context, homepage string, rec *model.NormalizedSafetyRecord) {
	for _, r := range e.sheet.Restrictions {
		exclude := true
		if e.fetcher != nil && r.Probe != "" {
			exclude = e.footerMentions(ctx, resolve(homepage, r.Probe), r.FooterPhrase)
		}
		if !exclude {
			continue
		}
		for i := range rec.Entities {
			ent := &rec.Entities[i]
			if !slices.ContainsFunc(r.Regulators, func(abbr string) bool {
				return strings.EqualFold(abbr, ent.RegulatorAbbr)
			}) {
				continue
			}
			if !slices.Contains(ent.ExcludeCountries, r.Country) {
				ent.ExcludeCountries = append(ent.ExcludeCountries, r.Country)
			}
		}
	}
}

// footerMentions fetches target and reports whether its footer names phrase.
// A failed fetch counts as a mention so the restriction stays in place.
func (e *FixedFactExtractor) footerMentions(ctx context.Context, target, phrase string) bool {
	resp, err := e.fetcher.Get(ctx, target)
	if err != nil {
		e.logger.Debug("restriction probe failed", "url", target, "error", err)
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return true
	}
	footer := doc.Find("footer")
	if footer.Length() == 0 {
		footer = doc.Find("body")
	}
	return strings.Contains(strings.ToLower(footer.Text()), strings.ToLower(phrase))
}

// validateLinks fetches every link of rec and returns one hint per link that
// could not be fetched, in link order. Links are never removed.
func (e *FixedFactExtractor) validateLinks(ctx context.Context, rec *model.NormalizedSafetyRecord) []string {
	targets := recordLinks(rec)
	failures := make([]string, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, target := range targets {
		g.Go(func() error {
			if _, err := e.fetcher.Get(gctx, target); err != nil {
				kind := "error"
				if k, ok := fetch.KindOf(err); ok {
					kind = k.String()
				}
				failures[i] = fmt.Sprintf("Link could not be verified (%s): %s", kind, target)
				e.logger.Debug("link validation failed", "url", target, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var hints []string
	for _, f := range failures {
		if f != "" {
			hints = append(hints, f)
		}
	}
	return hints
}

// recordLinks returns the distinct document and service links of rec.
func recordLinks(rec *model.NormalizedSafetyRecord) []string {
	var out []string
	add := func(u string) {
		if u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	add(rec.TermsURL)
	add(rec.RiskDisclosureURL)
	add(rec.ClientAgreementURL)
	add(rec.OpenAccountURL)
	add(rec.PrivacyURL)
	for _, ent := range rec.Entities {
		add(ent.ServiceURL)
		if d := ent.Documents; d != nil {
			add(d.Terms)
			add(d.Risk)
			add(d.ClientAgreement)
			add(d.OpenAccount)
		}
	}
	return out
}

func fillEmpty(slot *string, value string) {
	if *slot == "" {
		*slot = value
	}
}
