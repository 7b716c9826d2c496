// Package normalize assembles detection, link classification and crawl
// metadata into the NormalizedSafetyRecord handed to downstream mapping.
//
// Normalize never returns nil. A scan that fetched nothing still yields a
// record with empty entity and link fields and hints explaining what to try.
package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/brokersafety/internal/model"
)

// Record texts.
const (
	DescriptionUnresolved = "Regulatory information detected on legal/compliance pages could not be conclusively resolved."
	DescriptionNBP        = "Retail negative balance protection mentioned."
	DescriptionDocuments  = "Key legal documents (Terms, Risk, Agreements) surfaced."
	DescriptionNoHomepage = "No homepage provided, cannot crawl legal/regulatory pages."

	HighlightNBP       = "Negative balance protection for retail clients."
	HighlightDocuments = "Public Terms/Risk/Agreement documents available."

	CaveatNoRegulator     = "No clear regulator mentions found on crawled pages; regulatory status could not be conclusively resolved."
	CaveatCompensation    = "Investor compensation amount not explicitly found."
	CaveatTimedOut        = "Crawl deadline reached before all candidate pages were fetched."
	CaveatMissingHomepage = "Homepage URL is missing."

	HintNoPages     = "Check robots, WAF/CDN, or provide a specific legal/regulation URL."
	HintTimedOut    = "Raise the deadline or page budget, or provide a specific legal/regulation URL."
	HintNoHomepage  = "Provide homepage (e.g. https://example.com)."
	HintNoRegulator = "Pass the broker's regulation or legal page as a seed."

	// HintDebugFormat summarizes the crawl in debug mode.
	HintDebugFormat = "Crawl: %d pages kept, %d of %d candidates tried, %d fetch failures, %d documents."
)

// compensationRegulators are the regulators whose clients are covered by a
// statutory scheme the record should quantify.
var compensationRegulators = map[string]bool{"FCA": true, "CySEC": true}

// Normalizer builds records from scans.
type Normalizer struct {
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the record of scan. A nil scan or a scan without
// detection yields the unresolved record.
func (n *Normalizer) Normalize(scan *model.SafetyScan) *model.NormalizedSafetyRecord {
	rec := model.NewNormalizedSafetyRecord()
	if scan == nil {
		rec.Description = DescriptionUnresolved
		rec.AddCaveat(CaveatNoRegulator)
		rec.AddHint(HintNoPages)
		return rec
	}

	det := scan.Detection
	if det == nil {
		det = &model.Detection{}
	}

	rec.Entities = append(rec.Entities, det.Entities...)
	rec.TermsURL = scan.Links.Terms
	rec.RiskDisclosureURL = scan.Links.Risk
	rec.ClientAgreementURL = scan.Links.ClientAgreement
	rec.OpenAccountURL = scan.Links.OpenAccount
	rec.PrivacyURL = scan.Links.Privacy
	rec.TriedPaths = append(rec.TriedPaths, scan.TriedPaths...)
	rec.Sources = append(rec.Sources, scan.Sources...)

	abbrs := det.Abbreviations()
	rec.IsRegulated = strings.Join(abbrs, ", ")

	var desc []string
	if len(abbrs) > 0 {
		desc = append(desc, "Detected regulators: "+rec.IsRegulated+".")
	} else {
		desc = append(desc, DescriptionUnresolved)
	}
	if det.NegativeBalanceProtection != "" {
		desc = append(desc, DescriptionNBP)
		rec.Highlights = append(rec.Highlights, HighlightNBP)
	}
	if rec.HasDocuments() {
		desc = append(desc, DescriptionDocuments)
		rec.Highlights = append(rec.Highlights, HighlightDocuments)
	}
	rec.Description = strings.Join(desc, " ")

	if len(abbrs) == 0 {
		rec.AddCaveat(CaveatNoRegulator)
	}
	if !det.CompensationExplicit && anyOf(abbrs, compensationRegulators) {
		rec.AddCaveat(CaveatCompensation)
	}
	if scan.TimedOut {
		rec.AddCaveat(CaveatTimedOut)
		rec.AddHint(HintTimedOut)
	}

	switch {
	case len(scan.Pages) == 0:
		rec.AddHint(HintNoPages)
	case len(abbrs) == 0 && len(scan.Request.Seeds) == 0:
		rec.AddHint(HintNoRegulator)
	}

	if scan.Request.Debug {
		rec.AddHint(fmt.Sprintf(HintDebugFormat,
			len(scan.Pages), len(scan.TriedPaths), len(scan.Candidates), scan.FetchFailures, len(scan.Documents)))
	}

	n.logger.Debug("record normalized",
		"regulators", rec.IsRegulated,
		"entities", len(rec.Entities),
		"pages", len(scan.Pages),
		"hints", len(rec.Hints))
	return rec
}

// ForMissingHomepage returns the record for a request that names neither a
// homepage nor a seed.
func ForMissingHomepage() *model.NormalizedSafetyRecord {
	rec := model.NewNormalizedSafetyRecord()
	rec.Description = DescriptionNoHomepage
	rec.AddCaveat(CaveatMissingHomepage)
	rec.AddHint(HintNoHomepage)
	return rec
}

func anyOf(list []string, set map[string]bool) bool {
	for _, s := range list {
		if set[s] {
			return true
		}
	}
	return false
}
