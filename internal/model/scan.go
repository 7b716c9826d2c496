package model

import (
	"sync"
	"time"

	"github.com/nao1215/brokersafety/internal/regulator"
)

// Detection is the Detector output for one aggregate corpus.
type Detection struct {
	// Regulators are the matched catalog records, in catalog order.
	Regulators []regulator.Record `json:"regulators"`

	// Entities are deduplicated by (name, regulator).
	Entities []DetectedEntity `json:"entities"`

	// NegativeBalanceProtection is "" when no NBP phrase was found.
	NegativeBalanceProtection string `json:"negative_balance_protection,omitempty"`

	// InvestorProtection describes compensation schemes, "" when none.
	InvestorProtection string `json:"investor_protection,omitempty"`

	// CompensationExplicit is true when an amount was read from the corpus
	// rather than filled from a scheme default.
	CompensationExplicit bool `json:"compensation_explicit"`
}

// Abbreviations returns the detected regulator abbreviations.
func (d *Detection) Abbreviations() []string {
	out := make([]string, 0, len(d.Regulators))
	for _, r := range d.Regulators {
		out = append(out, r.Abbreviation)
	}
	return out
}

// DocumentLinks holds the classified document slots.
type DocumentLinks struct {
	Terms           string `json:"terms,omitempty"`
	Risk            string `json:"risk,omitempty"`
	ClientAgreement string `json:"client_agreement,omitempty"`
	OpenAccount     string `json:"open_account,omitempty"`
	Privacy         string `json:"privacy,omitempty"`
}

// SafetyScan is the working state of one extraction. Pipeline steps read and
// extend it in order. It is never shared between invocations.
type SafetyScan struct {
	Request CrawlRequest

	// Origin is the resolved scheme://host used for same-site admission.
	Origin string

	Candidates []CandidateURL
	Pages      []*FetchedPage
	TriedPaths []string
	Sources    []string

	// Documents are document links that were recorded but not parsed.
	Documents []string

	// Anchors is the anchor set of all pages in traversal order.
	Anchors []Anchor

	Detection *Detection
	Links     DocumentLinks
	Record    *NormalizedSafetyRecord

	// FetchFailures counts failed fetches.
	FetchFailures int

	// TimedOut is true when the deadline or cancellation cut the run short.
	TimedOut bool

	StartedAt      time.Time
	PerformedSteps []string

	mu     sync.Mutex
	errors []error
}

// NewSafetyScan creates the working state for req.
func NewSafetyScan(req CrawlRequest) *SafetyScan {
	return &SafetyScan{
		Request:   req,
		StartedAt: time.Now(),
	}
}

// AddError records a non-fatal error. It is safe for concurrent use.
func (s *SafetyScan) AddError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

// Errors returns a copy of the recorded errors.
func (s *SafetyScan) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}

// Corpus returns the text of all pages in traversal order.
func (s *SafetyScan) Corpus() []string {
	out := make([]string, 0, len(s.Pages))
	for _, p := range s.Pages {
		if c := p.Corpus(); c != "" {
			out = append(out, c)
		}
	}
	return out
}
