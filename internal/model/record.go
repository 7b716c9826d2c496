package model

import "github.com/nao1215/brokersafety/internal/regulator"

// DetectedEntity is a legal entity associated with a regulator.
// EntityName is empty when no name could be proximity-paired with the regulator.
type DetectedEntity struct {
	EntityName                string         `json:"entity_name"`
	RegulatorAbbr             string         `json:"regulator_abbr"`
	Regulator                 string         `json:"regulator,omitempty"`
	Tier                      regulator.Tier `json:"tier,omitempty"`
	Jurisdiction              string         `json:"jurisdiction,omitempty"`
	InvestorProtection        string         `json:"investor_protection,omitempty"`
	NegativeBalanceProtection string         `json:"negative_balance_protection,omitempty"`
	SourceURLs                []string       `json:"source_urls,omitempty"`

	// Clients describes which clients the entity serves, e.g. "UK" or "EU/EEA".
	// Only fixed-fact records set it.
	Clients string `json:"clients,omitempty"`

	// ServiceScope is the geographic scope of the license.
	ServiceScope string `json:"service_scope,omitempty"`

	// RegionTokens are the jurisdiction tokens of the regulator.
	RegionTokens []string `json:"region_tokens,omitempty"`

	// ServiceURL points at the entity specific landing page.
	ServiceURL string `json:"service_url,omitempty"`

	// ServeCountries and ExcludeCountries are ISO country codes.
	ServeCountries   []string `json:"serve_countries,omitempty"`
	ExcludeCountries []string `json:"exclude_countries,omitempty"`

	// Documents are entity specific document links, when the broker
	// publishes them per entity.
	Documents *DocumentLinks `json:"documents,omitempty"`
}

// Key returns the deduplication key of the entity.
func (e DetectedEntity) Key() string {
	return e.EntityName + "\x00" + e.RegulatorAbbr
}

// Warning is a public notice about the broker, such as a clone-firm alert.
type Warning struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NormalizedSafetyRecord is the terminal artifact of an extraction. It is
// always produced, even when nothing could be fetched.
type NormalizedSafetyRecord struct {
	Description        string           `json:"description"`
	IsRegulated        string           `json:"is_regulated"`
	Highlights         []string         `json:"safety_highlights"`
	Caveats            []string         `json:"safety_caveats"`
	Entities           []DetectedEntity `json:"legal_entities"`
	TermsURL           string           `json:"terms_url"`
	RiskDisclosureURL  string           `json:"risk_disclosure_url"`
	ClientAgreementURL string           `json:"client_agreement_url"`
	OpenAccountURL     string           `json:"open_account_url"`
	PrivacyURL         string           `json:"privacy_url,omitempty"`
	Warnings           []Warning        `json:"warnings,omitempty"`
	TriedPaths         []string         `json:"tried_paths"`
	Sources            []string         `json:"sources"`
	Hints              []string         `json:"hints"`
}

// NewNormalizedSafetyRecord returns a record with all slices non-nil so the
// JSON form always carries arrays.
func NewNormalizedSafetyRecord() *NormalizedSafetyRecord {
	return &NormalizedSafetyRecord{
		Highlights: []string{},
		Caveats:    []string{},
		Entities:   []DetectedEntity{},
		TriedPaths: []string{},
		Sources:    []string{},
		Hints:      []string{},
	}
}

// Regulators returns the distinct regulator abbreviations in entity order.
func (r *NormalizedSafetyRecord) Regulators() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.Entities {
		if e.RegulatorAbbr == "" || seen[e.RegulatorAbbr] {
			continue
		}
		seen[e.RegulatorAbbr] = true
		out = append(out, e.RegulatorAbbr)
	}
	return out
}

// HasDocuments reports whether any document link slot is filled.
func (r *NormalizedSafetyRecord) HasDocuments() bool {
	return r.TermsURL != "" || r.RiskDisclosureURL != "" || r.ClientAgreementURL != ""
}

// AddHint appends a hint unless it is already present.
func (r *NormalizedSafetyRecord) AddHint(hint string) {
	r.Hints = appendUnique(r.Hints, hint)
}

// AddCaveat appends a caveat unless it is already present.
func (r *NormalizedSafetyRecord) AddCaveat(caveat string) {
	r.Caveats = appendUnique(r.Caveats, caveat)
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
