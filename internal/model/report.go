package model

import (
	"time"

	"github.com/google/uuid"
)

// SafetyReport wraps a record with run metadata. Report writers and the
// history database work on this type; downstream mapping only ever reads
// Record.
type SafetyReport struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Homepage is the normalized homepage, or the first seed's origin.
	Homepage string `json:"homepage"`

	// BrokerID is set when the request or registry named a broker.
	BrokerID string `json:"broker_id,omitempty"`

	// Extractor names the strategy that produced the record.
	Extractor string `json:"extractor"`

	GeneratedAt time.Time     `json:"generated_at"`
	Duration    time.Duration `json:"duration"`

	// PagesFetched counts parsed pages.
	PagesFetched int `json:"pages_fetched"`

	// TimedOut is true if the run was cut short by its deadline.
	TimedOut bool `json:"timed_out"`

	// Errors holds non-fatal error messages collected during the run.
	Errors []string `json:"errors,omitempty"`

	Record *NormalizedSafetyRecord `json:"record"`
}

// NewSafetyReport returns a report for homepage with a fresh ID and an empty,
// non-nil record.
func NewSafetyReport(homepage, extractor string) *SafetyReport {
	return &SafetyReport{
		ID:          uuid.NewString(),
		Homepage:    homepage,
		Extractor:   extractor,
		GeneratedAt: time.Now(),
		Record:      NewNormalizedSafetyRecord(),
	}
}

// Regulators returns the distinct regulator abbreviations of the record.
func (r *SafetyReport) Regulators() []string {
	if r.Record == nil {
		return nil
	}
	return r.Record.Regulators()
}
