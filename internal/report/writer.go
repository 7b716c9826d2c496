package report

import (
	"io"

	"github.com/nao1215/brokersafety/internal/model"
)

// Writer defines the interface for report output.
// Implementations write safety reports in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.SafetyReport) (int, error)

	// WriteRecord outputs only the normalized record, without run metadata.
	WriteRecord(record *model.NormalizedSafetyRecord) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.SafetyReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteRecord outputs the record to all configured Writers.
func (m *MultiWriter) WriteRecord(record *model.NormalizedSafetyRecord) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteRecord(record)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// recordOf returns the record of report, never nil.
func recordOf(report *model.SafetyReport) *model.NormalizedSafetyRecord {
	if report == nil || report.Record == nil {
		return model.NewNormalizedSafetyRecord()
	}
	return report.Record
}

// statusText summarizes how the run ended.
func statusText(report *model.SafetyReport) string {
	switch {
	case report.TimedOut:
		return "Timed Out (partial results)"
	case len(report.Errors) > 0:
		return "Complete with errors"
	default:
		return "Complete"
	}
}

// documentRows returns the filled document slots as label/URL pairs.
func documentRows(rec *model.NormalizedSafetyRecord) [][]string {
	slots := []struct {
		label string
		url   string
	}{
		{"Terms", rec.TermsURL},
		{"Risk Disclosure", rec.RiskDisclosureURL},
		{"Client Agreement", rec.ClientAgreementURL},
		{"Open Account", rec.OpenAccountURL},
		{"Privacy", rec.PrivacyURL},
	}
	var rows [][]string
	for _, s := range slots {
		if s.url != "" {
			rows = append(rows, []string{s.label, s.url})
		}
	}
	return rows
}

// orDash returns s, or "-" when s is empty.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
