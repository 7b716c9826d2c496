package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/brokersafety/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether empty sections are shown.
	showEmpty bool

	// verbose adds sources, tried paths and per-entity details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format.
func (w *SimpleWriter) Write(report *model.SafetyReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeBody(&sb, recordOf(report))
	if w.verbose && len(report.Errors) > 0 {
		w.writeList(&sb, "ERRORS", report.Errors)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteRecord outputs only the record in human-readable format.
func (w *SimpleWriter) WriteRecord(record *model.NormalizedSafetyRecord) (int, error) {
	if record == nil {
		record = model.NewNormalizedSafetyRecord()
	}
	var sb strings.Builder
	w.writeBody(&sb, record)
	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SafetyReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      BROKER SAFETY REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Homepage:       %s\n", report.Homepage)
	if report.BrokerID != "" {
		fmt.Fprintf(sb, "Broker:         %s\n", report.BrokerID)
	}
	fmt.Fprintf(sb, "Extractor:      %s\n", report.Extractor)
	fmt.Fprintf(sb, "Generated:      %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Pages Fetched:  %d\n", report.PagesFetched)
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBody(sb *strings.Builder, rec *model.NormalizedSafetyRecord) {
	w.writeSection(sb, "REGULATION")
	fmt.Fprintf(sb, "  %s\n", rec.Description)
	if rec.IsRegulated != "" {
		fmt.Fprintf(sb, "  Regulated by: %s\n", rec.IsRegulated)
	}
	sb.WriteString("\n")

	w.writeEntities(sb, rec)
	w.writeDocuments(sb, rec)
	w.writeList(sb, "HIGHLIGHTS", rec.Highlights)
	w.writeList(sb, "CAVEATS", rec.Caveats)

	warnings := make([]string, len(rec.Warnings))
	for i, warn := range rec.Warnings {
		warnings[i] = warn.Title + " <" + warn.URL + ">"
	}
	w.writeList(sb, "WARNINGS", warnings)
	w.writeList(sb, "HINTS", rec.Hints)

	if w.verbose {
		w.writeList(sb, "SOURCES", rec.Sources)
		w.writeList(sb, "TRIED PATHS", rec.TriedPaths)
	}
}

// writeEntities writes one line per legal entity.
func (w *SimpleWriter) writeEntities(sb *strings.Builder, rec *model.NormalizedSafetyRecord) {
	if len(rec.Entities) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, "LEGAL ENTITIES")

	if len(rec.Entities) == 0 {
		sb.WriteString("  No legal entities detected\n\n")
		return
	}
	for _, e := range rec.Entities {
		name := e.EntityName
		if name == "" {
			name = "(unnamed entity)"
		}
		fmt.Fprintf(sb, "  [+] %s: %s", name, e.RegulatorAbbr)
		if e.Tier != "" {
			fmt.Fprintf(sb, " (%s)", e.Tier)
		}
		sb.WriteString("\n")
		if e.InvestorProtection != "" {
			fmt.Fprintf(sb, "      Protection: %s\n", e.InvestorProtection)
		}
		if w.verbose {
			if e.Jurisdiction != "" {
				fmt.Fprintf(sb, "      Jurisdiction: %s\n", e.Jurisdiction)
			}
			if e.NegativeBalanceProtection != "" {
				fmt.Fprintf(sb, "      NBP: %s\n", e.NegativeBalanceProtection)
			}
			if len(e.ExcludeCountries) > 0 {
				fmt.Fprintf(sb, "      Excluded: %s\n", strings.Join(e.ExcludeCountries, ", "))
			}
		}
	}
	sb.WriteString("\n")
}

// writeDocuments writes the filled document slots.
func (w *SimpleWriter) writeDocuments(sb *strings.Builder, rec *model.NormalizedSafetyRecord) {
	rows := documentRows(rec)
	if len(rows) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, "DOCUMENTS")

	if len(rows) == 0 {
		sb.WriteString("  No documents found\n\n")
		return
	}
	for _, row := range rows {
		fmt.Fprintf(sb, "  %-17s %s\n", row[0]+":", row[1])
	}
	sb.WriteString("\n")
}

// writeList writes a titled bullet list.
func (w *SimpleWriter) writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, title)

	if len(items) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(sb, "  * %s\n", item)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by brokersafety\n")
	sb.WriteString("https://github.com/nao1215/brokersafety\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
