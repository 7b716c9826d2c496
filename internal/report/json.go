package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/brokersafety/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in JSON format.
func (w *JSONWriter) Write(report *model.SafetyReport) (int, error) {
	return w.writeJSON(report)
}

// WriteRecord outputs only the record in JSON format. This is the shape
// downstream consumers map from.
func (w *JSONWriter) WriteRecord(record *model.NormalizedSafetyRecord) (int, error) {
	if record == nil {
		record = model.NewNormalizedSafetyRecord()
	}
	return w.writeJSON(record)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport wraps a report with the version of the tool that produced it.
type JSONReport struct {
	// Version is the brokersafety version that generated this report.
	Version string `json:"version"`

	// Report is the full safety report.
	Report *model.SafetyReport `json:"report"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(report *model.SafetyReport, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Report:  report,
	}
}

// FullJSONWriter outputs complete reports with metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	// version is the brokersafety version string.
	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the full report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.SafetyReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}
