// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output with entity tables and a tier chart
//
// Writers work on model.SafetyReport and implement the Writer interface, so
// they can be used interchangeably and composed for multi-format output.
package report
