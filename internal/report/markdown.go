package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/regulator"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.SafetyReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeBody(md, recordOf(report))
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteRecord outputs the record in Markdown format without run metadata.
func (w *MarkdownWriter) WriteRecord(record *model.NormalizedSafetyRecord) (int, error) {
	if record == nil {
		record = model.NewNormalizedSafetyRecord()
	}
	md := markdown.NewMarkdown(w.output)

	md.H1("Broker Safety Record")
	md.PlainText("")
	w.writeBody(md, record)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SafetyReport) {
	md.H1("Broker Safety Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Homepage", "`" + report.Homepage + "`"},
			{"Extractor", report.Extractor},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Fetched", strconv.Itoa(report.PagesFetched)},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeBody(md *markdown.Markdown, rec *model.NormalizedSafetyRecord) {
	w.writeRegulation(md, rec)
	w.writeEntities(md, rec)
	w.writeDocuments(md, rec)
	w.writeLists(md, rec)
	w.writeSources(md, rec)
}

// writeRegulation writes the summary, alert and tier chart.
func (w *MarkdownWriter) writeRegulation(md *markdown.Markdown, rec *model.NormalizedSafetyRecord) {
	md.H2("Regulation")
	md.PlainText("")
	md.PlainText(rec.Description)
	md.PlainText("")
	if rec.IsRegulated != "" {
		md.PlainTextf("**Regulated by:** %s", rec.IsRegulated)
		md.PlainText("")
	}

	counts := tierCounts(rec)
	switch {
	case len(rec.Entities) == 0:
		md.Caution("No regulator could be confirmed from the broker's public pages.")
	case counts[regulator.Tier1] == 0 && counts[regulator.Tier2] == 0:
		md.Warningf("Only offshore or light-touch regulators detected (%d Tier-3 entities).", counts[regulator.Tier3])
	case len(rec.Caveats) > 0:
		md.Importantf("%d caveat(s) apply to this record.", len(rec.Caveats))
	default:
		md.Tip("Top-tier regulation detected with no caveats.")
	}
	md.PlainText("")

	if len(rec.Entities) > 0 {
		w.writePieChart(md, counts)
	}
}

// writePieChart writes a mermaid pie chart of entities per regulator tier.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[regulator.Tier]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Entities by Regulator Tier"),
		piechart.WithShowData(true),
	)

	for _, tier := range []regulator.Tier{regulator.Tier1, regulator.Tier2, regulator.Tier3} {
		if n := counts[tier]; n > 0 {
			chart.LabelAndIntValue(string(tier), uint64(n))
		}
	}
	if n := counts[""]; n > 0 {
		chart.LabelAndIntValue("Unknown", uint64(n))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeEntities writes the legal entities table.
func (w *MarkdownWriter) writeEntities(md *markdown.Markdown, rec *model.NormalizedSafetyRecord) {
	md.H2("Legal Entities")
	md.PlainText("")

	if len(rec.Entities) == 0 {
		md.PlainText("No legal entities detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(rec.Entities))
	for i, e := range rec.Entities {
		rows[i] = []string{
			orDash(e.EntityName),
			e.RegulatorAbbr,
			orDash(string(e.Tier)),
			orDash(e.Jurisdiction),
			orDash(e.InvestorProtection),
			orDash(e.NegativeBalanceProtection),
			orDash(strings.Join(e.ExcludeCountries, ", ")),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Entity", "Regulator", "Tier", "Jurisdiction", "Investor Protection", "NBP", "Excluded"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDocuments writes the document links table.
func (w *MarkdownWriter) writeDocuments(md *markdown.Markdown, rec *model.NormalizedSafetyRecord) {
	md.H2("Documents")
	md.PlainText("")

	rows := documentRows(rec)
	if len(rows) == 0 {
		md.PlainText("No legal documents found.")
		md.PlainText("")
		return
	}
	md.Table(markdown.TableSet{
		Header: []string{"Document", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeLists writes highlights, caveats, warnings and hints.
func (w *MarkdownWriter) writeLists(md *markdown.Markdown, rec *model.NormalizedSafetyRecord) {
	sections := []struct {
		title string
		items []string
	}{
		{"Highlights", rec.Highlights},
		{"Caveats", rec.Caveats},
		{"Hints", rec.Hints},
	}
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		md.H2(s.title)
		md.PlainText("")
		md.BulletList(s.items...)
		md.PlainText("")
	}

	if len(rec.Warnings) > 0 {
		md.H2("Warnings")
		md.PlainText("")
		items := make([]string, len(rec.Warnings))
		for i, warn := range rec.Warnings {
			items[i] = "[" + warn.Title + "](" + warn.URL + ")"
		}
		md.BulletList(items...)
		md.PlainText("")
	}
}

// writeSources writes the pages the record was derived from.
func (w *MarkdownWriter) writeSources(md *markdown.Markdown, rec *model.NormalizedSafetyRecord) {
	if len(rec.Sources) > 0 {
		md.Details("Sources ("+strconv.Itoa(len(rec.Sources))+")", strings.Join(rec.Sources, "\n"))
	}
	if len(rec.TriedPaths) > 0 {
		md.Details("Tried paths ("+strconv.Itoa(len(rec.TriedPaths))+")", strings.Join(rec.TriedPaths, "\n"))
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [brokersafety](https://github.com/nao1215/brokersafety)*")
}

// tierCounts counts entities per tier. Entities without tier count under "".
func tierCounts(rec *model.NormalizedSafetyRecord) map[regulator.Tier]int {
	counts := make(map[regulator.Tier]int)
	for _, e := range rec.Entities {
		counts[e.Tier]++
	}
	return counts
}
